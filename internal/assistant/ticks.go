package assistant

import (
	"context"
	"time"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// Tick is one step of the tick loop: one captured frame and its position in
// the stream.
type Tick struct {
	// At is the stream position at the end of Frame.
	At time.Duration

	// Frame is the audio observed during this tick.
	Frame audio.AudioFrame
}

// TickSource turns captured frames into ticks. Stream time is derived from
// sample counts, so it is independent of network jitter and of how fast the
// frames arrive. Not safe for concurrent use.
type TickSource struct {
	conv *audio.FormatConverter

	base    time.Duration
	samples int64
	rate    int
}

// NewTickSource creates a TickSource converting frames to target. A zero
// target sample rate passes frames through unconverted.
func NewTickSource(target audio.Format) *TickSource {
	ts := &TickSource{}
	if target.SampleRate > 0 && target.Channels > 0 {
		ts.conv = &audio.FormatConverter{Target: target}
	}
	return ts
}

// Next converts frame and returns its tick.
func (ts *TickSource) Next(frame audio.AudioFrame) Tick {
	if ts.conv != nil {
		frame = ts.conv.Convert(frame)
	}
	if frame.SampleRate > 0 && frame.Channels > 0 {
		if frame.SampleRate != ts.rate {
			ts.base = ts.Elapsed()
			ts.samples = 0
			ts.rate = frame.SampleRate
		}
		ts.samples += int64(len(frame.Data) / (2 * frame.Channels))
	}
	at := ts.Elapsed()
	frame.Timestamp = at
	return Tick{At: at, Frame: frame}
}

// Elapsed returns the stream time consumed so far.
func (ts *TickSource) Elapsed() time.Duration {
	if ts.rate <= 0 {
		return ts.base
	}
	return ts.base + time.Duration(ts.samples)*time.Second/time.Duration(ts.rate)
}

// Pump reads frames until the channel closes or ctx is cancelled and writes
// one tick per frame to out. out is closed when Pump returns.
func (ts *TickSource) Pump(ctx context.Context, frames <-chan audio.AudioFrame, out chan<- Tick) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			select {
			case out <- ts.Next(f):
			case <-ctx.Done():
				return
			}
		}
	}
}
