package segment

import (
	"time"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// Utterance is a finished recording handed off by the [Segmenter].
type Utterance struct {
	// Seq numbers utterances of one segmenter in capture order, starting at 1.
	Seq uint64

	// Recording holds the captured audio as a WAV container.
	Recording audio.Recording

	// Start and End are the stream positions of the onset and the final tick.
	Start time.Duration
	End   time.Duration
}

// Segmenter drives [Step] over a frame stream and owns the recording in
// progress. It appends every frame from the onset tick through the
// finalising tick, inclusive. MinBytes is measured against the voiced part
// only, from the onset through the last loud tick, so the hang tail never
// lifts a click over the limit. Not safe for concurrent use; one Segmenter
// belongs to one tick loop.
type Segmenter struct {
	cfg Config
	st  State

	buf        []byte
	voiced     int
	sampleRate int
	channels   int

	seq       uint64
	discarded int
}

// New creates a Segmenter with cfg. Zero fields of cfg take the defaults,
// except MaxUtterance which stays disabled.
func New(cfg Config) *Segmenter {
	d := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = d.Threshold
	}
	if cfg.Hang <= 0 {
		cfg.Hang = d.Hang
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = d.MinBytes
	}
	return &Segmenter{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Phase reports whether a recording is in progress.
func (s *Segmenter) Phase() Phase { return s.st.Phase }

// Discarded returns how many recordings were dropped because their voiced
// part was shorter than MinBytes.
func (s *Segmenter) Discarded() int { return s.discarded }

// Push feeds one tick and its frame. It returns the finished utterance and
// true when this tick ended a recording that met MinBytes.
func (s *Segmenter) Push(t Tick, frame audio.AudioFrame) (Utterance, bool) {
	next, effects := Step(s.cfg, s.st, t)
	prev := s.st
	s.st = next

	for _, e := range effects {
		if e == EffectStartRecording {
			s.buf = s.buf[:0]
			s.voiced = 0
			s.sampleRate = frame.SampleRate
			s.channels = frame.Channels
		}
	}
	if prev.Phase == Collecting || next.Phase == Collecting {
		s.buf = append(s.buf, frame.Data...)
		if t.Energy > s.cfg.Threshold {
			s.voiced = len(s.buf)
		}
	}
	for _, e := range effects {
		if e == EffectFinalizeRecording {
			return s.finalize(prev.Started, t.At)
		}
	}
	return Utterance{}, false
}

// Flush ends a recording in progress, for example when the stream closes
// mid-utterance. It applies the same MinBytes rule as a regular finalisation.
func (s *Segmenter) Flush(at time.Duration) (Utterance, bool) {
	if s.st.Phase != Collecting {
		return Utterance{}, false
	}
	started := s.st.Started
	s.st.Phase = Silent
	return s.finalize(started, at)
}

func (s *Segmenter) finalize(start, end time.Duration) (Utterance, bool) {
	pcm, voiced := s.buf, s.voiced
	s.buf, s.voiced = nil, 0
	if voiced < s.cfg.MinBytes {
		s.discarded++
		return Utterance{}, false
	}
	s.seq++
	return Utterance{
		Seq: s.seq,
		Recording: audio.Recording{
			Data:       audio.EncodeWAV(pcm, s.sampleRate, s.channels),
			MIMEType:   audio.MIMEWAV,
			SampleRate: s.sampleRate,
			Channels:   s.channels,
			Duration:   audio.PCMDuration(len(pcm), s.sampleRate, s.channels),
		},
		Start: start,
		End:   end,
	}, true
}

// PCM extracts the raw PCM payload of an utterance recorded by a Segmenter.
func (u Utterance) PCM() []byte {
	pcm, _, _, err := audio.DecodeWAV(u.Recording.Data)
	if err != nil {
		return nil
	}
	return pcm
}
