package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/komekshi/internal/assistant"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/internal/present"
	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/audio/opus"
)

// Client message types on the capture websocket.
const (
	msgHello        = "hello"
	msgCaptureError = "capture_error"
	msgPlayback     = "playback"
)

// Frame encodings announced in the hello message.
const (
	EncodingPCM16 = "pcm16"
	EncodingOpus  = "opus"
)

// Default capture format when the hello message leaves it out.
const (
	defaultCaptureRate     = 48000
	defaultCaptureChannels = 1
)

// clientMessage is any text message the page sends.
type clientMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Name       string `json:"name,omitempty"`
	State      string `json:"state,omitempty"`
}

// frameDecoder turns one binary websocket message into a frame.
type frameDecoder func([]byte) (audio.AudioFrame, error)

func newFrameDecoder(hello clientMessage) (frameDecoder, error) {
	rate, channels := hello.SampleRate, hello.Channels
	if rate <= 0 {
		rate = defaultCaptureRate
	}
	if channels <= 0 {
		channels = defaultCaptureChannels
	}
	if channels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	switch hello.Encoding {
	case "", EncodingPCM16:
		return func(b []byte) (audio.AudioFrame, error) {
			return audio.AudioFrame{Data: b, SampleRate: rate, Channels: channels}, nil
		}, nil
	case EncodingOpus:
		dec, err := opus.NewDecoder(rate, channels)
		if err != nil {
			return nil, err
		}
		return dec.Decode, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", hello.Encoding)
	}
}

// handleWS runs one capture session over a websocket. The first text message
// is either a hello announcing the frame format or a capture_error when the
// page could not open the microphone.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		slog.Warn("web: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.cfg.MaxFrame)

	ctx := r.Context()
	msgs := s.messages()

	var first clientMessage
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}

	switch first.Type {
	case msgCaptureError:
		s.reportCaptureFailure(ctx, conn, msgs, first.Name)
		return
	case msgHello:
	default:
		conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}

	decode, err := newFrameDecoder(first)
	if err != nil {
		conn.Close(websocket.StatusUnsupportedData, err.Error())
		return
	}

	if s.deps.Sessions == nil {
		conn.Close(websocket.StatusTryAgainLater, "capture sessions are not configured")
		return
	}

	sink := present.NewChannel(64)
	id := uuid.NewString()
	sess, err := s.deps.Sessions.Open(id, r.RemoteAddr, sink)
	if err != nil {
		slog.Warn("web: open session failed", "err", err)
		conn.Close(websocket.StatusTryAgainLater, "assistant unavailable")
		return
	}
	defer s.deps.Sessions.Close(id)

	ctx = observe.WithSession(ctx, id)
	log := observe.Logger(ctx)
	log.Info("web: capture started", "encoding", first.Encoding, "sample_rate", first.SampleRate, "channels", first.Channels)

	stream := newWSStream(32)
	stream.OnEvent(sess.HandlePlayback)
	defer stream.Close()

	ticks := make(chan assistant.Tick, 32)
	ts := assistant.NewTickSource(audio.Format{SampleRate: captureTargetRate, Channels: 1})

	g, gctx := errgroup.WithContext(ctx)
	sessionCtx, stopSession := context.WithCancel(ctx)
	defer stopSession()

	g.Go(func() error {
		defer stream.end()
		return s.readLoop(gctx, conn, stream, decode, sink, msgs)
	})
	g.Go(func() error {
		ts.Pump(sessionCtx, stream.Frames(), ticks)
		return nil
	})
	g.Go(func() error {
		defer sink.Close()
		return sess.Run(sessionCtx, ticks)
	})
	g.Go(func() error {
		// The writer outlives a failed reader so the failure status still
		// reaches the page; it stops when the sink closes.
		return writeLoop(ctx, conn, sink)
	})

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, errCaptureFailed):
		conn.Close(websocket.StatusNormalClosure, "capture failed")
	default:
		log.Debug("web: capture ended", "err", err)
	}
	log.Info("web: capture stopped")
}

// captureTargetRate is the sample rate the tick loop and the recognisers
// work at.
const captureTargetRate = 16000

// errCaptureFailed ends a session after the page reported that the
// microphone stopped.
var errCaptureFailed = errors.New("capture failed")

// readLoop reads client messages until the connection closes. Binary
// messages are frames; text messages are control messages.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, stream *wsStream, decode frameDecoder, sink present.Sink, msgs present.Messages) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("web: read: %w", err)
		}

		if typ == websocket.MessageBinary {
			frame, err := decode(data)
			if err != nil {
				slog.Debug("web: dropping undecodable frame", "bytes", len(data), "err", err)
				continue
			}
			if !stream.push(frame) {
				return nil
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("web: ignoring malformed control message", "err", err)
			continue
		}
		switch msg.Type {
		case msgPlayback:
			switch msg.State {
			case "started":
				stream.emit(audio.EventPlaybackStarted)
			case "ended", "paused":
				stream.emit(audio.EventPlaybackEnded)
			}
		case msgCaptureError:
			assistant.ReportCaptureFailure(sink, msgs, msg.Name)
			return errCaptureFailed
		}
	}
}

// writeLoop sends presentation events until the sink is closed, then drains
// what is left.
func writeLoop(ctx context.Context, conn *websocket.Conn, sink *present.Channel) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sink.Ready():
			if err := writeEvents(ctx, conn, sink.Drain()); err != nil {
				return err
			}
		case lvl := <-sink.Levels():
			if err := wsjson.Write(ctx, conn, present.Event{Type: present.EventLevel, Level: lvl}); err != nil {
				return fmt.Errorf("web: write: %w", err)
			}
		case <-sink.Done():
			return writeEvents(ctx, conn, sink.Drain())
		}
	}
}

func writeEvents(ctx context.Context, conn *websocket.Conn, evs []present.Event) error {
	for _, ev := range evs {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return fmt.Errorf("web: write: %w", err)
		}
	}
	return nil
}

// reportCaptureFailure renders a capture failure reported in place of the
// hello message and closes the connection.
func (s *Server) reportCaptureFailure(ctx context.Context, conn *websocket.Conn, msgs present.Messages, name string) {
	sink := present.NewChannel(4)
	f := assistant.ReportCaptureFailure(sink, msgs, name)
	sink.Close()
	slog.Info("web: capture failed on the page", "name", name, "failure", f)
	_ = writeLoop(ctx, conn, sink)
	conn.Close(websocket.StatusNormalClosure, string(f))
}

func (s *Server) messages() present.Messages {
	if s.deps.Sessions == nil {
		return present.DefaultMessages()
	}
	return s.deps.Sessions.Config().Messages.WithDefaults()
}
