package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// maxHistoryLimit caps /api/history?limit.
const maxHistoryLimit = 500

type errorBody struct {
	Error string `json:"error"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type askRequest struct {
	Text string `json:"text"`
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

// handleTranscribe accepts a multipart upload with the recording in the
// "file" field and returns the recognised text.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.STT == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "transcription is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing file: " + err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read file: " + err.Error()})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "empty file"})
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = audio.MIMEForFilename(header.Filename)
	}
	rec := audio.Recording{Data: data, MIMEType: mime}
	if mime == audio.MIMEWAV {
		if pcm, rate, ch, err := audio.DecodeWAV(data); err == nil {
			rec.SampleRate, rec.Channels = rate, ch
			rec.Duration = audio.PCMDuration(len(pcm), rate, ch)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TranscribeTimeout)
	defer cancel()
	opts := stt.Options{Language: r.FormValue("language"), Prompt: r.FormValue("prompt")}
	tr, err := s.deps.STT.Transcribe(ctx, rec, opts)
	if err != nil {
		slog.Warn("web: transcribe failed", "filename", header.Filename, "bytes", len(data), "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "transcription failed"})
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{
		Text:       strings.TrimSpace(tr.Text),
		Language:   tr.Language,
		Confidence: tr.Confidence,
	})
}

// handleAskText answers one text query.
func (s *Server) handleAskText(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answers == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "answer service is not configured"})
		return
	}

	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json: " + err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "empty text"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()
	reply, err := s.deps.Answers.Ask(ctx, text)
	if err != nil {
		slog.Warn("web: ask failed", "text", text, "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "answer failed"})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleHistory returns the most recent dialogue entries, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, historyResponse{Entries: []history.Entry{}})
		return
	}
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		slog.Warn("web: history failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "history unavailable"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// handleSessions lists the live capture sessions.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Sessions.Sessions())
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: write response", "err", err)
	}
}
