package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ValentinKolb/phantom/lib/codec"
	"github.com/ValentinKolb/phantom/lib/ingest"
	"github.com/ValentinKolb/phantom/lib/record"
)

// handleGetSnapshot serves the compressed snapshot as is.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	blob, err := s.cache.Get(r.Context())
	if err != nil {
		Logger.Errorf("snapshot failed: %v", err)
		writeDetail(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	if blob.Codec != codec.Identity {
		h.Set("Content-Encoding", blob.Encoding)
	}
	h.Set("Content-Length", strconv.Itoa(len(blob.Data)))
	if blob.Hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Data); err != nil {
		Logger.Debugf("write snapshot: %v", err)
	}
}

// handleIngest decodes one payload and hands it to the pipeline.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	defer r.Body.Close()

	var payload ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDecodeError(w, err)
		return
	}

	err := s.pipeline.Ingest(r.Context(), payload)
	if errs, ok := record.AsValidationErrors(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeDecodeError maps JSON decoding failures: broken JSON is a 400,
// well formed JSON with wrong types is a validation error (422).
func writeDecodeError(w http.ResponseWriter, err error) {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", sizeErr.Limit))
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		writeDetail(w, http.StatusBadRequest, "request body is not valid JSON")
	case errors.As(err, &typeErr):
		loc := []string{"body"}
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		var errs record.ValidationErrors
		errs.Add(loc, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
	default:
		var errs record.ValidationErrors
		errs.Add([]string{"body"}, err.Error())
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Debugf("write response: %v", err)
	}
}
