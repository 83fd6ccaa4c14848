package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"legalscan/pkg/canonhash"
	"legalscan/pkg/docx"
	"legalscan/pkg/extract"
	"legalscan/pkg/fill"
	"legalscan/pkg/fillerr"
	"legalscan/pkg/httpx"
	"legalscan/pkg/placeholder"
	"legalscan/pkg/schema"
	"legalscan/services/templatefill/internal/config"
	"legalscan/services/templatefill/internal/idempotency"
	"legalscan/services/templatefill/internal/store"
)

const (
	completeEndpoint  = "POST /template-fill/complete"
	maxCompleteBytes  = 1 << 20
	extractionTimeout = 90 * time.Second
)

type server struct {
	cfg       config.Config
	log       *zap.Logger
	artifacts store.ArtifactStore
	idem      idempotency.Store
	locks     *store.Locks
	extractor extract.Extractor
	schemas   *schema.Registry
	limiter   *uploadLimiter
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(httpx.WithRequestID)
	r.Use(requestLogger(s.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/template-fill", func(api chi.Router) {
		api.Post("/start", s.handleStart)
		api.Post("/complete", s.handleComplete)
		api.Get("/sessions/{session_id}/filled", s.handleDownload)
		api.Get("/families", s.handleFamilies)
		api.Get("/families/{family}/questions", s.handleFamilyQuestions)
	})
	return r
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.limitUploads(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteRequestError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "upload exceeds size limit", map[string]any{"max_bytes": s.cfg.MaxUploadBytes})
			return
		}
		httpx.WriteFillError(w, r, fillerr.Wrap(fillerr.MalformedInput, "file", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		httpx.WriteFillError(w, r, fillerr.New(fillerr.MalformedInput, "file", "multipart field \"file\" is required"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		httpx.WriteFillError(w, r, fillerr.Wrap(fillerr.MalformedInput, "file", err))
		return
	}
	doc, err := docx.Load(data)
	if err != nil {
		httpx.WriteFillError(w, r, err)
		return
	}

	resp := map[string]any{"request_id": httpx.RequestID(r.Context())}
	if family := strings.TrimSpace(r.FormValue("family")); family != "" {
		sch, ok := s.schemas.Get(family)
		if !ok {
			httpx.WriteFillError(w, r, fillerr.New(fillerr.MalformedInput, family, "unknown template family"))
			return
		}
		resp["family"] = sch.Family
		resp["fields"] = sch.Questions()
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), extractionTimeout)
		defer cancel()
		qs, err := s.extractor.Extract(ctx, doc.Text())
		if err != nil {
			s.writeExtractionError(w, r, err)
			return
		}
		if qs == nil {
			qs = []extract.Question{}
		}
		resp["questions"] = qs
	}

	sessionID := "ses_" + uuid.NewString()
	if err := s.artifacts.Put(r.Context(), store.SourceKey(sessionID), data); err != nil {
		s.log.Error("store source", zap.String("session_id", sessionID), zap.Error(err))
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	resp["session_id"] = sessionID
	s.log.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("filename", hdr.Filename),
		zap.Int("bytes", len(data)),
		zap.Int("blocks", len(doc.Blocks())))
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *server) writeExtractionError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Warn("extraction failed", zap.String("request_id", httpx.RequestID(r.Context())), zap.Error(err))
	if fillerr.KindOf(err) != "" {
		httpx.WriteFillError(w, r, err)
		return
	}
	httpx.WriteRequestError(w, r, http.StatusBadGateway, "EXTRACTION_UNAVAILABLE", err.Error(), nil)
}

type completeRequest struct {
	SessionID string          `json:"session_id"`
	Family    string          `json:"family,omitempty"`
	Answers   json.RawMessage `json:"answers"`
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !readJSONWithLimit(w, r, maxCompleteBytes, &req) {
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		httpx.WriteFillError(w, r, fillerr.New(fillerr.MalformedInput, "session_id", "session_id is required"))
		return
	}
	m, opts, err := s.answerMap(req)
	if err != nil {
		httpx.WriteFillError(w, r, err)
		return
	}
	fingerprint, err := canonhash.Sum(map[string]any{"family": req.Family, "answers": m.Pairs()})
	if err != nil {
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	idem := idempotency.Request{
		Scope:          req.SessionID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Fingerprint:    fingerprint,
	}
	status, body, replayed, err := idempotency.Replay(r.Context(), s.idem, idem, completeEndpoint)
	if errors.Is(err, idempotency.ErrKeyReused) {
		httpx.WriteRequestError(w, r, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", err.Error(), map[string]any{"session_id": req.SessionID})
		return
	}
	if err != nil {
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	if replayed {
		httpx.WriteJSON(w, status, body)
		return
	}

	unlock, ok := s.locks.TryLock(req.SessionID)
	if !ok {
		httpx.WriteRequestError(w, r, http.StatusConflict, "FILL_IN_PROGRESS", "a fill for this session is already running", map[string]any{"session_id": req.SessionID})
		return
	}
	defer unlock()

	source, err := s.artifacts.Get(r.Context(), store.SourceKey(req.SessionID))
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteFillError(w, r, fillerr.New(fillerr.DocumentNotFound, req.SessionID, "no uploaded document for session"))
		return
	}
	if err != nil {
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}

	out, rep, err := fill.FillBytes(source, m, opts)
	if err != nil {
		httpx.WriteFillError(w, r, err)
		return
	}
	if err := s.artifacts.Put(r.Context(), store.FilledKey(req.SessionID), out); err != nil {
		s.log.Error("store filled", zap.String("session_id", req.SessionID), zap.Error(err))
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	url, err := s.previewURL(r, req.SessionID)
	if err != nil {
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	resp := map[string]any{
		"request_id":                 httpx.RequestID(r.Context()),
		"session_id":                 req.SessionID,
		"public_preview_url":         url,
		"sha256":                     canonhash.SumBytes(out),
		"report":                     rep,
		idempotency.FingerprintField: fingerprint,
	}
	// stored through JSON so a replay returns exactly what a fresh call would
	var stored map[string]any
	if b, err := json.Marshal(resp); err == nil {
		_ = json.Unmarshal(b, &stored)
	}
	if err := idempotency.Save(r.Context(), s.idem, idem, completeEndpoint, http.StatusOK, stored); err != nil {
		s.log.Warn("save idempotency record", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	s.log.Info("session filled",
		zap.String("session_id", req.SessionID),
		zap.Bool("scoped", rep.Scoped),
		zap.Int("blocks_changed", rep.BlocksChanged),
		zap.Int("unused", len(rep.Unused)))
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// answerMap turns the request answers into a canonical map. Predefined
// families take a {field: value} object and are filled without scoping.
func (s *server) answerMap(req completeRequest) (placeholder.AnswerMap, fill.Options, error) {
	opts := fill.Options{Placeholder: s.cfg.PlaceholderOptions(), Scope: placeholder.DefaultScopeRules()}
	if fam := strings.TrimSpace(req.Family); fam != "" {
		sch, ok := s.schemas.Get(fam)
		if !ok {
			return placeholder.AnswerMap{}, opts, fillerr.New(fillerr.MalformedInput, fam, "unknown template family")
		}
		var values map[string]string
		if err := json.Unmarshal(req.Answers, &values); err != nil {
			return placeholder.AnswerMap{}, opts, fillerr.Wrap(fillerr.MalformedInput, "answers", err)
		}
		entries, err := sch.Entries(values)
		if err != nil {
			return placeholder.AnswerMap{}, opts, err
		}
		m, err := placeholder.Normalize(entries)
		opts.Scope = placeholder.ScopeRules{}
		return m, opts, err
	}
	entries, err := decodeAnswers(req.Answers)
	if err != nil {
		return placeholder.AnswerMap{}, opts, err
	}
	m, err := placeholder.Normalize(entries)
	return m, opts, err
}

type answerItem struct {
	Placeholder string `json:"placeholder"`
	Answer      string `json:"answer"`
	Index       *int   `json:"index"`
}

// decodeAnswers accepts a list of {placeholder, answer, index} or an object
// whose member order gives the answer order. List items without an index take
// their position.
func decodeAnswers(raw json.RawMessage) ([]placeholder.AnswerEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fillerr.New(fillerr.MalformedInput, "answers", "answers are required")
	}
	switch trimmed[0] {
	case '[':
		var items []answerItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fillerr.Wrap(fillerr.MalformedInput, "answers", err)
		}
		out := make([]placeholder.AnswerEntry, 0, len(items))
		for i, it := range items {
			idx := i
			if it.Index != nil {
				idx = *it.Index
			}
			out = append(out, placeholder.AnswerEntry{Placeholder: it.Placeholder, Answer: it.Answer, Index: idx})
		}
		return out, nil
	case '{':
		pairs, err := orderedPairs(trimmed)
		if err != nil {
			return nil, fillerr.Wrap(fillerr.MalformedInput, "answers", err)
		}
		return placeholder.EntriesFromPairs(pairs), nil
	default:
		return nil, fillerr.New(fillerr.MalformedInput, "answers", "answers must be a list or an object")
	}
}

func orderedPairs(obj []byte) ([]placeholder.Pair, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var pairs []placeholder.Pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("answer for %q: %w", key, err)
		}
		pairs = append(pairs, placeholder.Pair{Key: key, Answer: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// previewURL is a presigned link when the store supports it, else the
// service's own download route.
func (s *server) previewURL(r *http.Request, sessionID string) (string, error) {
	if p, ok := s.artifacts.(store.Presigner); ok {
		return p.PresignGet(r.Context(), store.FilledKey(sessionID), s.cfg.PresignTTL)
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s/template-fill/sessions/%s/filled", scheme, r.Host, sessionID), nil
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	data, err := s.artifacts.Get(r.Context(), store.FilledKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteFillError(w, r, fillerr.New(fillerr.DocumentNotFound, sessionID, "no filled document for session"))
		return
	}
	if err != nil {
		httpx.WriteRequestError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", store.DocxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="filled.docx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) handleFamilies(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.RequestID(r.Context()), "families": s.schemas.Families()})
}

func (s *server) handleFamilyQuestions(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	sch, ok := s.schemas.Get(family)
	if !ok {
		httpx.WriteRequestError(w, r, http.StatusNotFound, "FAMILY_NOT_FOUND", "unknown template family", map[string]any{"family": family})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.RequestID(r.Context()),
		"family":     sch.Family,
		"title":      sch.Title,
		"fields":     sch.Questions(),
	})
}

func readJSONWithLimit(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := httpx.ReadJSON(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteRequestError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		httpx.WriteFillError(w, r, fillerr.Wrap(fillerr.MalformedInput, "body", err))
		return false
	}
	return true
}
