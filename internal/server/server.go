// Package server exposes conversion and the asset store over HTTP.
//
// Routes:
//
//	GET    /healthz              build information
//	POST   /convert/{from}/{to}  convert the request body ("auto" detects the source)
//	POST   /graph/{format}       render the request body as DOT or SVG
//	GET    /assets?prefix=p      list stored assets
//	GET    /assets/{key}         fetch an asset
//	PUT    /assets/{key}         store an asset (?format=yaml, If-Match: revision)
//	DELETE /assets/{key}         remove an asset
//
// Keys may contain slashes. Errors are JSON objects with "code" and "error".
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/persist/pkg/buildinfo"
	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/convert"
	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/render/nodelink"
	"github.com/matzehuels/persist/pkg/store"
)

// DefaultMaxBody caps request bodies.
const DefaultMaxBody = 8 << 20

// Server serves the HTTP API.
type Server struct {
	runner  *convert.Runner
	store   store.Store
	logger  *log.Logger
	maxBody int64
}

// New creates a server. A nil logger uses the runner's logger.
func New(runner *convert.Runner, s store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = runner.Logger
	}
	return &Server{runner: runner, store: s, logger: logger, maxBody: DefaultMaxBody}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Post("/convert/{from}/{to}", s.convert)
	r.Post("/graph/{format}", s.graph)
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", s.listAssets)
		r.Get("/*", s.getAsset)
		r.Put("/*", s.putAsset)
		r.Delete("/*", s.deleteAsset)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Get()})
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	from := chi.URLParam(r, "from")
	if from == "auto" {
		from = ""
	}
	res, err := s.runner.Convert(r.Context(), body, convert.Options{
		From:    from,
		To:      chi.URLParam(r, "to"),
		Indent:  r.URL.Query().Get("indent"),
		Refresh: r.URL.Query().Has("refresh"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("X-Persist-Source", string(res.From))
	w.Header().Set("X-Persist-Cache", cacheStatus(res.CacheHit))
	writeDocument(w, http.StatusOK, string(res.To), res.Data)
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	q := r.URL.Query()
	format := chi.URLParam(r, "format")
	data, err := s.runner.Graph(r.Context(), body, convert.GraphOptions{
		From:   q.Get("from"),
		Format: format,
		Options: nodelink.Options{
			Detailed:        q.Has("detailed"),
			GuessReferences: q.Has("guess"),
		},
		Refresh: q.Has("refresh"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	ct := "text/vnd.graphviz; charset=utf-8"
	if format == "svg" {
		ct = "image/svg+xml"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if infos == nil {
		infos = []store.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc.Revision))
	w.Header().Set("Last-Modified", doc.UpdatedAt.Format(http.TimeFormat))
	writeDocument(w, http.StatusOK, doc.Format, doc.Data)
}

// putAsset stores the body after checking that it parses in the declared
// format. The format comes from ?format= or the Content-Type header.
func (s *Server) putAsset(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}
	c, err := codec.Lookup(format)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := codec.Unmarshal(c, body); err != nil {
		s.fail(w, err)
		return
	}

	doc, err := s.store.Put(r.Context(), &store.Document{
		Key:      chi.URLParam(r, "*"),
		Format:   string(c.Format()),
		Data:     body,
		Revision: strings.Trim(r.Header.Get("If-Match"), `"`),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc.Revision))
	writeJSON(w, http.StatusOK, doc.Info())
}

func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "*")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body")
	}
	return body, nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, status, map[string]string{"code": string(code), "error": err.Error()})
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusPreconditionFailed
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidName, errors.ErrCodeInvalidKey:
		return http.StatusBadRequest
	case errors.ErrCodeSerialization, errors.ErrCodeSchema, errors.ErrCodeTypeMismatch:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

var contentTypes = map[string]string{
	string(codec.XML):  "application/xml",
	string(codec.YAML): "application/yaml",
	string(codec.JSON): "application/json",
}

func formatFromContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	ct = strings.TrimSpace(ct)
	for format, t := range contentTypes {
		if ct == t || ct == "text/"+format {
			return format
		}
	}
	return ""
}

func writeDocument(w http.ResponseWriter, status int, format string, data []byte) {
	ct, ok := contentTypes[format]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Persist-Format", format)
	w.WriteHeader(status)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
