// Package server is web front-end: request form, download endpoint and error mapping.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sprig "github.com/go-task/slim-sprig/v3"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"jncweb/config"
	"jncweb/download"
	"jncweb/jncep"
	"jncweb/misc"
	"jncweb/packager"
	"jncweb/static"
)

// Form fields.
const (
	FieldURL          = "jnovelclub_url"
	FieldParts        = "prepub_parts"
	FieldSendToKindle = "send_to_kindle"
	FieldEmail        = config.EnvEmail
	FieldPassword     = config.EnvPassword
)

const (
	homepageName      = "homepage.html"
	readHeaderTimeout = 30 * time.Second
	shutdownTimeout   = 2 * time.Minute
)

// Downloader prepares payload for request.
type Downloader interface {
	Download(ctx context.Context, r download.Request) (*packager.Payload, error)
	CanSendToKindle() bool
}

// Server handles http requests.
type Server struct {
	cfg  *config.Config
	svc  Downloader
	log  *zap.Logger
	home *template.Template
}

// New prepares server, parsing homepage template either from configured directory or built-in one.
func New(cfg *config.Config, svc Downloader, log *zap.Logger) (*Server, error) {

	var tfs fs.FS = static.Templates()
	if dir := cfg.Server.Templates; len(dir) > 0 {
		tfs = os.DirFS(cfg.ResolvePath(dir))
	}
	home, err := template.New(homepageName).Funcs(sprig.HtmlFuncMap()).ParseFS(tfs, homepageName)
	if err != nil {
		return nil, fmt.Errorf("unable to parse homepage template: %w", err)
	}
	return &Server{cfg: cfg, svc: svc, log: log, home: home}, nil
}

// Handler returns request router.
func (s *Server) Handler() http.Handler {

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.homepage)
	r.Post("/", s.epub)
	r.Get("/epub", s.epub)
	r.Post("/epub", s.epub)
	r.Get("/healthz", s.healthz)

	return r
}

// Run listens on configured address until context is cancelled.
func (s *Server) Run(ctx context.Context) error {

	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", s.cfg.Server.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on listener until context is cancelled, then shuts down gracefully
// letting requests in progress finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {

	if n := s.cfg.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.log.Named("http")),
	}

	s.log.Info("Server starting", zap.Stringer("address", ln.Addr()), zap.Int("max connections", s.cfg.Server.MaxConnections))

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	start := time.Now()
	s.log.Info("Server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("unable to shutdown server: %w", err)
	}
	s.log.Info("Server stopped", zap.Duration("elapsed", time.Since(start)))
	return nil
}

type homepageValues struct {
	Title    string
	Action   string
	Version  string
	Override bool
	Kindle   bool
	Hosts    []string
}

func (s *Server) homepage(w http.ResponseWriter, r *http.Request) {

	s.log.Info("Homepage requested", zap.String("requestor", r.RemoteAddr))

	values := homepageValues{
		Title:    "JNCEP",
		Action:   "/",
		Version:  misc.GetVersion(),
		Override: s.cfg.Jncep.CredentialsOverride,
		Kindle:   s.svc.CanSendToKindle(),
		Hosts:    s.cfg.Jncep.AllowedHosts,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.home.Execute(w, values); err != nil {
		s.log.Error("Unable to render homepage", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) epub(w http.ResponseWriter, r *http.Request) {

	log := s.log.With(zap.String("requestor", r.RemoteAddr), zap.String("id", middleware.GetReqID(r.Context())))
	log.Info("EPUB request initiated")

	if err := r.ParseForm(); err != nil {
		s.fail(w, log, fmt.Errorf("%w: %v", download.ErrInvalidInput, err))
		return
	}

	req := download.Request{
		URL:          r.Form.Get(FieldURL),
		Parts:        r.Form.Get(FieldParts),
		Requestor:    r.RemoteAddr,
		SendToKindle: checked(r.Form.Get(FieldSendToKindle)),
	}
	if s.cfg.Jncep.CredentialsOverride {
		req.Credentials = jncep.Credentials{Email: r.Form.Get(FieldEmail), Password: r.Form.Get(FieldPassword)}
	}

	p, err := s.svc.Download(r.Context(), req)
	if err != nil {
		s.fail(w, log, err)
		return
	}

	log.Info("Sending requested epub(s)", zap.String("name", p.Name))
	w.Header().Set("Content-Type", p.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.Name}))
	http.ServeContent(w, r, p.Name, p.ModTime, p.Reader())
}

func (s *Server) fail(w http.ResponseWriter, log *zap.Logger, err error) {

	code := StatusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Int("status", code), zap.Error(err))
		if code == http.StatusInternalServerError && !errors.Is(err, packager.ErrNoOutput) && !errors.Is(err, packager.ErrArchiveName) {
			msg = "unable to prepare download"
		}
	} else {
		log.Warn("Request rejected", zap.Int("status", code), zap.Error(err))
	}
	respondJSON(w, code, map[string]string{"message": msg})
}

// StatusFor maps pipeline errors to http status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, download.ErrInvalidInput), errors.Is(err, jncep.ErrBadURL):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrNoCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, jncep.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, jncep.ErrUnauthorized), errors.Is(err, jncep.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func checked(v string) bool {
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.log.Debug("Request completed",
				zap.String("id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}
