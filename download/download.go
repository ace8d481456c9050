// Package download runs single request from URL to payload: generation, optional purchase, packaging and cleanup.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"

	"jncweb/config"
	"jncweb/jncep"
	"jncweb/packager"
	"jncweb/workdir"
)

var (
	// ErrInvalidInput is returned when request does not make sense.
	ErrInvalidInput = errors.New("invalid request")
	// ErrNoCredentials is returned when there are no J-Novel Club credentials to use.
	ErrNoCredentials = errors.New("missing J-Novel Club credentials")
)

// Request is what caller wants.
type Request struct {
	URL         string
	Parts       string
	Requestor   string
	Credentials jncep.Credentials
	// mail result to configured kindle address
	SendToKindle bool
}

// Purchaser buys volume request points to.
type Purchaser interface {
	Purchase(ctx context.Context, req jncep.Request) error
}

// Mailer delivers payload by mail.
type Mailer interface {
	Send(p *packager.Payload) error
}

// Service keeps everything necessary to process requests, it is safe for concurrent use.
type Service struct {
	root         string
	allowedHosts []string
	credentials  jncep.Credentials
	gen          jncep.Generator
	purchaser    Purchaser
	mailer       Mailer
	inspect      func(dir string) error
	log          *zap.Logger
}

// Option customizes Service.
type Option func(*Service)

// WithPurchaser enables purchase and retry when generation requires payment.
func WithPurchaser(p Purchaser) Option {
	return func(s *Service) { s.purchaser = p }
}

// WithMailer enables send to kindle.
func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithInspector registers function called with working directory after generation, before directory is removed.
func WithInspector(fn func(dir string) error) Option {
	return func(s *Service) { s.inspect = fn }
}

// New creates download service.
func New(cfg *config.Config, gen jncep.Generator, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		root:         cfg.Jncep.Output,
		allowedHosts: slices.Clone(cfg.Jncep.AllowedHosts),
		credentials:  jncep.Credentials{Email: cfg.Jncep.Email, Password: cfg.Jncep.Password},
		gen:          gen,
		log:          log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CanSendToKindle reports if mail delivery is available.
func (s *Service) CanSendToKindle() bool {
	return s.mailer != nil
}

// Download generates books for request and returns them as single in-memory payload.
// Working directory is removed before return on every path.
func (s *Service) Download(ctx context.Context, r Request) (*packager.Payload, error) {

	req, err := s.prepare(r)
	if err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("requestor", r.Requestor), zap.String("url", req.URL))
	log.Info("Download starting", zap.String("parts", partsOrAll(req.Parts)))

	dir, err := workdir.New(s.root, r.Requestor)
	if err != nil {
		return nil, err
	}
	// payload is in memory when this runs, removal errors are only logged
	defer dir.Remove(log)
	log.Debug("Working directory created", zap.String("location", dir.Path()))

	err = s.generate(ctx, req, dir.Path(), log)
	if s.inspect != nil {
		if ierr := s.inspect(dir.Path()); ierr != nil {
			log.Warn("Unable to inspect working directory", zap.Error(ierr))
		}
	}
	if err != nil {
		return nil, err
	}

	p, err := packager.Collect(dir.Path())
	if err != nil {
		return nil, err
	}
	log.Info("Download prepared", zap.String("name", p.Name), zap.Stringer("kind", p.Kind), zap.Int64("size", p.Size()))

	if r.SendToKindle {
		s.sendToKindle(p, log)
	}
	return p, nil
}

func (s *Service) sendToKindle(p *packager.Payload, log *zap.Logger) {

	if s.mailer == nil {
		log.Warn("Configuration for Send To Kindle is incorrect, skipping")
		return
	}
	start := time.Now()
	if err := s.mailer.Send(p); err != nil {
		log.Error("Unable to send to kindle", zap.String("name", p.Name), zap.Error(err))
		return
	}
	log.Info("Sent to kindle", zap.String("name", p.Name), zap.Duration("elapsed", time.Since(start)))
}

func (s *Service) generate(ctx context.Context, req jncep.Request, dir string, log *zap.Logger) error {

	err := s.gen.Generate(req, dir)
	if err == nil {
		log.Info("EPUB(s) generated successfully")
		return nil
	}
	if !errors.Is(err, jncep.ErrPaymentRequired) || s.purchaser == nil {
		return err
	}

	log.Info("Purchasing book due to missing permission")
	if perr := s.purchaser.Purchase(ctx, req); perr != nil {
		return fmt.Errorf("%w (purchase failed: %v)", err, perr)
	}
	if err := s.gen.Generate(req, dir); err != nil {
		return err
	}
	log.Info("EPUB(s) generated successfully after purchase")
	return nil
}

// prepare validates request and fills in defaults.
func (s *Service) prepare(r Request) (jncep.Request, error) {

	raw := strings.TrimSpace(r.URL)
	// URL may arrive encoded twice
	if u, err := url.PathUnescape(raw); err == nil {
		raw = strings.TrimSpace(u)
	}
	if len(raw) == 0 {
		return jncep.Request{}, fmt.Errorf("%w: J-Novel Club URL is required", ErrInvalidInput)
	}
	if !govalidator.IsURL(raw) {
		return jncep.Request{}, fmt.Errorf("%w: not a URL %q", ErrInvalidInput, raw)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return jncep.Request{}, fmt.Errorf("%w: unsupported URL %q", ErrInvalidInput, raw)
	}
	if !s.hostAllowed(u.Hostname()) {
		return jncep.Request{}, fmt.Errorf("%w: %q is not a J-Novel Club address", ErrInvalidInput, u.Hostname())
	}

	creds := s.credentials
	if len(r.Credentials.Email) > 0 {
		creds.Email = r.Credentials.Email
	}
	if len(r.Credentials.Password) > 0 {
		creds.Password = r.Credentials.Password
	}
	if len(creds.Email) == 0 || len(creds.Password) == 0 {
		return jncep.Request{}, ErrNoCredentials
	}

	return jncep.Request{URL: raw, Parts: strings.TrimSpace(r.Parts), Credentials: creds}, nil
}

// hostAllowed checks host against configured list, subdomains are accepted. Empty list allows everything.
func (s *Service) hostAllowed(host string) bool {
	if len(s.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range s.allowedHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func partsOrAll(parts string) string {
	if len(parts) == 0 {
		return "ALL"
	}
	return parts
}
