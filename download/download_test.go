package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"jncweb/config"
	"jncweb/jncep"
	"jncweb/packager"
)

// fakeGenerator writes books into output directory, optionally failing the first calls.
type fakeGenerator struct {
	books []string
	fail  []error
	calls []jncep.Request
}

func (g *fakeGenerator) Generate(req jncep.Request, dir string) error {
	g.calls = append(g.calls, req)
	if n := len(g.calls); n <= len(g.fail) && g.fail[n-1] != nil {
		return g.fail[n-1]
	}
	for _, b := range g.books {
		if err := os.WriteFile(filepath.Join(dir, b), []byte("book "+b), 0644); err != nil {
			return err
		}
	}
	return nil
}

type fakePurchaser struct {
	err   error
	calls int
}

func (p *fakePurchaser) Purchase(_ context.Context, _ jncep.Request) error {
	p.calls++
	return p.err
}

type fakeMailer struct {
	err  error
	sent []string
}

func (m *fakeMailer) Send(p *packager.Payload) error {
	m.sent = append(m.sent, p.Name)
	return m.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Jncep.Output = t.TempDir()
	cfg.Jncep.Email = "reader@example.com"
	cfg.Jncep.Password = "secret"
	cfg.Jncep.AllowedHosts = []string{"j-novel.club"}
	return cfg
}

func assertCleaned(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Working directories left behind: %d", len(entries))
	}
}

const seriesURL = "https://j-novel.club/series/my-series"

func TestDownloadSingle(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{books: []string{"MySeries_Volume_1.epub"}}
	s := New(cfg, gen, zap.NewNop())

	p, err := s.Download(context.Background(), Request{URL: seriesURL, Parts: " 1 ", Requestor: "127.0.0.1:5555"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if p.Name != "MySeries_Volume_1.epub" || p.Kind != packager.KindEpub {
		t.Errorf("Unexpected payload %s (%s)", p.Name, p.Kind)
	}
	if string(p.Data) != "book MySeries_Volume_1.epub" {
		t.Errorf("Unexpected payload content: %q", p.Data)
	}
	if len(gen.calls) != 1 || gen.calls[0].Parts != "1" || gen.calls[0].Credentials.Email != "reader@example.com" {
		t.Errorf("Unexpected generator calls: %+v", gen.calls)
	}
	assertCleaned(t, cfg.Jncep.Output)
}

func TestDownloadSeveral(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{books: []string{"MySeries_Volume_1.epub", "MySeries_Volume_2.epub"}}
	s := New(cfg, gen, zap.NewNop())

	p, err := s.Download(context.Background(), Request{URL: seriesURL, Requestor: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if p.Name != "MySeries.zip" || p.Kind != packager.KindZip {
		t.Errorf("Unexpected payload %s (%s)", p.Name, p.Kind)
	}
	assertCleaned(t, cfg.Jncep.Output)
}

func TestDownloadEncodedURL(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{books: []string{"MySeries_Volume_1.epub"}}
	s := New(cfg, gen, zap.NewNop())

	if _, err := s.Download(context.Background(), Request{URL: "https%3A%2F%2Fj-novel.club%2Fseries%2Fmy-series"}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if gen.calls[0].URL != seriesURL {
		t.Errorf("URL was not decoded: %q", gen.calls[0].URL)
	}
}

func TestDownloadInvalidInput(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not a url",
		"ftp://j-novel.club/series/my-series",
		"https://example.com/series/my-series",
		"https://j-novel.club.example.com/series/my-series",
	}
	for i, u := range cases {
		cfg := testConfig(t)
		gen := &fakeGenerator{}
		s := New(cfg, gen, zap.NewNop())
		if _, err := s.Download(context.Background(), Request{URL: u}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Case %d: expected ErrInvalidInput, got %v", i, err)
		}
		if len(gen.calls) != 0 {
			t.Errorf("Case %d: generator should not be called", i)
		}
		assertCleaned(t, cfg.Jncep.Output)
	}
}

func TestDownloadSubdomain(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, &fakeGenerator{books: []string{"A_Volume_1.epub"}}, zap.NewNop())
	if _, err := s.Download(context.Background(), Request{URL: "https://www.j-novel.club/series/a"}); err != nil {
		t.Errorf("Subdomain rejected: %v", err)
	}
}

func TestDownloadCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jncep.Email, cfg.Jncep.Password = "", ""
	gen := &fakeGenerator{books: []string{"MySeries_Volume_1.epub"}}
	s := New(cfg, gen, zap.NewNop())

	if _, err := s.Download(context.Background(), Request{URL: seriesURL}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Expected ErrNoCredentials, got %v", err)
	}

	creds := jncep.Credentials{Email: "other@example.com", Password: "pass"}
	if _, err := s.Download(context.Background(), Request{URL: seriesURL, Credentials: creds}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if gen.calls[0].Credentials != creds {
		t.Errorf("Credentials were not used: %+v", gen.calls[0].Credentials)
	}
}

func TestDownloadGenerationFailure(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{fail: []error{fmt.Errorf("%w: boom", jncep.ErrGeneration)}}
	s := New(cfg, gen, zap.NewNop())

	if _, err := s.Download(context.Background(), Request{URL: seriesURL, Requestor: "10.0.0.1"}); !errors.Is(err, jncep.ErrGeneration) {
		t.Errorf("Expected ErrGeneration, got %v", err)
	}
	assertCleaned(t, cfg.Jncep.Output)
}

func TestDownloadNoOutput(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, &fakeGenerator{}, zap.NewNop())

	if _, err := s.Download(context.Background(), Request{URL: seriesURL}); !errors.Is(err, packager.ErrNoOutput) {
		t.Errorf("Expected ErrNoOutput, got %v", err)
	}
	assertCleaned(t, cfg.Jncep.Output)
}

func TestDownloadPurchase(t *testing.T) {
	payment := fmt.Errorf("%w: 402", jncep.ErrPaymentRequired)

	t.Run("disabled", func(t *testing.T) {
		gen := &fakeGenerator{books: []string{"A_Volume_1.epub"}, fail: []error{payment}}
		s := New(testConfig(t), gen, zap.NewNop())
		if _, err := s.Download(context.Background(), Request{URL: seriesURL}); !errors.Is(err, jncep.ErrPaymentRequired) {
			t.Errorf("Expected ErrPaymentRequired, got %v", err)
		}
		if len(gen.calls) != 1 {
			t.Errorf("Unexpected retry")
		}
	})

	t.Run("retried", func(t *testing.T) {
		gen := &fakeGenerator{books: []string{"A_Volume_1.epub"}, fail: []error{payment}}
		buyer := &fakePurchaser{}
		s := New(testConfig(t), gen, zap.NewNop(), WithPurchaser(buyer))
		p, err := s.Download(context.Background(), Request{URL: seriesURL})
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if p.Name != "A_Volume_1.epub" || buyer.calls != 1 || len(gen.calls) != 2 {
			t.Errorf("Unexpected result %s, purchases %d, generations %d", p.Name, buyer.calls, len(gen.calls))
		}
	})

	t.Run("purchase failed", func(t *testing.T) {
		gen := &fakeGenerator{books: []string{"A_Volume_1.epub"}, fail: []error{payment}}
		buyer := &fakePurchaser{err: errors.New("no coins")}
		s := New(testConfig(t), gen, zap.NewNop(), WithPurchaser(buyer))
		if _, err := s.Download(context.Background(), Request{URL: seriesURL}); !errors.Is(err, jncep.ErrPaymentRequired) {
			t.Errorf("Expected ErrPaymentRequired, got %v", err)
		}
		if len(gen.calls) != 1 {
			t.Errorf("Generation should not be retried")
		}
	})

	t.Run("retried once", func(t *testing.T) {
		gen := &fakeGenerator{fail: []error{payment, payment}}
		buyer := &fakePurchaser{}
		s := New(testConfig(t), gen, zap.NewNop(), WithPurchaser(buyer))
		if _, err := s.Download(context.Background(), Request{URL: seriesURL}); !errors.Is(err, jncep.ErrPaymentRequired) {
			t.Errorf("Expected ErrPaymentRequired, got %v", err)
		}
		if buyer.calls != 1 || len(gen.calls) != 2 {
			t.Errorf("Unexpected purchases %d, generations %d", buyer.calls, len(gen.calls))
		}
	})
}

func TestDownloadSendToKindle(t *testing.T) {
	gen := &fakeGenerator{books: []string{"A_Volume_1.epub"}}

	m := &fakeMailer{}
	s := New(testConfig(t), gen, zap.NewNop(), WithMailer(m))
	if !s.CanSendToKindle() {
		t.Fatal("Mailer not registered")
	}
	if _, err := s.Download(context.Background(), Request{URL: seriesURL, SendToKindle: true}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(m.sent) != 1 || m.sent[0] != "A_Volume_1.epub" {
		t.Errorf("Unexpected mail: %v", m.sent)
	}

	// delivery problems do not fail download
	m = &fakeMailer{err: errors.New("smtp down")}
	s = New(testConfig(t), gen, zap.NewNop(), WithMailer(m))
	if _, err := s.Download(context.Background(), Request{URL: seriesURL, SendToKindle: true}); err != nil {
		t.Errorf("Download failed: %v", err)
	}

	// not requested
	m = &fakeMailer{}
	s = New(testConfig(t), gen, zap.NewNop(), WithMailer(m))
	if _, err := s.Download(context.Background(), Request{URL: seriesURL}); err != nil || len(m.sent) != 0 {
		t.Errorf("Unexpected mail %v: %v", m.sent, err)
	}
}

func TestDownloadInspector(t *testing.T) {
	var seen []string
	inspect := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			seen = append(seen, e.Name())
		}
		return errors.New("ignored")
	}

	gen := &fakeGenerator{books: []string{"A_Volume_1.epub"}}
	cfg := testConfig(t)
	s := New(cfg, gen, zap.NewNop(), WithInspector(inspect))
	if _, err := s.Download(context.Background(), Request{URL: seriesURL}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != "A_Volume_1.epub" {
		t.Errorf("Unexpected directory content: %v", seen)
	}
	assertCleaned(t, cfg.Jncep.Output)
}
