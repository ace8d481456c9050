package mailer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"

	"jncweb/config"
	"jncweb/packager"
)

type recorder struct {
	sent []*gomail.Message
	err  error
}

func (r *recorder) DialAndSend(m ...*gomail.Message) error {
	r.sent = append(r.sent, m...)
	return r.err
}

func validConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Server:   "smtp.example.com",
		Port:     587,
		User:     "user",
		Password: "password",
		From:     "reader@example.com",
		To:       "reader@kindle.com",
	}
}

func TestNewRejectsIncompleteConfiguration(t *testing.T) {
	cfg := validConfig()
	cfg.To = "not an address"
	if _, err := New(cfg, &recorder{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSend(t *testing.T) {
	rec := &recorder{}
	m, err := New(validConfig(), rec)
	if err != nil {
		t.Fatal(err)
	}

	p := &packager.Payload{Name: "MySeries_Volume_1.epub", Kind: packager.KindEpub, Data: []byte("book content")}
	if err := m.Send(p); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("Expected one message, got %d", len(rec.sent))
	}

	var buf bytes.Buffer
	if _, err := rec.sent[0].WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"To: \"kindle\" <reader@kindle.com>", "MySeries_Volume_1.epub", "application/epub+zip"} {
		if !strings.Contains(out, want) {
			t.Errorf("Message does not contain %q", want)
		}
	}
}

func TestSendFailure(t *testing.T) {
	m, err := New(validConfig(), &recorder{err: errors.New("connection refused")})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Send(&packager.Payload{Name: "a.epub", Data: []byte("x")}); err == nil {
		t.Error("Expected error")
	}
}
