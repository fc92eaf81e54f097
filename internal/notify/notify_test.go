package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"modelguard/internal/config"
	"modelguard/internal/model"
)

func sampleRecord() model.AlertRecord {
	return model.AlertRecord{
		ID:           "a1",
		Identity:     "10.0.0.5",
		VerdictID:    "v1",
		Severity:     model.SeverityCritical,
		Reasons:      []string{"rate_limit_exceeded", "suspicious_pattern"},
		DispatchedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromConfig(t *testing.T) {
	cases := []struct {
		cfg  config.NotifierConfig
		name string
	}{
		{config.NotifierConfig{Type: "log"}, "log"},
		{config.NotifierConfig{Type: "webhook", WebhookURL: "http://example.com/hook"}, "webhook"},
		{config.NotifierConfig{Type: "smtp", SMTP: config.SMTPConfig{Addr: "mail:25", Sender: "a@b", Recipients: []string{"c@d"}}}, "smtp"},
	}
	for _, tc := range cases {
		n, err := FromConfig(tc.cfg, "prod-llm", nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.cfg.Type, err)
		}
		if n.Name() != tc.name {
			t.Fatalf("name = %q, want %q", n.Name(), tc.name)
		}
	}
	if _, err := FromConfig(config.NotifierConfig{Type: "carrier-pigeon"}, "prod-llm", nil); err == nil {
		t.Fatal("expected error for unknown notifier type")
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := &LogNotifier{}
	if err := n.Notify(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("log notifier returned %v", err)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, "prod-llm")
	if err := n.Notify(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["model"] != "prod-llm" {
		t.Fatalf("payload model = %v", got["model"])
	}
	alert, ok := got["alert"].(map[string]any)
	if !ok || alert["identity"] != "10.0.0.5" || alert["severity"] != "critical" {
		t.Fatalf("payload alert = %v", got["alert"])
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, "prod-llm")
	if err := n.Notify(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestSMTPNotifierMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n := NewSMTPNotifier(config.SMTPConfig{
		Addr:       "mail.example.com:587",
		Sender:     "modelguard@example.com",
		Recipients: []string{"security@example.com"},
	}, "prod-llm")
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}
	if err := n.Notify(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAddr != "mail.example.com:587" || gotFrom != "modelguard@example.com" {
		t.Fatalf("addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "security@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{
		"Subject: Security Alert: prod-llm - CRITICAL severity",
		"Identity: 10.0.0.5",
		"rate_limit_exceeded, suspicious_pattern",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("message missing %q:\n%s", want, body)
		}
	}
}

func TestSMTPNotifierHonorsContext(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{
		Addr:       "mail.example.com:587",
		Sender:     "a@b",
		Recipients: []string{"c@d"},
	}, "prod-llm")
	block := make(chan struct{})
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	defer close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := n.Notify(ctx, sampleRecord())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
