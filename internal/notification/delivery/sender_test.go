package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

func TestNewHTTPSender_Defaults(t *testing.T) {
	s := NewHTTPSender("key", "https://delivery.example.com/", 0)
	if s.BaseURL != "https://delivery.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", s.BaseURL)
	}
	if s.HTTPClient == nil || s.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient = %+v", s.HTTPClient)
	}
	if s.limiter.Limit() != 20 {
		t.Errorf("limit = %v, want 20", s.limiter.Limit())
	}
}

func TestSend_Success(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/email" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Idempotency-Key") != "idem" {
			t.Errorf("Idempotency-Key = %q", r.Header.Get("Idempotency-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := NewHTTPSender("key", server.URL, 100)
	err := s.Send(context.Background(), Message{Channel: "email", To: "a@example.com", Title: "Hi", Body: "Hello", IdempotencyKey: "idem"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "a@example.com" || got.Title != "Hi" || got.Body != "Hello" {
		t.Errorf("body = %+v", got)
	}
}

func TestSend_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		skipRetry bool
	}{
		{"bad request is final", http.StatusBadRequest, true},
		{"rate limited is retried", http.StatusTooManyRequests, false},
		{"server error is retried", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()
			err := NewHTTPSender("", server.URL, 100).Send(context.Background(), Message{Channel: "push", To: "u"})
			if err == nil {
				t.Fatal("Send should fail")
			}
			if errors.Is(err, asynq.SkipRetry) != tt.skipRetry {
				t.Errorf("SkipRetry = %v, want %v (%v)", !tt.skipRetry, tt.skipRetry, err)
			}
		})
	}
}

func TestSend_Unconfigured(t *testing.T) {
	err := NewHTTPSender("", "", 1).Send(context.Background(), Message{Channel: "email"})
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("Send without base URL = %v, want SkipRetry", err)
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	if err := s.Send(context.Background(), Message{Channel: "email", To: "ada@example.com", Title: "Invitation", Body: "secret"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "to=ada@example.com") || !strings.Contains(out, "channel=email") {
		t.Errorf("log = %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("body leaked into log: %s", out)
	}
}
