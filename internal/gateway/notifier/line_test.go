package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushTextSendsBearerAndPayload(t *testing.T) {
	var got pushRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message/push" {
			t.Errorf("path = %s, want /message/push", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewLine(LineConfig{BaseURL: srv.URL, AccessToken: "token-123"})
	if err != nil {
		t.Fatalf("NewLine failed: %v", err)
	}
	if err := c.PushText(context.Background(), "U12345", "hello"); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if auth != "Bearer token-123" {
		t.Fatalf("authorization = %q", auth)
	}
	if got.To != "U12345" || len(got.Messages) != 1 || got.Messages[0].Text != "hello" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestPushTextWithImageAppendsImageMessage(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c, err := NewLine(LineConfig{BaseURL: srv.URL, AccessToken: "t"})
	if err != nil {
		t.Fatalf("NewLine failed: %v", err)
	}
	if err := c.PushTextWithImage(context.Background(), "U1", "chart", "https://example.com/c.png"); err != nil {
		t.Fatalf("PushTextWithImage failed: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Type != "image" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[1].OriginalContentURL != "https://example.com/c.png" {
		t.Fatalf("image url = %q", got.Messages[1].OriginalContentURL)
	}
}

func TestPushTextErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewLine(LineConfig{BaseURL: srv.URL, AccessToken: "bad"})
	if err != nil {
		t.Fatalf("NewLine failed: %v", err)
	}
	if err := c.PushText(context.Background(), "U1", "x"); err == nil {
		t.Fatal("non-2xx must surface as error")
	}
}

func TestNewLineRequiresToken(t *testing.T) {
	if _, err := NewLine(LineConfig{}); err == nil {
		t.Fatal("missing token should be rejected")
	}
}
