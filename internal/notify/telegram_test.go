package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannelWithBaseURL("token123", "chat42", srv.URL+"/bot")
	err := ch.Send(context.Background(), Notification{
		Title:   "Autopilot run failed",
		Message: "details",
		Urgency: UrgencyUrgent,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody.ChatID != "chat42" {
		t.Errorf("chat_id = %s", gotBody.ChatID)
	}
	if !strings.Contains(gotBody.Text, "Autopilot run failed") {
		t.Errorf("text missing title: %q", gotBody.Text)
	}
	if !strings.Contains(gotBody.Text, "🚨") {
		t.Errorf("urgent message missing icon: %q", gotBody.Text)
	}
	if gotBody.ParseMode != "Markdown" {
		t.Errorf("parse_mode = %s", gotBody.ParseMode)
	}
}

func TestTelegramSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"bot was blocked"}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannelWithBaseURL("t", "c", srv.URL+"/bot")
	err := ch.Send(context.Background(), Notification{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "bot was blocked") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestUrgencyIcon(t *testing.T) {
	if urgencyIcon(UrgencyInfo) == urgencyIcon(UrgencyUrgent) {
		t.Error("urgency tiers should render differently")
	}
}
