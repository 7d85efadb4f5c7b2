package slack

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendPostsBlocks(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second, log.New(io.Discard, "", 0))
	n.Send(context.Background(), []Block{
		Header("Token Triggered"),
		Section(Field("Drive", "USB-AB12CD"), Field("Source IP", "")),
	}, "fallback")

	if got["text"] != "fallback" {
		t.Errorf("text = %v", got["text"])
	}
	blocks, ok := got["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("blocks = %v", got["blocks"])
	}
}

func TestSendUnconfiguredIsNoop(t *testing.T) {
	n := NewNotifier("", time.Second, log.New(io.Discard, "", 0))
	if n.Enabled() {
		t.Error("Enabled() = true for empty webhook")
	}
	// Must not panic or block.
	n.Send(context.Background(), []Block{Header("x")}, "y")
}

func TestSendFailureIsAbsorbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second, log.New(io.Discard, "", 0))
	// Failure is logged only; Send has no error to return.
	n.Send(context.Background(), []Block{Header("x")}, "y")
}

func TestFieldDefaultsUnknown(t *testing.T) {
	f := Field("Location", "")
	if f.Text != "*Location:*\nUnknown" {
		t.Errorf("Field text = %q", f.Text)
	}
}
