package canary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateToken(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/canarytoken/factory.create" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"canarytoken": map[string]any{
				"canarytoken": "tok123",
				"hostname":    "tok123.canary.example.com",
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	data, err := client.CreateToken(context.Background(), CreateRequest{
		Kind:        KindExcel,
		Memo:        "USB-AB12CD|Pay/A.xlsx",
		Email:       "alerts@example.com",
		RedirectURL: "https://rick.example.com/direct",
	})
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if data.Canarytoken != "tok123" {
		t.Errorf("token id = %q, want tok123", data.Canarytoken)
	}
	if gotPayload["factory_auth"] != "secret" {
		t.Errorf("factory_auth = %v", gotPayload["factory_auth"])
	}
	if gotPayload["kind"] != KindExcel {
		t.Errorf("kind = %v", gotPayload["kind"])
	}
	if gotPayload["redirect_url"] != "https://rick.example.com/direct" {
		t.Errorf("redirect_url = %v", gotPayload["redirect_url"])
	}
}

func TestCreateTokenUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "factory auth invalid", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "bad", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.CreateToken(context.Background(), CreateRequest{Kind: KindDNS, Memo: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.StatusCode)
	}
	if apiErr.Body != "factory auth invalid" {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestDownloadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("canarytoken"); got != "tok123" {
			t.Errorf("canarytoken = %q", got)
		}
		w.Write([]byte("xlsx-bytes"))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	data, err := client.DownloadToken(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("DownloadToken() error = %v", err)
	}
	if string(data) != "xlsx-bytes" {
		t.Errorf("payload = %q", data)
	}
}

func TestFetchToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/canarytoken/factory.fetch" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("canarytoken"); got != "tok123" {
			t.Errorf("canarytoken = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"canarytoken": map[string]any{
			"canarytoken": "tok123",
			"url":         "http://canary.local/t/tok123",
			"hostname":    "tok123.canary.local",
		}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	token, err := client.FetchToken(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("FetchToken() error = %v", err)
	}
	if token.Canarytoken != "tok123" || token.Hostname != "tok123.canary.local" {
		t.Errorf("unexpected token: %+v", token)
	}
}

func TestHasPayload(t *testing.T) {
	tests := []struct {
		kind string
		want bool
	}{
		{KindWord, true},
		{KindExcel, true},
		{KindPDF, true},
		{KindQRCode, true},
		{KindDNS, false},
		{KindWindowsDir, false},
		{KindAWSID, false},
	}
	for _, tt := range tests {
		if got := HasPayload(tt.kind); got != tt.want {
			t.Errorf("HasPayload(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
