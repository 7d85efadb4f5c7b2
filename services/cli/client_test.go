package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCreateDrive(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/drives" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["label"] != "FINANCE" {
			t.Errorf("label not forwarded: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"drive": map[string]any{
			"id": id, "unique_code": "USB-3FA2B1", "status": "created",
		}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	drive, err := client.CreateDrive(context.Background(), CreateDriveRequest{Label: "FINANCE"})
	if err != nil {
		t.Fatalf("CreateDrive: %v", err)
	}
	if drive.ID != id || drive.UniqueCode != "USB-3FA2B1" {
		t.Fatalf("unexpected drive: %+v", drive)
	}
}

func TestGetDriveByCodeUppercases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/drives/code/USB-3FA2B1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"drive": map[string]any{"unique_code": "USB-3FA2B1"}})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second)
	if _, err := client.GetDriveByCode(context.Background(), "usb-3fa2b1"); err != nil {
		t.Fatalf("GetDriveByCode: %v", err)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid drive state: drive is prepared"})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second)
	_, err := client.PrepareDrive(context.Background(), uuid.NewString())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "invalid drive state") || !strings.Contains(err.Error(), "409") {
		t.Fatalf("error lacks API detail: %v", err)
	}
}

func TestDownloadPackage(t *testing.T) {
	payload := []byte("PK\x03\x04fake-zip")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(payload)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second)
	var buf bytes.Buffer
	if err := client.DownloadPackage(context.Background(), uuid.NewString(), &buf); err != nil {
		t.Fatalf("DownloadPackage: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("payload mismatch")
	}
}
