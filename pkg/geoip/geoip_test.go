package geoip

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRoutable(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"empty", "", false},
		{"localhost name", "localhost", false},
		{"loopback v4", "127.0.0.1", false},
		{"loopback v6", "::1", false},
		{"private 10", "10.1.2.3", false},
		{"private 192", "192.168.0.10", false},
		{"link local", "169.254.1.1", false},
		{"unspecified", "0.0.0.0", false},
		{"garbage", "not-an-ip", false},
		{"public v4", "93.184.216.34", true},
		{"public v6", "2606:2800:220:1::1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Routable(tt.address); got != tt.want {
				t.Errorf("Routable(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/93.184.216.34" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "success",
			"country":     "United States",
			"countryCode": "US",
			"regionName":  "Massachusetts",
			"city":        "Norwell",
			"lat":         42.15,
			"lon":         -70.82,
			"isp":         "EdgeCast",
			"org":         "Verizon",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	loc, err := client.Lookup(context.Background(), "93.184.216.34")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if loc.City != "Norwell" || loc.CountryCode != "US" {
		t.Errorf("location = %+v", loc)
	}
	if got := loc.Summary(); got != "Norwell, United States" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestLookupFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "fail", "message": "reserved range"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	loc, err := client.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !loc.IsZero() {
		t.Errorf("location = %+v, want zero", loc)
	}
}

func TestLookupSkipsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("enrichment endpoint called for loopback address")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	loc, err := client.Lookup(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !loc.IsZero() {
		t.Errorf("location = %+v, want zero", loc)
	}
}
