package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"usbdrop/pkg/geoip"
	"usbdrop/pkg/slack"
)

type recordedActivation struct {
	token tokenRef
	act   activation
}

type fakeStore struct {
	mu          sync.Mutex
	tokens      map[string]tokenRef // keyed by registry token id
	memos       map[string]tokenRef // keyed by stored memo
	resolved    []string
	activations []recordedActivation
	drive       driveInfo
}

func (f *fakeStore) resolveToken(_ context.Context, candidate string) (tokenRef, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, candidate)
	if tok, ok := f.tokens[candidate]; ok {
		return tok, true, nil
	}
	for memo, tok := range f.memos {
		if strings.Contains(memo, candidate) {
			return tok, true, nil
		}
	}
	return tokenRef{}, false, nil
}

func (f *fakeStore) recordActivation(_ context.Context, token tokenRef, act activation) (driveInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, recordedActivation{token: token, act: act})
	return f.drive, nil
}

func (f *fakeStore) recorded() []recordedActivation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedActivation, len(f.activations))
	copy(out, f.activations)
	return out
}

func newTestPipeline(t *testing.T, fs *fakeStore, geoURL string) *Pipeline {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	return &Pipeline{
		store:    fs,
		geo:      geoip.NewClient(geoURL, time.Second),
		notifier: slack.NewNotifier("", time.Second, logger),
		logger:   logger,
		queue:    make(chan map[string]any, 4),
		workers:  1,
	}
}

func testToken() tokenRef {
	return tokenRef{
		ID:            uuid.New(),
		DriveID:       uuid.New(),
		CanaryTokenID: "tok123abc",
		TokenType:     "doc-msexcel",
		Filename:      "payroll.xlsx",
		FilePath:      "Finance/payroll.xlsx",
	}
}

func TestProcessRecordsActivation(t *testing.T) {
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success", "country": "Netherlands", "city": "Amsterdam",
			"lat": 52.37, "lon": 4.89, "isp": "ExampleNet",
		})
	}))
	defer geoSrv.Close()

	tok := testToken()
	fs := &fakeStore{
		tokens: map[string]tokenRef{tok.CanaryTokenID: tok},
		drive:  driveInfo{Code: "USB-AB12CD"},
	}
	p := newTestPipeline(t, fs, geoSrv.URL)

	p.process(context.Background(), map[string]any{
		"token":     tok.CanaryTokenID,
		"src_ip":    "93.184.216.34",
		"useragent": "Mozilla/5.0",
	})

	got := fs.recorded()
	if len(got) != 1 {
		t.Fatalf("expected 1 activation, got %d", len(got))
	}
	act := got[0].act
	if got[0].token.ID != tok.ID {
		t.Errorf("activation bound to wrong token")
	}
	if act.SourceIP != "93.184.216.34" {
		t.Errorf("SourceIP = %q", act.SourceIP)
	}
	if act.UserAgent != "Mozilla/5.0" {
		t.Errorf("UserAgent = %q", act.UserAgent)
	}
	if act.Location.City != "Amsterdam" || act.Location.Country != "Netherlands" {
		t.Errorf("location not enriched: %+v", act.Location)
	}
	if act.TriggeredAt.IsZero() {
		t.Errorf("TriggeredAt not set")
	}
}

func TestProcessNoTokenIdentifier(t *testing.T) {
	fs := &fakeStore{tokens: map[string]tokenRef{}}
	p := newTestPipeline(t, fs, "http://127.0.0.1:0")

	p.process(context.Background(), map[string]any{"src_ip": "1.2.3.4", "kind": "noise"})

	if len(fs.resolved) != 0 {
		t.Errorf("resolveToken should not be called, got %v", fs.resolved)
	}
	if len(fs.recorded()) != 0 {
		t.Errorf("expected zero activations")
	}
}

func TestProcessUnknownToken(t *testing.T) {
	fs := &fakeStore{tokens: map[string]tokenRef{}}
	p := newTestPipeline(t, fs, "http://127.0.0.1:0")

	p.process(context.Background(), map[string]any{"token": "nosuchtoken"})

	if len(fs.recorded()) != 0 {
		t.Errorf("unknown token must not record an activation")
	}
}

func TestProcessMemoFallbackCorrelation(t *testing.T) {
	tok := testToken()
	fs := &fakeStore{
		tokens: map[string]tokenRef{},
		memos:  map[string]tokenRef{"USB-AB12CD|Finance/payroll.xlsx": tok},
		drive:  driveInfo{Code: "USB-AB12CD"},
	}
	p := newTestPipeline(t, fs, "http://127.0.0.1:0")

	p.process(context.Background(), map[string]any{"memo": "USB-AB12CD|Finance/payroll.xlsx"})

	if len(fs.resolved) != 1 || fs.resolved[0] != "USB-AB12CD" {
		t.Fatalf("expected memo prefix resolution, got %v", fs.resolved)
	}
	got := fs.recorded()
	if len(got) != 1 || got[0].token.ID != tok.ID {
		t.Fatalf("memo fallback did not correlate to the stored token")
	}
}

func TestProcessSkipsGeoForPrivateAddress(t *testing.T) {
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("geo endpoint must not be queried for private addresses")
	}))
	defer geoSrv.Close()

	tok := testToken()
	fs := &fakeStore{tokens: map[string]tokenRef{tok.CanaryTokenID: tok}}
	p := newTestPipeline(t, fs, geoSrv.URL)

	p.process(context.Background(), map[string]any{"token": tok.CanaryTokenID, "src_ip": "10.0.0.5"})

	got := fs.recorded()
	if len(got) != 1 {
		t.Fatalf("expected 1 activation, got %d", len(got))
	}
	if !got[0].act.Location.IsZero() {
		t.Errorf("private address must not produce a location")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	fs := &fakeStore{}
	p := newTestPipeline(t, fs, "http://127.0.0.1:0")
	p.queue = make(chan map[string]any, 1)

	if !p.Enqueue(map[string]any{"token": "a"}) {
		t.Fatalf("first enqueue should succeed")
	}
	if p.Enqueue(map[string]any{"token": "b"}) {
		t.Fatalf("enqueue into a full queue should report a drop")
	}
}

func TestRunDrainsQueue(t *testing.T) {
	tok := testToken()
	fs := &fakeStore{
		tokens: map[string]tokenRef{tok.CanaryTokenID: tok},
		drive:  driveInfo{Code: "USB-AB12CD"},
	}
	p := newTestPipeline(t, fs, "http://127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Enqueue(map[string]any{"token": tok.CanaryTokenID})

	deadline := time.After(2 * time.Second)
	for len(fs.recorded()) == 0 {
		select {
		case <-deadline:
			t.Fatal("activation was not recorded before the deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
