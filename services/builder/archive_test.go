package builder

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"usbdrop/pkg/canary"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %q: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %q: %v", f.Name, err)
		}
		entries[f.Name] = string(content)
	}
	return entries
}

func archiveFixture() (Drive, Manifest, map[string]tokenModel) {
	drive := Drive{
		ID:          uuid.New(),
		Code:        "USB-AB12CD",
		Status:      StatusPrepared,
		ProfileName: "Payroll",
		CreatedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	manifest := Manifest{
		Folders: []string{"Pay"},
		Files: []ManifestFile{
			{Path: "Pay/A.xlsx", TokenID: "tok-excel", TokenType: canary.KindExcel, SizeBytes: 5, HasContent: true},
			{Path: "Pay/readme.ini", TokenID: "tok-dir", TokenType: canary.KindWindowsDir},
			{Path: "creds.txt", TokenID: "tok-aws", TokenType: canary.KindAWSID},
			{Path: "", TokenID: "tok-broken", TokenType: canary.KindDNS},
		},
	}
	tokens := map[string]tokenModel{
		"tok-dir": {CanaryTokenID: "tok-dir", URL: "dir.canary.example.com"},
		"tok-aws": {CanaryTokenID: "tok-aws", AWSAccessKeyID: "AKIAEXAMPLE123456789", AWSSecretKey: "secret"},
	}
	return drive, manifest, tokens
}

func TestBuildArchive(t *testing.T) {
	b := &Builder{logger: testLogger()}
	drive, manifest, tokens := archiveFixture()

	fetch := func(ctx context.Context, tokenID string) ([]byte, error) {
		if tokenID != "tok-excel" {
			t.Errorf("unexpected fetch for %q", tokenID)
		}
		return []byte("xlsx!"), nil
	}

	data, err := b.buildArchive(context.Background(), drive, manifest, tokens, fetch)
	if err != nil {
		t.Fatalf("buildArchive() error = %v", err)
	}

	entries := readArchive(t, data)

	if got := entries["Pay/A.xlsx"]; got != "xlsx!" {
		t.Errorf("excel entry = %q", got)
	}
	if got := entries["Pay/readme.ini"]; !strings.Contains(got, "dir.canary.example.com") {
		t.Errorf("desktop.ini entry = %q", got)
	}
	if got := entries["creds.txt"]; !strings.Contains(got, "AKIAEXAMPLE123456789") {
		t.Errorf("credentials entry = %q", got)
	}
	summary, ok := entries[summaryFileName]
	if !ok {
		t.Fatalf("missing %s, entries: %v", summaryFileName, entries)
	}
	if !strings.Contains(summary, "USB-AB12CD") || !strings.Contains(summary, "Payroll") {
		t.Errorf("summary = %q", summary)
	}
	if _, ok := entries["Pay/"]; !ok {
		t.Error("missing folder entry Pay/")
	}
}

func TestBuildArchiveSkipsFailedFetches(t *testing.T) {
	b := &Builder{logger: testLogger()}
	drive, manifest, tokens := archiveFixture()

	fetch := func(ctx context.Context, tokenID string) ([]byte, error) {
		return nil, errors.New("registry unreachable")
	}

	data, err := b.buildArchive(context.Background(), drive, manifest, tokens, fetch)
	if err != nil {
		t.Fatalf("buildArchive() error = %v", err)
	}

	entries := readArchive(t, data)
	if _, ok := entries["Pay/A.xlsx"]; ok {
		t.Error("entry with failed fetch should be skipped")
	}
	// Synthesized entries and the summary survive a dead registry.
	if _, ok := entries["Pay/readme.ini"]; !ok {
		t.Error("desktop.ini entry missing")
	}
	if _, ok := entries[summaryFileName]; !ok {
		t.Error("summary entry missing")
	}
}

func TestBuildArchiveEmptyManifest(t *testing.T) {
	b := &Builder{logger: testLogger()}
	drive := Drive{ID: uuid.New(), Code: "USB-EMPTY1", Status: StatusPrepared, CreatedAt: time.Now()}

	data, err := b.buildArchive(context.Background(), drive, Manifest{}, nil, nil)
	if err != nil {
		t.Fatalf("buildArchive() error = %v", err)
	}

	entries := readArchive(t, data)
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want only summary", entries)
	}
	if _, ok := entries[summaryFileName]; !ok {
		t.Error("summary entry missing")
	}
}

func TestAwsCredentialsPlaceholders(t *testing.T) {
	got := awsCredentials("", "")
	if !strings.Contains(got, placeholderAccessKeyID) || !strings.Contains(got, placeholderSecretKey) {
		t.Errorf("awsCredentials placeholder output = %q", got)
	}

	got = awsCredentials("AKIAREAL", "realsecret")
	if !strings.Contains(got, "AKIAREAL") || !strings.Contains(got, "realsecret") {
		t.Errorf("awsCredentials output = %q", got)
	}
}

func TestDesktopINI(t *testing.T) {
	got := desktopINI("tok.canary.example.com")
	if !strings.Contains(got, "[.ShellClassInfo]") {
		t.Errorf("desktopINI output = %q", got)
	}
	if !strings.Contains(got, `\\tok.canary.example.com\icon.ico`) {
		t.Errorf("desktopINI output = %q", got)
	}
}

func TestAssembleRequiresManifest(t *testing.T) {
	b := &Builder{logger: testLogger()}
	drive := Drive{ID: uuid.New(), Code: "USB-AB12CD", Status: StatusCreated}
	_, err := b.Assemble(context.Background(), drive)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Assemble() error = %v, want ErrInvalidState", err)
	}
}
