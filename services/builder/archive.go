package builder

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"usbdrop/pkg/canary"
)

const summaryFileName = "_README.txt"

// fetchFunc retrieves a token's file payload from the registry.
type fetchFunc func(ctx context.Context, tokenID string) ([]byte, error)

// Assemble reconstructs the drive's delivery package from its manifest as a
// zip archive. Per-entry fetch failures are logged and the entry skipped; the
// archive always contains at least the summary file.
func (b *Builder) Assemble(ctx context.Context, drive Drive) ([]byte, error) {
	if drive.Status == StatusCreated {
		return nil, fmt.Errorf("%w: drive %s has no manifest yet", ErrInvalidState, drive.Code)
	}

	var model driveModel
	if err := b.orm.WithContext(ctx).First(&model, "id = ?", drive.ID).Error; err != nil {
		return nil, fmt.Errorf("load drive %s: %w", drive.Code, err)
	}

	var manifest Manifest
	if len(model.Manifest) > 0 {
		if err := json.Unmarshal(model.Manifest, &manifest); err != nil {
			return nil, fmt.Errorf("decode manifest for %s: %w", drive.Code, err)
		}
	}

	var tokenModels []tokenModel
	if err := b.orm.WithContext(ctx).Where("drive_id = ?", drive.ID).Find(&tokenModels).Error; err != nil {
		return nil, fmt.Errorf("load tokens for %s: %w", drive.Code, err)
	}
	tokens := make(map[string]tokenModel, len(tokenModels))
	for _, tm := range tokenModels {
		tokens[tm.CanaryTokenID] = tm
	}

	return b.buildArchive(ctx, drive, manifest, tokens, b.registry.DownloadToken)
}

// buildArchive writes the package zip: folders and files in manifest order,
// then the summary entry.
func (b *Builder) buildArchive(ctx context.Context, drive Drive, manifest Manifest, tokens map[string]tokenModel, fetch fetchFunc) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, folder := range manifest.Folders {
		if _, err := zw.Create(folder + "/"); err != nil {
			return nil, fmt.Errorf("create folder entry %q: %w", folder, err)
		}
	}

	for _, file := range manifest.Files {
		if file.Path == "" || file.TokenID == "" {
			continue
		}
		content, ok := b.entryContent(ctx, file, tokens, fetch)
		if !ok {
			continue
		}
		w, err := zw.Create(file.Path)
		if err != nil {
			return nil, fmt.Errorf("create entry %q: %w", file.Path, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("write entry %q: %w", file.Path, err)
		}
	}

	w, err := zw.Create(summaryFileName)
	if err != nil {
		return nil, fmt.Errorf("create summary entry: %w", err)
	}
	if _, err := w.Write([]byte(driveSummary(drive))); err != nil {
		return nil, fmt.Errorf("write summary entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	packagesAssembled.Inc()
	return buf.Bytes(), nil
}

// entryContent resolves one manifest file to its bytes. Payload-bearing kinds
// are fetched from the registry; folder-display and credential kinds are
// synthesized locally.
func (b *Builder) entryContent(ctx context.Context, file ManifestFile, tokens map[string]tokenModel, fetch fetchFunc) ([]byte, bool) {
	switch {
	case canary.HasPayload(file.TokenType):
		content, err := fetch(ctx, file.TokenID)
		if err != nil {
			b.logger.Printf("WARN fetch content for %q: %v", file.Path, err)
			return nil, false
		}
		return content, true

	case file.TokenType == canary.KindWindowsDir:
		token, ok := tokens[file.TokenID]
		if !ok || token.URL == "" {
			b.logger.Printf("WARN no hostname recorded for folder token %q", file.Path)
			return nil, false
		}
		return []byte(desktopINI(token.URL)), true

	case file.TokenType == canary.KindAWSID:
		token := tokens[file.TokenID]
		return []byte(awsCredentials(token.AWSAccessKeyID, token.AWSSecretKey)), true

	default:
		// DNS, web, and similar kinds have no on-disk representation.
		return nil, false
	}
}
