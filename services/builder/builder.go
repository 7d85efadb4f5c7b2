package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"usbdrop/pkg/canary"
)

// ErrInvalidState is returned when an operation is attempted against a drive
// whose lifecycle status does not permit it. It is fatal to the single call
// and performs no side effect.
var ErrInvalidState = errors.New("invalid drive state")

// maxConcurrentCreates bounds parallel registry calls during provisioning.
const maxConcurrentCreates = 4

// Builder provisions decoy tokens for drives and assembles their delivery
// packages.
type Builder struct {
	orm      *gorm.DB
	registry *canary.Client
	logger   *log.Logger

	alertEmail   string
	redirectBase string
}

// Option tweaks Builder construction.
type Option func(*Builder)

// WithRedirectBase overrides the landing-page base URL for themed redirects.
func WithRedirectBase(base string) Option {
	return func(b *Builder) { b.redirectBase = base }
}

// New creates a Builder bound to the provided dependencies.
func New(orm *gorm.DB, registry *canary.Client, alertEmail string, logger *log.Logger, opts ...Option) (*Builder, error) {
	if registry == nil {
		return nil, errors.New("registry client is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	b := &Builder{
		orm:        orm,
		registry:   registry,
		logger:     logger,
		alertEmail: alertEmail,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Prepare registers one decoy token per file entry in the profile and
// persists the resulting token records and manifest. Individual entry
// failures are logged and omitted from the manifest; they never abort the
// remaining entries. The drive moves created -> prepared even when some
// entries failed.
func (b *Builder) Prepare(ctx context.Context, drive Drive, profile Profile) (Manifest, error) {
	if drive.Status != StatusCreated {
		return Manifest{}, fmt.Errorf("%w: drive %s is %q, prepare requires %q", ErrInvalidState, drive.Code, drive.Status, StatusCreated)
	}
	if profile.ID == uuid.Nil {
		return Manifest{}, fmt.Errorf("%w: drive %s has no profile assigned", ErrInvalidState, drive.Code)
	}

	results := b.provision(ctx, drive.Code, profile.Structure.Files)
	manifest, tokens := collectResults(results, profile.Structure.Folders, time.Now().UTC())

	for _, res := range results {
		if res.err != nil {
			tokenFailures.Inc()
			b.logger.Printf("ERROR provision %s entry %q: %v", drive.Code, res.entry.Path(), res.err)
		}
	}
	tokensProvisioned.Add(float64(manifest.FileCount))

	if err := b.persistPrepared(ctx, drive.ID, manifest, tokens); err != nil {
		return Manifest{}, err
	}

	b.logger.Printf("INFO prepared drive %s: %d/%d entries provisioned", drive.Code, manifest.FileCount, len(profile.Structure.Files))
	return manifest, nil
}

// provision registers tokens for the given entries with bounded parallelism.
// The returned slice is indexed by declared entry order regardless of
// completion order.
func (b *Builder) provision(ctx context.Context, code string, entries []FileEntry) []entryResult {
	results := make([]entryResult, len(entries))
	sem := make(chan struct{}, maxConcurrentCreates)

	var wg sync.WaitGroup
	for i, entry := range entries {
		if entry.Name == "" || entry.Type == "" {
			results[i] = entryResult{entry: entry, skip: true}
			continue
		}

		wg.Add(1)
		go func(i int, entry FileEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = b.provisionEntry(ctx, code, entry)
		}(i, entry)
	}
	wg.Wait()

	return results
}

func (b *Builder) provisionEntry(ctx context.Context, code string, entry FileEntry) entryResult {
	path := entry.Path()
	memo := code + memoDelimiter + path

	redirectURL := ""
	if entry.RedirectTheme != "" {
		redirectURL = b.redirectURLFor(entry.RedirectTheme)
	}

	data, err := b.registry.CreateToken(ctx, canary.CreateRequest{
		Kind:        entry.Type,
		Memo:        memo,
		Email:       b.alertEmail,
		RedirectURL: redirectURL,
	})
	if err != nil {
		return entryResult{entry: entry, err: fmt.Errorf("create token: %w", err)}
	}

	tokenURL := data.URL
	if tokenURL == "" {
		tokenURL = data.Hostname
	}

	var size int64
	hasContent := false
	if canary.HasPayload(entry.Type) {
		payload, err := b.registry.DownloadToken(ctx, data.Canarytoken)
		if err != nil {
			// The token exists and stays in the manifest; only its size is lost.
			b.logger.Printf("WARN download token %s for %s: %v", data.Canarytoken, path, err)
		} else {
			size = int64(len(payload))
			hasContent = true
		}
	}

	now := time.Now().UTC()
	return entryResult{
		entry: entry,
		token: tokenRecord{
			CanaryTokenID:  data.Canarytoken,
			TokenType:      entry.Type,
			Filename:       entry.Name,
			FilePath:       path,
			Memo:           memo,
			URL:            tokenURL,
			RedirectURL:    redirectURL,
			RedirectTheme:  entry.RedirectTheme,
			AWSAccessKeyID: data.AccessKeyID,
			AWSSecretKey:   data.SecretAccessKey,
		},
		file: ManifestFile{
			Path:       path,
			TokenID:    data.Canarytoken,
			TokenType:  entry.Type,
			SizeBytes:  size,
			HasContent: hasContent,
			CreatedAt:  now,
		},
	}
}

// collectResults folds per-entry results into a manifest, preserving declared
// order and dropping failed or skipped entries.
func collectResults(results []entryResult, folders []string, preparedAt time.Time) (Manifest, []tokenRecord) {
	manifest := Manifest{
		Folders:    folders,
		Files:      make([]ManifestFile, 0, len(results)),
		PreparedAt: preparedAt,
	}
	tokens := make([]tokenRecord, 0, len(results))

	for _, res := range results {
		if res.skip || res.err != nil {
			continue
		}
		manifest.Files = append(manifest.Files, res.file)
		manifest.TotalSizeBytes += res.file.SizeBytes
		tokens = append(tokens, res.token)
	}
	manifest.FileCount = len(manifest.Files)

	return manifest, tokens
}

// persistPrepared writes the token records and advances the drive to
// prepared in one transaction. The status update is conditional on the drive
// still being in created so a concurrent prepare cannot double-provision.
func (b *Builder) persistPrepared(ctx context.Context, driveID uuid.UUID, manifest Manifest, tokens []tokenRecord) error {
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	preparedAt := manifest.PreparedAt
	return b.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&driveModel{}).
			Where("id = ? AND status = ?", driveID, StatusCreated).
			Updates(map[string]any{
				"status":      StatusPrepared,
				"manifest":    manifestJSON,
				"prepared_at": preparedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: drive %s left created state during provisioning", ErrInvalidState, driveID)
		}

		for _, rec := range tokens {
			model := tokenModel{
				ID:             uuid.New(),
				DriveID:        driveID,
				CanaryTokenID:  rec.CanaryTokenID,
				TokenType:      rec.TokenType,
				Filename:       rec.Filename,
				FilePath:       rec.FilePath,
				Memo:           rec.Memo,
				URL:            rec.URL,
				RedirectURL:    rec.RedirectURL,
				RedirectTheme:  rec.RedirectTheme,
				AWSAccessKeyID: rec.AWSAccessKeyID,
				AWSSecretKey:   rec.AWSSecretKey,
				CreatedAt:      preparedAt,
			}
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("persist token %s: %w", rec.CanaryTokenID, err)
			}
		}
		return nil
	})
}

// DeleteDriveTokens removes a drive's tokens from the external registry,
// best-effort. Database rows are cascaded by the drive delete itself.
func (b *Builder) DeleteDriveTokens(ctx context.Context, driveID uuid.UUID) {
	var models []tokenModel
	if err := b.orm.WithContext(ctx).Where("drive_id = ?", driveID).Find(&models).Error; err != nil {
		b.logger.Printf("ERROR list tokens for drive %s: %v", driveID, err)
		return
	}
	for _, model := range models {
		if err := b.registry.DeleteToken(ctx, model.CanaryTokenID); err != nil {
			b.logger.Printf("WARN delete registry token %s: %v", model.CanaryTokenID, err)
		}
	}
}
