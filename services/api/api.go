package api

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"usbdrop/services/builder"
	"usbdrop/services/ingest"
)

// Campaign is the owning reference row for a set of drives.
type Campaign struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Profile describes the decoy file layout and token mix written to a drive.
type Profile struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Description      string         `json:"description" db:"description"`
	ScenarioType     string         `json:"scenario_type" db:"scenario_type"`
	Theme            string         `json:"theme" db:"theme"`
	FileStructure    map[string]any `json:"file_structure" db:"file_structure"`
	TokenConfig      map[string]any `json:"token_config" db:"token_config"`
	LabelSuggestions []string       `json:"label_suggestions" db:"label_suggestions"`
	IsSystem         bool           `json:"is_system" db:"is_system"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// Drive models one physical USB drive moving through the lifecycle.
type Drive struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	CampaignID  uuid.UUID      `json:"campaign_id" db:"campaign_id"`
	ProfileID   *uuid.UUID     `json:"profile_id" db:"profile_id"`
	UniqueCode  string         `json:"unique_code" db:"unique_code"`
	Status      string         `json:"status" db:"status"`
	Label       string         `json:"label" db:"label"`
	Brand       string         `json:"brand" db:"brand"`
	Capacity    string         `json:"capacity" db:"capacity"`
	Manifest    map[string]any `json:"manifest" db:"manifest"`
	Notes       string         `json:"notes" db:"notes"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	PreparedAt  *time.Time     `json:"prepared_at" db:"prepared_at"`
	DeployedAt  *time.Time     `json:"deployed_at" db:"deployed_at"`
	TriggeredAt *time.Time     `json:"triggered_at" db:"triggered_at"`
	RecoveredAt *time.Time     `json:"recovered_at" db:"recovered_at"`
}

// Token is one registered canarytoken placed on a drive.
type Token struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	DriveID          uuid.UUID  `json:"drive_id" db:"drive_id"`
	CanaryTokenID    string     `json:"canary_token_id" db:"canary_token_id"`
	TokenType        string     `json:"token_type" db:"token_type"`
	Filename         string     `json:"filename" db:"filename"`
	FilePath         string     `json:"file_path" db:"file_path"`
	Memo             string     `json:"memo" db:"memo"`
	URL              string     `json:"url" db:"url"`
	RedirectURL      string     `json:"redirect_url" db:"redirect_url"`
	RedirectTheme    string     `json:"redirect_theme" db:"redirect_theme"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	FirstTriggeredAt *time.Time `json:"first_triggered_at" db:"first_triggered_at"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at" db:"last_triggered_at"`
}

// Deployment records where a drive was physically placed.
type Deployment struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	DriveID             uuid.UUID `json:"drive_id" db:"drive_id"`
	Latitude            *float64  `json:"latitude" db:"latitude"`
	Longitude           *float64  `json:"longitude" db:"longitude"`
	LocationName        string    `json:"location_name" db:"location_name"`
	LocationDescription string    `json:"location_description" db:"location_description"`
	LocationType        string    `json:"location_type" db:"location_type"`
	Address             string    `json:"address" db:"address"`
	City                string    `json:"city" db:"city"`
	State               string    `json:"state" db:"state"`
	Country             string    `json:"country" db:"country"`
	DeployedBy          string    `json:"deployed_by" db:"deployed_by"`
	Notes               string    `json:"notes" db:"notes"`
	DeployedAt          time.Time `json:"deployed_at" db:"deployed_at"`
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	PackagesBucket string
	PresignExpiry  time.Duration
}

// API wires dependencies and configuration for the HTTP handlers.
type API struct {
	store    *Store
	builder  *builder.Builder
	pipeline *ingest.Pipeline
	config   Config
	logger   *log.Logger
}

// New initialises the API layer with sane defaults applied to the provided
// configuration.
func New(store *Store, b *builder.Builder, pipeline *ingest.Pipeline, cfg Config, logger *log.Logger) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}
	if b == nil {
		return nil, errors.New("builder is required")
	}
	if pipeline == nil {
		return nil, errors.New("ingest pipeline is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}

	return &API{
		store:    store,
		builder:  b,
		pipeline: pipeline,
		config:   cfg,
		logger:   logger,
	}, nil
}
