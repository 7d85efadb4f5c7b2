package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type campaignModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:text;not null"`
	Description string    `gorm:"type:text"`
	Status      string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (campaignModel) TableName() string { return "campaigns" }

func (c campaignModel) toAPI() Campaign {
	return Campaign{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type profileModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name             string            `gorm:"type:text;not null"`
	Description      string            `gorm:"type:text"`
	ScenarioType     string            `gorm:"type:text;not null"`
	Theme            string            `gorm:"type:text"`
	FileStructure    datatypes.JSONMap `gorm:"type:jsonb"`
	TokenConfig      datatypes.JSONMap `gorm:"type:jsonb"`
	LabelSuggestions datatypes.JSON    `gorm:"type:jsonb"`
	IsSystem         bool              `gorm:"type:boolean;not null;default:false"`
	CreatedAt        time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (profileModel) TableName() string { return "profiles" }

func (p profileModel) toAPI() Profile {
	var labels []string
	if len(p.LabelSuggestions) > 0 {
		_ = json.Unmarshal(p.LabelSuggestions, &labels)
	}
	return Profile{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		ScenarioType:     p.ScenarioType,
		Theme:            p.Theme,
		FileStructure:    mapFromJSONMap(p.FileStructure),
		TokenConfig:      mapFromJSONMap(p.TokenConfig),
		LabelSuggestions: labels,
		IsSystem:         p.IsSystem,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

type driveModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	CampaignID  uuid.UUID      `gorm:"type:uuid;not null"`
	ProfileID   *uuid.UUID     `gorm:"type:uuid"`
	UniqueCode  string         `gorm:"type:text;uniqueIndex;not null"`
	Status      string         `gorm:"type:text;not null;default:'created'"`
	Label       string         `gorm:"type:text"`
	Brand       string         `gorm:"type:text"`
	Capacity    string         `gorm:"type:text"`
	Manifest    datatypes.JSON `gorm:"type:jsonb"`
	Notes       string         `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	PreparedAt  *time.Time     `gorm:"type:timestamptz"`
	DeployedAt  *time.Time     `gorm:"type:timestamptz"`
	TriggeredAt *time.Time     `gorm:"type:timestamptz"`
	RecoveredAt *time.Time     `gorm:"type:timestamptz"`
}

func (driveModel) TableName() string { return "drives" }

func (d driveModel) toAPI() Drive {
	var manifest map[string]any
	if len(d.Manifest) > 0 {
		_ = json.Unmarshal(d.Manifest, &manifest)
	}
	return Drive{
		ID:          d.ID,
		CampaignID:  d.CampaignID,
		ProfileID:   d.ProfileID,
		UniqueCode:  d.UniqueCode,
		Status:      d.Status,
		Label:       d.Label,
		Brand:       d.Brand,
		Capacity:    d.Capacity,
		Manifest:    manifest,
		Notes:       d.Notes,
		CreatedAt:   d.CreatedAt,
		PreparedAt:  d.PreparedAt,
		DeployedAt:  d.DeployedAt,
		TriggeredAt: d.TriggeredAt,
		RecoveredAt: d.RecoveredAt,
	}
}

type tokenModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DriveID          uuid.UUID  `gorm:"type:uuid;not null"`
	CanaryTokenID    string     `gorm:"type:text;uniqueIndex;not null"`
	TokenType        string     `gorm:"type:text;not null"`
	Filename         string     `gorm:"type:text"`
	FilePath         string     `gorm:"type:text"`
	Memo             string     `gorm:"type:text;index"`
	URL              string     `gorm:"type:text"`
	RedirectURL      string     `gorm:"type:text"`
	RedirectTheme    string     `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	FirstTriggeredAt *time.Time `gorm:"type:timestamptz"`
	LastTriggeredAt  *time.Time `gorm:"type:timestamptz"`
}

func (tokenModel) TableName() string { return "tokens" }

func (t tokenModel) toAPI() Token {
	return Token{
		ID:               t.ID,
		DriveID:          t.DriveID,
		CanaryTokenID:    t.CanaryTokenID,
		TokenType:        t.TokenType,
		Filename:         t.Filename,
		FilePath:         t.FilePath,
		Memo:             t.Memo,
		URL:              t.URL,
		RedirectURL:      t.RedirectURL,
		RedirectTheme:    t.RedirectTheme,
		CreatedAt:        t.CreatedAt,
		FirstTriggeredAt: t.FirstTriggeredAt,
		LastTriggeredAt:  t.LastTriggeredAt,
	}
}

type deploymentModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	DriveID             uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Latitude            *float64  `gorm:"type:double precision"`
	Longitude           *float64  `gorm:"type:double precision"`
	LocationName        string    `gorm:"type:text"`
	LocationDescription string    `gorm:"type:text"`
	LocationType        string    `gorm:"type:text"`
	Address             string    `gorm:"type:text"`
	City                string    `gorm:"type:text"`
	State               string    `gorm:"type:text"`
	Country             string    `gorm:"type:text"`
	DeployedBy          string    `gorm:"type:text"`
	Notes               string    `gorm:"type:text"`
	DeployedAt          time.Time `gorm:"type:timestamptz;not null"`
}

func (deploymentModel) TableName() string { return "deployments" }

func (d deploymentModel) toAPI() Deployment {
	return Deployment{
		ID:                  d.ID,
		DriveID:             d.DriveID,
		Latitude:            d.Latitude,
		Longitude:           d.Longitude,
		LocationName:        d.LocationName,
		LocationDescription: d.LocationDescription,
		LocationType:        d.LocationType,
		Address:             d.Address,
		City:                d.City,
		State:               d.State,
		Country:             d.Country,
		DeployedBy:          d.DeployedBy,
		Notes:               d.Notes,
		DeployedAt:          d.DeployedAt,
	}
}

func mapFromJSONMap(src datatypes.JSONMap) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func toJSONMap(src map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	if src == nil {
		return out
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
