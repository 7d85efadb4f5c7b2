package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type tokenModel struct {
	ID               uuid.UUID `gorm:"column:id"`
	DriveID          uuid.UUID `gorm:"column:drive_id"`
	CanaryTokenID    string    `gorm:"column:canary_token_id"`
	TokenType        string    `gorm:"column:token_type"`
	Filename         string    `gorm:"column:filename"`
	FilePath         string    `gorm:"column:file_path"`
	Memo             string    `gorm:"column:memo"`
	FirstTriggeredAt *time.Time
	LastTriggeredAt  *time.Time
}

func (tokenModel) TableName() string { return "tokens" }

type driveModel struct {
	ID          uuid.UUID `gorm:"column:id"`
	UniqueCode  string    `gorm:"column:unique_code"`
	Label       string    `gorm:"column:label"`
	Status      string    `gorm:"column:status"`
	TriggeredAt *time.Time
}

func (driveModel) TableName() string { return "drives" }

type triggerModel struct {
	ID             uuid.UUID `gorm:"column:id"`
	TokenID        uuid.UUID `gorm:"column:token_id"`
	SourceIP       string    `gorm:"column:source_ip"`
	UserAgent      string    `gorm:"column:user_agent"`
	GeoCity        string    `gorm:"column:geo_city"`
	GeoRegion      string    `gorm:"column:geo_region"`
	GeoCountry     string    `gorm:"column:geo_country"`
	GeoCountryCode string    `gorm:"column:geo_country_code"`
	GeoLatitude    *float64  `gorm:"column:geo_latitude"`
	GeoLongitude   *float64  `gorm:"column:geo_longitude"`
	GeoISP         string    `gorm:"column:geo_isp"`
	GeoOrg         string    `gorm:"column:geo_org"`
	AdditionalData datatypes.JSONMap
	RawPayload     datatypes.JSONMap
	TriggeredAt    time.Time
}

func (triggerModel) TableName() string { return "triggers" }
