package builder

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type driveModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Status     string         `gorm:"type:text"`
	Manifest   datatypes.JSON `gorm:"type:jsonb"`
	PreparedAt *time.Time     `gorm:"type:timestamptz"`
}

func (driveModel) TableName() string { return "drives" }

type tokenModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	DriveID        uuid.UUID `gorm:"type:uuid;not null"`
	CanaryTokenID  string    `gorm:"type:text;uniqueIndex;not null"`
	TokenType      string    `gorm:"type:text;not null"`
	Filename       string    `gorm:"type:text"`
	FilePath       string    `gorm:"type:text"`
	Memo           string    `gorm:"type:text"`
	URL            string    `gorm:"type:text"`
	RedirectURL    string    `gorm:"type:text"`
	RedirectTheme  string    `gorm:"type:text"`
	AWSAccessKeyID string    `gorm:"type:text"`
	AWSSecretKey   string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (tokenModel) TableName() string { return "tokens" }
