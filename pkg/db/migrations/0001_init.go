package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Campaign struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:text;not null"`
	Description string    `gorm:"type:text"`
	Status      string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Profile struct {
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

type Drive struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	CampaignID  uuid.UUID      `gorm:"type:uuid;not null;index"`
	ProfileID   *uuid.UUID     `gorm:"type:uuid"`
	UniqueCode  string         `gorm:"type:text;uniqueIndex;not null"`
	Status      string         `gorm:"type:text;not null;default:'created';index"`
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
	Campaign    Campaign       `gorm:"foreignKey:CampaignID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Profile     Profile        `gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

type Token struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DriveID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	CanaryTokenID    string     `gorm:"type:text;uniqueIndex;not null"`
	TokenType        string     `gorm:"type:text;not null"`
	Filename         string     `gorm:"type:text"`
	FilePath         string     `gorm:"type:text"`
	Memo             string     `gorm:"type:text;index"`
	URL              string     `gorm:"type:text"`
	RedirectURL      string     `gorm:"type:text"`
	RedirectTheme    string     `gorm:"type:text"`
	AWSAccessKeyID   string     `gorm:"type:text"`
	AWSSecretKey     string     `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	FirstTriggeredAt *time.Time `gorm:"type:timestamptz"`
	LastTriggeredAt  *time.Time `gorm:"type:timestamptz"`
	Drive            Drive      `gorm:"foreignKey:DriveID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Trigger struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TokenID        uuid.UUID         `gorm:"type:uuid;not null;index"`
	SourceIP       string            `gorm:"type:text"`
	UserAgent      string            `gorm:"type:text"`
	GeoCity        string            `gorm:"type:text"`
	GeoRegion      string            `gorm:"type:text"`
	GeoCountry     string            `gorm:"type:text"`
	GeoCountryCode string            `gorm:"type:text"`
	GeoLatitude    *float64          `gorm:"type:double precision"`
	GeoLongitude   *float64          `gorm:"type:double precision"`
	GeoISP         string            `gorm:"type:text"`
	GeoOrg         string            `gorm:"type:text"`
	AdditionalData datatypes.JSONMap `gorm:"type:jsonb"`
	RawPayload     datatypes.JSONMap `gorm:"type:jsonb"`
	TriggeredAt    time.Time         `gorm:"type:timestamptz;not null;index"`
	CreatedAt      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Token          Token             `gorm:"foreignKey:TokenID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Deployment struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DriveID             uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	Latitude            *float64   `gorm:"type:double precision"`
	Longitude           *float64   `gorm:"type:double precision"`
	LocationName        string     `gorm:"type:text"`
	LocationDescription string     `gorm:"type:text"`
	LocationType        string     `gorm:"type:text"`
	Address             string     `gorm:"type:text"`
	City                string     `gorm:"type:text"`
	State               string     `gorm:"type:text"`
	Country             string     `gorm:"type:text"`
	DeployedBy          string     `gorm:"type:text"`
	Notes               string     `gorm:"type:text"`
	DeployedAt          time.Time  `gorm:"type:timestamptz;not null"`
	Drive               Drive      `gorm:"foreignKey:DriveID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Campaign{},
		&Profile{},
		&Drive{},
		&Token{},
		&Trigger{},
		&Deployment{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&Drive{}, "Campaign"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Drive{}, "Profile"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Token{}, "Drive"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Trigger{}, "Token"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Deployment{}, "Drive"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).Migrator().DropTable(
		&Deployment{},
		&Trigger{},
		&Token{},
		&Drive{},
		&Profile{},
		&Campaign{},
	); err != nil {
		return err
	}

	return nil
}
