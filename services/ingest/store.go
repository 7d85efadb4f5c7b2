package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"usbdrop/pkg/geoip"
	"usbdrop/services/builder"
)

// tokenRef is the slice of a stored token the pipeline needs for correlation
// and notification.
type tokenRef struct {
	ID            uuid.UUID
	DriveID       uuid.UUID
	CanaryTokenID string
	TokenType     string
	Filename      string
	FilePath      string
}

// activation carries one decoded registry alert through recording.
type activation struct {
	SourceIP    string
	UserAgent   string
	Location    geoip.Location
	Payload     map[string]any
	TriggeredAt time.Time
}

// driveInfo is the drive context attached to outbound notifications.
type driveInfo struct {
	Code  string
	Label string
}

type store interface {
	resolveToken(ctx context.Context, candidate string) (tokenRef, bool, error)
	recordActivation(ctx context.Context, token tokenRef, act activation) (driveInfo, error)
}

type gormStore struct {
	orm *gorm.DB
}

// resolveToken matches the candidate against the registry token id first and
// the stored memo as a substring second. The first memo match wins.
func (s *gormStore) resolveToken(ctx context.Context, candidate string) (tokenRef, bool, error) {
	var model tokenModel
	err := s.orm.WithContext(ctx).First(&model, "canary_token_id = ?", candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.orm.WithContext(ctx).Where("memo LIKE ?", "%"+candidate+"%").First(&model).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tokenRef{}, false, nil
	}
	if err != nil {
		return tokenRef{}, false, err
	}
	return tokenRef{
		ID:            model.ID,
		DriveID:       model.DriveID,
		CanaryTokenID: model.CanaryTokenID,
		TokenType:     model.TokenType,
		Filename:      model.Filename,
		FilePath:      model.FilePath,
	}, true, nil
}

// recordActivation persists the trigger row and advances token and drive
// state in one transaction. The first-trigger timestamp is written exactly
// once under concurrent alerts, the last-trigger timestamp only moves
// forward, and the drive advances to triggered only from prepared or
// deployed.
func (s *gormStore) recordActivation(ctx context.Context, token tokenRef, act activation) (driveInfo, error) {
	var info driveInfo
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := triggerModel{
			ID:             uuid.New(),
			TokenID:        token.ID,
			SourceIP:       act.SourceIP,
			UserAgent:      act.UserAgent,
			AdditionalData: datatypes.JSONMap(act.Payload),
			RawPayload:     datatypes.JSONMap(act.Payload),
			TriggeredAt:    act.TriggeredAt,
		}
		if !act.Location.IsZero() {
			row.GeoCity = act.Location.City
			row.GeoRegion = act.Location.Region
			row.GeoCountry = act.Location.Country
			row.GeoCountryCode = act.Location.CountryCode
			row.GeoLatitude = &act.Location.Latitude
			row.GeoLongitude = &act.Location.Longitude
			row.GeoISP = act.Location.ISP
			row.GeoOrg = act.Location.Org
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		now := act.TriggeredAt
		res := tx.Model(&tokenModel{}).
			Where("id = ? AND first_triggered_at IS NULL", token.ID).
			Updates(map[string]any{"first_triggered_at": now, "last_triggered_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Model(&tokenModel{}).
				Where("id = ? AND (last_triggered_at IS NULL OR last_triggered_at < ?)", token.ID, now).
				Update("last_triggered_at", now).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&driveModel{}).
			Where("id = ? AND status IN ?", token.DriveID, []string{builder.StatusPrepared, builder.StatusDeployed}).
			Update("status", builder.StatusTriggered).Error; err != nil {
			return err
		}
		if err := tx.Model(&driveModel{}).
			Where("id = ? AND status = ? AND triggered_at IS NULL", token.DriveID, builder.StatusTriggered).
			Update("triggered_at", now).Error; err != nil {
			return err
		}

		var drive driveModel
		if err := tx.First(&drive, "id = ?", token.DriveID).Error; err != nil {
			return err
		}
		info = driveInfo{Code: drive.UniqueCode, Label: drive.Label}
		return nil
	})
	return info, err
}
