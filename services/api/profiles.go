package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gopkg.in/yaml.v3"
)

//go:embed seed_profiles.yaml
var seedProfilesYAML []byte

type seedProfile struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	ScenarioType     string         `yaml:"scenario_type"`
	Theme            string         `yaml:"theme"`
	LabelSuggestions []string       `yaml:"label_suggestions"`
	FileStructure    map[string]any `yaml:"file_structure"`
	TokenConfig      map[string]any `yaml:"token_config"`
}

// SeedSystemProfiles upserts the built-in profiles shipped with the binary.
// A system profile already referenced by a drive is left untouched so that
// prepared manifests keep matching the profile they were built from.
func SeedSystemProfiles(ctx context.Context, orm *gorm.DB, logger *log.Logger) error {
	var seeds []seedProfile
	if err := yaml.Unmarshal(seedProfilesYAML, &seeds); err != nil {
		return fmt.Errorf("decode profile seeds: %w", err)
	}

	orm = orm.WithContext(ctx)
	for _, seed := range seeds {
		if seed.Name == "" {
			return errors.New("profile seed without a name")
		}

		labels, err := json.Marshal(seed.LabelSuggestions)
		if err != nil {
			return err
		}

		var existing profileModel
		err = orm.Where("name = ? AND is_system = ?", seed.Name, true).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now().UTC()
			model := profileModel{
				ID:               uuid.New(),
				Name:             seed.Name,
				Description:      seed.Description,
				ScenarioType:     seed.ScenarioType,
				Theme:            seed.Theme,
				FileStructure:    toJSONMap(seed.FileStructure),
				TokenConfig:      toJSONMap(seed.TokenConfig),
				LabelSuggestions: labels,
				IsSystem:         true,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := orm.Create(&model).Error; err != nil {
				return fmt.Errorf("seed profile %s: %w", seed.Name, err)
			}
			logger.Printf("INFO api: seeded system profile %s", seed.Name)
		case err != nil:
			return err
		default:
			var refs int64
			if err := orm.Model(&driveModel{}).Where("profile_id = ?", existing.ID).Count(&refs).Error; err != nil {
				return err
			}
			if refs > 0 {
				continue
			}
			updates := map[string]any{
				"description":       seed.Description,
				"scenario_type":     seed.ScenarioType,
				"theme":             seed.Theme,
				"file_structure":    toJSONMap(seed.FileStructure),
				"token_config":      toJSONMap(seed.TokenConfig),
				"label_suggestions": labels,
				"updated_at":        time.Now().UTC(),
			}
			if err := orm.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("refresh profile %s: %w", seed.Name, err)
			}
		}
	}
	return nil
}
