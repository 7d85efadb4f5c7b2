package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"usbdrop/pkg/bus"
	"usbdrop/services/builder"
)

const defaultCampaignName = "Default Campaign"

const codeAttempts = 5

func (a *API) handleCreateDrive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampaignID string `json:"campaign_id"`
		ProfileID  string `json:"profile_id"`
		Label      string `json:"label"`
		Brand      string `json:"brand"`
		Capacity   string `json:"capacity"`
		Notes      string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	orm := a.store.ORM.WithContext(ctx)

	campaignID, err := a.resolveCampaign(orm, req.CampaignID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var profileID *uuid.UUID
	if strings.TrimSpace(req.ProfileID) != "" {
		id, err := uuid.Parse(req.ProfileID)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid profile_id: %w", err))
			return
		}
		var count int64
		if err := orm.Model(&profileModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if count == 0 {
			respondError(w, http.StatusBadRequest, errors.New("profile not found"))
			return
		}
		profileID = &id
	}

	code, err := a.uniqueDriveCode(orm)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	model := driveModel{
		ID:         uuid.New(),
		CampaignID: campaignID,
		ProfileID:  profileID,
		UniqueCode: code,
		Status:     builder.StatusCreated,
		Label:      req.Label,
		Brand:      req.Brand,
		Capacity:   req.Capacity,
		Notes:      req.Notes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := orm.Create(&model).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"drive": model.toAPI()})
}

// resolveCampaign parses an explicit campaign id or falls back to the shared
// default campaign, creating it on first use.
func (a *API) resolveCampaign(orm *gorm.DB, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid campaign_id: %w", err)
		}
		var count int64
		if err := orm.Model(&campaignModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return uuid.Nil, err
		}
		if count == 0 {
			return uuid.Nil, errors.New("campaign not found")
		}
		return id, nil
	}

	var existing campaignModel
	err := orm.Where("name = ?", defaultCampaignName).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		existing = campaignModel{
			ID:        uuid.New(),
			Name:      defaultCampaignName,
			Status:    "active",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := orm.Create(&existing).Error; err != nil {
			return uuid.Nil, err
		}
		return existing.ID, nil
	case err != nil:
		return uuid.Nil, err
	default:
		return existing.ID, nil
	}
}

func (a *API) uniqueDriveCode(orm *gorm.DB) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := generateDriveCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := orm.Model(&driveModel{}).Where("unique_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique drive code")
}

func (a *API) handleListDrives(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	q := a.store.ORM.WithContext(ctx).Model(&driveModel{}).Order("created_at DESC")
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if campaign := strings.TrimSpace(r.URL.Query().Get("campaign_id")); campaign != "" {
		id, err := uuid.Parse(campaign)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid campaign_id: %w", err))
			return
		}
		q = q.Where("campaign_id = ?", id)
	}

	var models []driveModel
	if err := q.Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	drives := make([]Drive, 0, len(models))
	for _, m := range models {
		drives = append(drives, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"drives": drives})
}

func (a *API) handleGetDrive(w http.ResponseWriter, r *http.Request) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"drive": model.toAPI()})
}

func (a *API) handleGetDriveByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		respondError(w, http.StatusBadRequest, errors.New("code is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model driveModel
	err := a.store.ORM.WithContext(ctx).Where("unique_code = ?", code).First(&model).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, errors.New("drive not found"))
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respondJSON(w, http.StatusOK, map[string]any{"drive": model.toAPI()})
	}
}

func (a *API) handleDeleteDrive(w http.ResponseWriter, r *http.Request) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}

	// Registry-side token deletion is best-effort; the rows cascade with the
	// drive either way.
	a.builder.DeleteDriveTokens(r.Context(), model.ID)

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if err := a.store.ORM.WithContext(ctx).Delete(&driveModel{}, "id = ?", model.ID).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": model.ID})
}

func (a *API) handlePrepareDrive(w http.ResponseWriter, r *http.Request) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}
	if model.ProfileID == nil {
		respondError(w, http.StatusBadRequest, errors.New("drive has no profile assigned"))
		return
	}

	profile, err := a.loadBuilderProfile(r, *model.ProfileID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	drive := builder.Drive{
		ID:          model.ID,
		Code:        model.UniqueCode,
		Status:      model.Status,
		ProfileName: profile.Name,
		CreatedAt:   model.CreatedAt,
	}

	manifest, err := a.builder.Prepare(r.Context(), drive, profile)
	switch {
	case errors.Is(err, builder.ErrInvalidState):
		respondError(w, http.StatusConflict, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	a.publishJSON(r.Context(), bus.SubjectDrivePrepared, map[string]any{
		"drive_id":   model.ID,
		"code":       model.UniqueCode,
		"file_count": manifest.FileCount,
	})
	respondJSON(w, http.StatusOK, map[string]any{"manifest": manifest})
}

func (a *API) handleDownloadPackage(w http.ResponseWriter, r *http.Request) {
	data, model, ok := a.assemblePackage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", model.UniqueCode+".zip"))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handlePublishPackage(w http.ResponseWriter, r *http.Request) {
	if a.store.S3 == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("package storage not configured"))
		return
	}

	data, model, ok := a.assemblePackage(w, r)
	if !ok {
		return
	}

	key := "packages/" + model.UniqueCode + ".zip"
	if err := a.store.S3.PutObject(r.Context(), a.config.PackagesBucket, key, data, "application/zip"); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	url, err := a.store.S3.PresignGet(r.Context(), a.config.PackagesBucket, key, a.config.PresignExpiry)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"bucket":     a.config.PackagesBucket,
		"key":        key,
		"url":        url,
		"expires_in": a.config.PresignExpiry.String(),
	})
}

func (a *API) assemblePackage(w http.ResponseWriter, r *http.Request) ([]byte, driveModel, bool) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return nil, driveModel{}, false
	}

	profileName := ""
	if model.ProfileID != nil {
		if profile, err := a.loadBuilderProfile(r, *model.ProfileID); err == nil {
			profileName = profile.Name
		}
	}

	drive := builder.Drive{
		ID:          model.ID,
		Code:        model.UniqueCode,
		Status:      model.Status,
		ProfileName: profileName,
		CreatedAt:   model.CreatedAt,
	}
	data, err := a.builder.Assemble(r.Context(), drive)
	switch {
	case errors.Is(err, builder.ErrInvalidState):
		respondError(w, http.StatusConflict, err)
		return nil, driveModel{}, false
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return nil, driveModel{}, false
	}
	return data, model, true
}

func (a *API) handleDeployDrive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude            *float64 `json:"latitude"`
		Longitude           *float64 `json:"longitude"`
		LocationName        string   `json:"location_name"`
		LocationDescription string   `json:"location_description"`
		LocationType        string   `json:"location_type"`
		Address             string   `json:"address"`
		City                string   `json:"city"`
		State               string   `json:"state"`
		Country             string   `json:"country"`
		DeployedBy          string   `json:"deployed_by"`
		Notes               string   `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	orm := a.store.ORM.WithContext(ctx)
	now := time.Now().UTC()

	if model.Status == builder.StatusPrepared {
		res := orm.Model(&driveModel{}).
			Where("id = ? AND status = ?", model.ID, builder.StatusPrepared).
			Updates(map[string]any{"status": builder.StatusDeployed, "deployed_at": now})
		if res.Error != nil {
			respondError(w, http.StatusInternalServerError, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			respondError(w, http.StatusConflict, fmt.Errorf("%w: drive is no longer %s", builder.ErrInvalidState, builder.StatusPrepared))
			return
		}
	} else if model.Status != builder.StatusDeployed {
		respondError(w, http.StatusConflict, fmt.Errorf("%w: cannot deploy drive in status %s", builder.ErrInvalidState, model.Status))
		return
	}

	deployment := deploymentModel{
		DriveID:             model.ID,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		LocationName:        req.LocationName,
		LocationDescription: req.LocationDescription,
		LocationType:        req.LocationType,
		Address:             req.Address,
		City:                req.City,
		State:               req.State,
		Country:             req.Country,
		DeployedBy:          req.DeployedBy,
		Notes:               req.Notes,
		DeployedAt:          now,
	}

	var existing deploymentModel
	err := orm.Where("drive_id = ?", model.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		deployment.ID = uuid.New()
		if err := orm.Create(&deployment).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	default:
		deployment.ID = existing.ID
		if err := orm.Model(&existing).Updates(&deployment).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	a.publishJSON(r.Context(), bus.SubjectDriveDeployed, map[string]any{
		"drive_id": model.ID,
		"code":     model.UniqueCode,
	})
	respondJSON(w, http.StatusOK, map[string]any{"deployment": deployment.toAPI()})
}

func (a *API) handleRecoverDrive(w http.ResponseWriter, r *http.Request) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	now := time.Now().UTC()

	res := a.store.ORM.WithContext(ctx).Model(&driveModel{}).
		Where("id = ? AND status IN ?", model.ID, []string{builder.StatusPrepared, builder.StatusDeployed, builder.StatusTriggered}).
		Updates(map[string]any{"status": builder.StatusRecovered, "recovered_at": now})
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusConflict, fmt.Errorf("%w: cannot recover drive in status %s", builder.ErrInvalidState, model.Status))
		return
	}

	a.publishJSON(r.Context(), bus.SubjectDriveRecovered, map[string]any{
		"drive_id": model.ID,
		"code":     model.UniqueCode,
	})
	respondJSON(w, http.StatusOK, map[string]any{"status": builder.StatusRecovered, "recovered_at": now})
}

func (a *API) handleDriveTokens(w http.ResponseWriter, r *http.Request) {
	model, ok := a.loadDrive(w, r)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var models []tokenModel
	if err := a.store.ORM.WithContext(ctx).Where("drive_id = ?", model.ID).Order("created_at").Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	tokens := make([]Token, 0, len(models))
	for _, m := range models {
		tokens = append(tokens, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (a *API) loadDrive(w http.ResponseWriter, r *http.Request) (driveModel, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid drive id: %w", err))
		return driveModel{}, false
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model driveModel
	err = a.store.ORM.WithContext(ctx).First(&model, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, errors.New("drive not found"))
		return driveModel{}, false
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return driveModel{}, false
	}
	return model, true
}

func (a *API) loadBuilderProfile(r *http.Request, id uuid.UUID) (builder.Profile, error) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model profileModel
	if err := a.store.ORM.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return builder.Profile{}, err
	}

	data, err := json.Marshal(model.FileStructure)
	if err != nil {
		return builder.Profile{}, err
	}
	var structure builder.FileStructure
	if err := json.Unmarshal(data, &structure); err != nil {
		return builder.Profile{}, fmt.Errorf("profile %s has a malformed file structure: %w", model.Name, err)
	}

	return builder.Profile{ID: model.ID, Name: model.Name, Structure: structure}, nil
}
