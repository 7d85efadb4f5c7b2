package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var models []profileModel
	if err := a.store.ORM.WithContext(ctx).Order("is_system DESC, name").Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	profiles := make([]Profile, 0, len(models))
	for _, m := range models {
		profiles = append(profiles, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid profile id: %w", err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model profileModel
	err = a.store.ORM.WithContext(ctx).First(&model, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, errors.New("profile not found"))
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respondJSON(w, http.StatusOK, map[string]any{"profile": model.toAPI()})
	}
}
