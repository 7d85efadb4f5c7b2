package api

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"usbdrop/pkg/db"
)

type triggerReportRow struct {
	TriggeredAt time.Time `db:"triggered_at"`
	DriveCode   string    `db:"drive_code"`
	DriveLabel  string    `db:"drive_label"`
	TokenType   string    `db:"token_type"`
	FilePath    string    `db:"file_path"`
	SourceIP    string    `db:"source_ip"`
	GeoCity     string    `db:"geo_city"`
	GeoCountry  string    `db:"geo_country"`
	UserAgent   string    `db:"user_agent"`
}

const triggerReportQuery = `
SELECT tr.triggered_at,
       d.unique_code AS drive_code,
       COALESCE(d.label, '') AS drive_label,
       t.token_type,
       COALESCE(t.file_path, '') AS file_path,
       COALESCE(tr.source_ip, '') AS source_ip,
       COALESCE(tr.geo_city, '') AS geo_city,
       COALESCE(tr.geo_country, '') AS geo_country,
       COALESCE(tr.user_agent, '') AS user_agent
FROM triggers tr
JOIN tokens t ON t.id = tr.token_id
JOIN drives d ON d.id = t.drive_id
WHERE tr.triggered_at >= $1
ORDER BY tr.triggered_at DESC`

type activitySummaryRow struct {
	TotalDrives     int64 `db:"total_drives"`
	DeployedDrives  int64 `db:"deployed_drives"`
	TriggeredDrives int64 `db:"triggered_drives"`
	TotalTokens     int64 `db:"total_tokens"`
	TotalTriggers   int64 `db:"total_triggers"`
	TriggersLast7d  int64 `db:"triggers_last_7d"`
}

const activitySummaryQuery = `
SELECT (SELECT COUNT(*) FROM drives) AS total_drives,
       (SELECT COUNT(*) FROM drives WHERE status = 'deployed') AS deployed_drives,
       (SELECT COUNT(*) FROM drives WHERE status = 'triggered') AS triggered_drives,
       (SELECT COUNT(*) FROM tokens) AS total_tokens,
       (SELECT COUNT(*) FROM triggers) AS total_triggers,
       (SELECT COUNT(*) FROM triggers WHERE triggered_at >= $1) AS triggers_last_7d`

// handleActivitySummary returns campaign-wide counts for dashboards.
func (a *API) handleActivitySummary(w http.ResponseWriter, r *http.Request) {
	if a.store.DB == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("report queries not configured"))
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -7)
	var row activitySummaryRow
	if err := db.Get(r.Context(), a.store.DB, &row, activitySummaryQuery, since); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"drives": map[string]any{
			"total":     row.TotalDrives,
			"deployed":  row.DeployedDrives,
			"triggered": row.TriggeredDrives,
		},
		"tokens": map[string]any{"total": row.TotalTokens},
		"triggers": map[string]any{
			"total":       row.TotalTriggers,
			"last_7_days": row.TriggersLast7d,
		},
	})
}

// handleTriggersCSV streams trigger activity as CSV. The optional "days"
// query parameter bounds the window, defaulting to 30.
func (a *API) handleTriggersCSV(w http.ResponseWriter, r *http.Request) {
	if a.store.DB == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("report queries not configured"))
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("days must be a positive integer"))
			return
		}
		days = n
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []triggerReportRow
	if err := db.Select(r.Context(), a.store.DB, &rows, triggerReportQuery, since); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="triggers.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"triggered_at", "drive_code", "drive_label", "token_type", "file_path", "source_ip", "city", "country", "user_agent"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.TriggeredAt.UTC().Format(time.RFC3339),
			row.DriveCode,
			row.DriveLabel,
			row.TokenType,
			row.FilePath,
			row.SourceIP,
			row.GeoCity,
			row.GeoCountry,
			row.UserAgent,
		})
	}
	cw.Flush()
}
