package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"usbdrop/services/ingest"
)

// handleCanaryWebhook accepts registry alerts in whatever shape the registry
// sends them. The sender always gets an acknowledgement; processing happens
// asynchronously so a slow database or geo lookup never backs up into the
// registry's retry loop.
func (a *API) handleCanaryWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeWebhookPayload(r)
	if err != nil {
		a.logger.Printf("WARN api: undecodable webhook payload: %v", err)
		respondJSON(w, http.StatusOK, map[string]any{"status": "received", "warning": "payload could not be decoded"})
		return
	}

	a.pipeline.Enqueue(payload)

	ack := map[string]any{"status": "received"}
	if !ingest.HasTokenID(payload) {
		ack["warning"] = "no token identifier in payload"
	}
	respondJSON(w, http.StatusOK, ack)
}

func decodeWebhookPayload(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	switch {
	case strings.Contains(contentType, "json") || contentType == "":
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	case contentType == "application/x-www-form-urlencoded", contentType == "multipart/form-data":
		var err error
		if contentType == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return nil, err
		}
		payload := make(map[string]any, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				payload[key] = values[0]
			}
		}
		return payload, nil
	default:
		return nil, errors.New("unsupported content type: " + contentType)
	}
}
