// Package cli implements the thin HTTP client behind the dropctl command.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"usbdrop/services/api"
)

// Client talks to the usbdrop API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateDriveRequest mirrors the drive creation endpoint.
type CreateDriveRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	ProfileID  string `json:"profile_id,omitempty"`
	Label      string `json:"label,omitempty"`
	Brand      string `json:"brand,omitempty"`
	Capacity   string `json:"capacity,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// DeployRequest mirrors the drive deploy endpoint.
type DeployRequest struct {
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LocationName        string   `json:"location_name,omitempty"`
	LocationDescription string   `json:"location_description,omitempty"`
	LocationType        string   `json:"location_type,omitempty"`
	Address             string   `json:"address,omitempty"`
	City                string   `json:"city,omitempty"`
	State               string   `json:"state,omitempty"`
	Country             string   `json:"country,omitempty"`
	DeployedBy          string   `json:"deployed_by,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

func (c *Client) CreateDrive(ctx context.Context, req CreateDriveRequest) (api.Drive, error) {
	var out struct {
		Drive api.Drive `json:"drive"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/drives", req, &out)
	return out.Drive, err
}

func (c *Client) ListDrives(ctx context.Context, status, campaignID string) ([]api.Drive, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if campaignID != "" {
		q.Set("campaign_id", campaignID)
	}
	path := "/v1/drives"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Drives []api.Drive `json:"drives"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Drives, err
}

// GetDriveByCode resolves a drive by its printed code.
func (c *Client) GetDriveByCode(ctx context.Context, code string) (api.Drive, error) {
	var out struct {
		Drive api.Drive `json:"drive"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/drives/code/"+url.PathEscape(strings.ToUpper(code)), nil, &out)
	return out.Drive, err
}

func (c *Client) PrepareDrive(ctx context.Context, id string) (json.RawMessage, error) {
	var out struct {
		Manifest json.RawMessage `json:"manifest"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/drives/"+id+"/prepare", struct{}{}, &out)
	return out.Manifest, err
}

// DownloadPackage streams the drive's zip archive to dest.
func (c *Client) DownloadPackage(ctx context.Context, id string, dest io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/drives/"+id+"/package", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	_, err = io.Copy(dest, resp.Body)
	return err
}

func (c *Client) DeployDrive(ctx context.Context, id string, req DeployRequest) (api.Deployment, error) {
	var out struct {
		Deployment api.Deployment `json:"deployment"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/drives/"+id+"/deploy", req, &out)
	return out.Deployment, err
}

func (c *Client) RecoverDrive(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/drives/"+id+"/recover", struct{}{}, nil)
}

func (c *Client) ListProfiles(ctx context.Context) ([]api.Profile, error) {
	var out struct {
		Profiles []api.Profile `json:"profiles"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/profiles", nil, &out)
	return out.Profiles, err
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("api: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("api: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
