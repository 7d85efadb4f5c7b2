package canary

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
)

// Token kinds understood by the factory API. Other kinds are passed through
// unchanged; the registry decides whether it can mint them.
const (
	KindDNS        = "dns"
	KindWord       = "doc-msword"
	KindExcel      = "doc-msexcel"
	KindPDF        = "pdf-acrobat-reader"
	KindWindowsDir = "windows-dir"
	KindAWSID      = "aws-id"
	KindQRCode     = "qr-code"
	KindWeb        = "http"
)

// downloadableKinds carry a document/image payload that can be fetched from
// the registry after creation.
var downloadableKinds = map[string]bool{
	KindWord:   true,
	KindExcel:  true,
	KindPDF:    true,
	KindQRCode: true,
}

// HasPayload reports whether tokens of the given kind have downloadable content.
func HasPayload(kind string) bool {
	return downloadableKinds[kind]
}

// Client talks to a self-hosted Canarytokens factory endpoint.
type Client struct {
	serverURL   string
	factoryAuth string
	http        *http.Client
}

// NewClient creates a Client for the given server. A zero timeout defaults to
// 30 seconds.
func NewClient(serverURL, factoryAuth string, timeout time.Duration) (*Client, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, errors.New("canary server url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serverURL:   serverURL,
		factoryAuth: factoryAuth,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

// APIError is returned for any non-2xx registry response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("canary api: status %d: %s", e.StatusCode, body)
}

// CreateRequest describes one token to mint.
type CreateRequest struct {
	Kind        string
	Memo        string
	Email       string
	RedirectURL string
	Extra       map[string]string
}

// TokenData is the registry's record of a minted token.
type TokenData struct {
	Canarytoken     string `json:"canarytoken"`
	URL             string `json:"url"`
	Hostname        string `json:"hostname"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type createResponse struct {
	Canarytoken TokenData `json:"canarytoken"`
}

// CreateToken mints a new token and returns the registry's record of it.
func (c *Client) CreateToken(ctx context.Context, req CreateRequest) (TokenData, error) {
	if strings.TrimSpace(req.Kind) == "" {
		return TokenData{}, errors.New("token kind is required")
	}
	if strings.TrimSpace(req.Memo) == "" {
		return TokenData{}, errors.New("token memo is required")
	}

	payload := map[string]any{
		"factory_auth": c.factoryAuth,
		"kind":         req.Kind,
		"memo":         req.Memo,
		"email":        req.Email,
	}
	if req.RedirectURL != "" {
		payload["redirect_url"] = req.RedirectURL
	}
	for k, v := range req.Extra {
		payload[k] = v
	}

	var resp createResponse
	if err := c.postJSON(ctx, "/api/v1/canarytoken/factory.create", payload, &resp); err != nil {
		return TokenData{}, err
	}
	if resp.Canarytoken.Canarytoken == "" {
		return TokenData{}, errors.New("canary api: create response missing token id")
	}
	return resp.Canarytoken, nil
}

// FetchToken retrieves the registry's record for an existing token.
func (c *Client) FetchToken(ctx context.Context, tokenID string) (TokenData, error) {
	data, err := c.get(ctx, "/api/v1/canarytoken/factory.fetch", tokenID)
	if err != nil {
		return TokenData{}, err
	}
	var resp createResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return TokenData{}, fmt.Errorf("decode fetch response: %w", err)
	}
	return resp.Canarytoken, nil
}

// DownloadToken returns the file payload for document-backed tokens.
func (c *Client) DownloadToken(ctx context.Context, tokenID string) ([]byte, error) {
	return c.get(ctx, "/api/v1/canarytoken/factory.download", tokenID)
}

// DeleteToken removes a token from the registry.
func (c *Client) DeleteToken(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return errors.New("token id is required")
	}
	payload := map[string]any{
		"factory_auth": c.factoryAuth,
		"canarytoken":  tokenID,
	}
	return c.postJSON(ctx, "/api/v1/canarytoken/factory.delete", payload, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, payload map[string]any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, tokenID string) ([]byte, error) {
	if strings.TrimSpace(tokenID) == "" {
		return nil, errors.New("token id is required")
	}

	query := url.Values{}
	query.Set("factory_auth", c.factoryAuth)
	query.Set("canarytoken", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
