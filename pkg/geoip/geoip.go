package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Location is the best-effort geographic/ISP context for a source address.
// The zero value means "unknown"; every field is independently optional.
type Location struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	Latitude    float64
	Longitude   float64
	ISP         string
	Org         string
}

// IsZero reports whether no enrichment data was resolved.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Summary renders a short "City, Country" string for notifications.
func (l Location) Summary() string {
	parts := make([]string, 0, 2)
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if l.Country != "" {
		parts = append(parts, l.Country)
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, ", ")
}

// Client resolves IP addresses against an ip-api.com style endpoint.
type Client struct {
	apiURL string
	http   *http.Client
}

// NewClient creates a lookup client. A zero timeout defaults to 5 seconds.
func NewClient(apiURL string, timeout time.Duration) *Client {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = "http://ip-api.com/json"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiURL: apiURL,
		http:   &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Status      string  `json:"status"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
}

// Lookup resolves the address to a Location. Loopback, private, and
// unparseable addresses short-circuit to the zero Location without a call.
func (c *Client) Lookup(ctx context.Context, address string) (Location, error) {
	if !Routable(address) {
		return Location{}, nil
	}

	query := url.Values{}
	query.Set("fields", "status,country,countryCode,region,regionName,city,lat,lon,isp,org")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/"+url.PathEscape(address)+"?"+query.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo lookup %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo lookup %s: status %d", address, resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if decoded.Status != "success" {
		return Location{}, nil
	}

	return Location{
		Country:     decoded.Country,
		CountryCode: decoded.CountryCode,
		Region:      decoded.RegionName,
		City:        decoded.City,
		Latitude:    decoded.Lat,
		Longitude:   decoded.Lon,
		ISP:         decoded.ISP,
		Org:         decoded.Org,
	}, nil
}

// Routable reports whether the address is worth sending to the enrichment
// service: a parseable, non-loopback, non-private, non-link-local IP.
func Routable(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" || strings.EqualFold(address, "localhost") {
		return false
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return false
	}
	return true
}
