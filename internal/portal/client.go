package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

const (
	userAgent      = "solardash/0.1"
	requestTimeout = 15 * time.Second
)

// ErrNotLoggedIn is returned by data fetches before a successful Login.
var ErrNotLoggedIn = errors.New("portal client not logged in")

// Resolution selects the aggregation window for history queries.
type Resolution string

const (
	ResolutionHour  Resolution = "hour"
	ResolutionDay   Resolution = "day"
	ResolutionMonth Resolution = "month"
	ResolutionYear  Resolution = "year"
)

// ParseResolution validates a query-string resolution, defaulting to day.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case "":
		return ResolutionDay, nil
	case ResolutionHour, ResolutionDay, ResolutionMonth, ResolutionYear:
		return Resolution(s), nil
	default:
		return "", fmt.Errorf("unknown resolution %q", s)
	}
}

// Client talks to the third-party energy portal on behalf of one set of
// decrypted credentials. It receives the triple via the session cache and
// never touches the vault store. The password is held only for re-login
// within the client's lifetime, which is bounded by the session.
//
// A Client is shared by every concurrent request of one browser session, so
// the login state is guarded by a mutex and Login coalesces concurrent
// callers into a single portal round trip.
type Client struct {
	username string
	password string
	baseURL  string
	http     *http.Client
	systemID string
	serial   string

	mu       sync.Mutex
	loggedIn bool
}

// NewClient builds a portal client from a decrypted credential record. The
// portal URL is expected in the dashboard form .../overview/{system}/{serial};
// both identifiers are recovered from the path.
func NewClient(rec vault.CredentialRecord) (*Client, error) {
	u, err := url.Parse(rec.PortalURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid portal URL %q", rec.PortalURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		username: rec.Username,
		password: rec.Password,
		baseURL:  u.Scheme + "://" + u.Host,
		http: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
		},
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 {
		c.systemID = parts[len(parts)-2]
		c.serial = parts[len(parts)-1]
	}

	return c, nil
}

// LoggedIn reports whether a Login has succeeded.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Login authenticates against the portal API and keeps the resulting session
// cookie in the jar. Calling Login on an already authenticated client is a
// no-op, and concurrent callers wait for the first attempt instead of racing
// their own.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("portal login: unexpected status %s", resp.Status)
	}

	c.loggedIn = true
	return nil
}

// Reading is one row of portal telemetry, in watts and percent.
type Reading struct {
	Timestamp    string  `json:"timestamp"`
	PVPower      float64 `json:"pv_power"`
	BatteryPower float64 `json:"battery_power"`
	GridPower    float64 `json:"grid_power"`
	Consumption  float64 `json:"consumption"`
	BatterySOC   float64 `json:"battery_soc"`
}

type historyResponse struct {
	Data []Reading `json:"data"`
}

// FetchLive returns the current system snapshot.
func (c *Client) FetchLive(ctx context.Context) (Reading, error) {
	var r Reading
	if !c.LoggedIn() {
		return r, ErrNotLoggedIn
	}

	endpoint := fmt.Sprintf("%s/api/systems/%s/live", c.baseURL, url.PathEscape(c.systemID))
	if err := c.getJSON(ctx, endpoint, url.Values{"serial": {c.serial}}, &r); err != nil {
		return r, fmt.Errorf("fetch live data: %w", err)
	}
	return r, nil
}

// FetchHistory returns aggregated rows between start and end (inclusive).
// Zero times default to the last 30 days.
func (c *Client) FetchHistory(ctx context.Context, start, end time.Time, res Resolution) ([]Reading, error) {
	if !c.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if res == "" {
		res = ResolutionDay
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}

	params := url.Values{
		"serial":     {c.serial},
		"start":      {start.Format("2006-01-02")},
		"end":        {end.Format("2006-01-02")},
		"resolution": {string(res)},
	}

	endpoint := fmt.Sprintf("%s/api/systems/%s/history", c.baseURL, url.PathEscape(c.systemID))
	var payload historyResponse
	if err := c.getJSON(ctx, endpoint, params, &payload); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return payload.Data, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
