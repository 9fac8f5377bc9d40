// Package remote reads client build information published by the service:
// the build number embedded in the web client's script bundles and the
// desktop client version from the update manifest.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL    = "https://discord.com"
	DefaultUpdatesURL = "https://updates.discord.com/distributions/app/manifests/latest"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// scriptsChecked is how many of the last listed bundles are searched.
	scriptsChecked = 5
	maxBodySize    = 32 << 20

	minBuildNumber = 100000
	maxBuildNumber = 9999999
)

var (
	// ErrBuildNumberNotFound is returned when no bundle carried a plausible build number.
	ErrBuildNumberNotFound = errors.New("build number not found")
	// ErrManifest is returned when the update manifest is missing or unusable.
	ErrManifest = errors.New("invalid update manifest")
)

var (
	scriptPath = regexp.MustCompile(`/assets/[a-z0-9-]+\.[a-f0-9]+\.js`)

	buildNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`buildNumber["\s:]+(\d{5,})`),
		regexp.MustCompile(`build_number["\s:]+(\d{5,})`),
		regexp.MustCompile(`buildNumber:\s*"?(\d{5,})"?`),
		regexp.MustCompile(`"buildNumber"\s*:\s*(\d+)`),
	}
)

// Client fetches build information over HTTPS.
type Client struct {
	BaseURL    string
	UpdatesURL string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the scraper at another web origin.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = u }
}

// WithUpdatesURL points FetchClientInfo at another manifest endpoint.
func WithUpdatesURL(u string) Option {
	return func(c *Client) { c.UpdatesURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient returns a Client for the production endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		UpdatesURL: DefaultUpdatesURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBuildNumber loads the login page, then searches the last few script
// bundles it references, newest first, for the client build number.
func (c *Client) FetchBuildNumber(ctx context.Context) (uint64, error) {
	page, err := c.get(ctx, c.BaseURL+"/login")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch login page: %w", err)
	}

	scripts := scriptPath.FindAllString(string(page), -1)
	c.Logger.Debug().Int("scripts", len(scripts)).Msg("Found script bundles")
	if len(scripts) == 0 {
		return 0, fmt.Errorf("%w: login page references no script bundles", ErrBuildNumberNotFound)
	}

	for i, checked := len(scripts)-1, 0; i >= 0 && checked < scriptsChecked; i, checked = i-1, checked+1 {
		body, err := c.get(ctx, c.BaseURL+scripts[i])
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.Logger.Debug().Str("script", scripts[i]).Err(err).Msg("Skipping script bundle")
			continue
		}
		if n, ok := findBuildNumber(body); ok {
			c.Logger.Info().Uint64("build_number", n).Str("script", scripts[i]).Msg("Found build number")
			return n, nil
		}
	}
	return 0, ErrBuildNumberNotFound
}

// findBuildNumber tries each pattern's first match and accepts the first
// value within the plausible build number range.
func findBuildNumber(js []byte) (uint64, bool) {
	for _, re := range buildNumberPatterns {
		m := re.FindSubmatch(js)
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		if n >= minBuildNumber && n <= maxBuildNumber {
			return n, true
		}
	}
	return 0, false
}

// ClientInfo is the desktop client version published in the update manifest.
type ClientInfo struct {
	HostVersion [3]uint64
	NativeBuild uint64
}

// Version formats HostVersion as major.minor.patch.
func (i ClientInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", i.HostVersion[0], i.HostVersion[1], i.HostVersion[2])
}

// FetchClientInfo reads the stable Windows x64 update manifest.
func (c *Client) FetchClientInfo(ctx context.Context) (ClientInfo, error) {
	u, err := url.Parse(c.UpdatesURL)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	q := u.Query()
	q.Set("channel", "stable")
	q.Set("platform", "win")
	q.Set("arch", "x64")
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return ClientInfo{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if !gjson.ValidBytes(body) {
		return ClientInfo{}, fmt.Errorf("%w: response is not JSON", ErrManifest)
	}

	host := gjson.GetBytes(body, "host_version")
	parts := host.Array()
	if !host.IsArray() || len(parts) < 3 {
		return ClientInfo{}, fmt.Errorf("%w: host_version is %s", ErrManifest, host.Raw)
	}

	info := ClientInfo{HostVersion: [3]uint64{
		numberOr(parts[0], 1),
		numberOr(parts[1], 0),
		numberOr(parts[2], 9219),
	}}
	info.NativeBuild = numberOr(gjson.GetBytes(body, "native_module_version"), info.HostVersion[2])

	c.Logger.Info().Str("version", info.Version()).Uint64("native_build", info.NativeBuild).Msg("Fetched client info")
	return info, nil
}

func numberOr(v gjson.Result, fallback uint64) uint64 {
	if v.Type != gjson.Number {
		return fallback
	}
	return v.Uint()
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
