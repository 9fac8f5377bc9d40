package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Target is one inspectable target listed by the debug endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

func (t Target) isPage() bool {
	return t.Type == "page"
}

func (t Target) isClientWindow() bool {
	title := strings.ToLower(t.Title)
	if strings.Contains(title, "updater") {
		return false
	}
	return strings.Contains(title, "discord") || strings.Contains(strings.ToLower(t.URL), "discord.com")
}

// SelectTarget picks the client's main window: the first page whose title or
// URL identifies the client and whose title is not the updater's, else the
// first page. ok is false when there are no pages.
func SelectTarget(targets []Target) (Target, bool) {
	var first *Target
	for i := range targets {
		t := &targets[i]
		if !t.isPage() {
			continue
		}
		if t.isClientWindow() {
			return *t, true
		}
		if first == nil {
			first = t
		}
	}
	if first == nil {
		return Target{}, false
	}
	return *first, true
}

// ListTargets fetches the target list from the debug endpoint on port.
func (c *Client) ListTargets(ctx context.Context, port int) ([]Target, error) {
	url := "http://" + net.JoinHostPort(c.Host, strconv.Itoa(port)) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrEndpointUnreachable, url, resp.Status)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("%w: target list: %v", ErrMalformedResponse, err)
	}
	c.Logger.Debug().Int("port", port).Int("targets", len(targets)).Msg("Listed debug targets")
	return targets, nil
}

// CheckAvailable reports whether the endpoint answers and which target
// would be used. It never returns an error; problems land in Status.Error.
func (c *Client) CheckAvailable(ctx context.Context, port int) Status {
	targets, err := c.ListTargets(ctx, port)
	if err != nil {
		return Status{Error: err.Error()}
	}
	t, ok := SelectTarget(targets)
	if !ok {
		return Status{Available: true, Error: ErrNoTargetFound.Error()}
	}
	return Status{
		Available:   true,
		Connected:   t.WebSocketDebuggerURL != "",
		TargetTitle: t.Title,
	}
}
