// Package introspect pulls the identity header out of a running desktop
// client through its DevTools remote-debugging endpoint.
//
// The client must have been started with --remote-debugging-port. Targets
// are listed over plain HTTP at /json; the chosen page's websocket control
// endpoint then receives a single Runtime.evaluate request.
package introspect

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPort is the remote-debugging port the client is expected on.
const DefaultPort = 9223

// PortEnv overrides DefaultPort when set to a valid port number.
const PortEnv = "SESSIONHARNESS_DEBUG_PORT"

const (
	defaultListTimeout     = 3 * time.Second
	defaultEvaluateTimeout = 10 * time.Second
)

var (
	ErrEndpointUnreachable = errors.New("debug endpoint unreachable")
	ErrNoTargetFound       = errors.New("no debuggable page target found")
	ErrConnectFailed       = errors.New("failed to connect to target")
	ErrTimeout             = errors.New("timed out waiting for evaluation result")
	ErrScript              = errors.New("introspection script failed")
	ErrMalformedResponse   = errors.New("malformed introspection response")
)

// ScriptError is the failure the injected script reported about itself.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return "introspection script failed: " + e.Message
}

// Is reports whether target is ErrScript.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScript
}

// Fingerprint is the header captured from the live client.
type Fingerprint struct {
	// Encoded is the header value as the client sends it.
	Encoded string `json:"base64"`
	// Decoded is the client's own JSON form of the header.
	Decoded json.RawMessage `json:"decoded"`
}

// Status summarizes whether introspection is possible right now.
type Status struct {
	Available   bool   `json:"available"`
	Connected   bool   `json:"connected"`
	TargetTitle string `json:"target_title,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Client talks to the debug endpoint on the loopback interface.
type Client struct {
	Host            string
	HTTPClient      *http.Client
	EvaluateTimeout time.Duration
	Script          string
	Logger          zerolog.Logger

	nextID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithEvaluateTimeout bounds the wait for the evaluation response.
func WithEvaluateTimeout(d time.Duration) Option {
	return func(c *Client) { c.EvaluateTimeout = d }
}

// WithHTTPClient sets the client used for target listing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// NewClient returns a Client for 127.0.0.1.
func NewClient(opts ...Option) *Client {
	c := &Client{
		Host:            "127.0.0.1",
		HTTPClient:      &http.Client{Timeout: defaultListTimeout},
		EvaluateTimeout: defaultEvaluateTimeout,
		Script:          fingerprintScript,
		Logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PortFromEnv returns the port from PortEnv, or DefaultPort.
func PortFromEnv() int {
	if v := os.Getenv(PortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	return DefaultPort
}
