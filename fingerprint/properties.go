// Package fingerprint builds the client identity header sent with every
// backend request and tracks where its contents came from.
//
// The header is the base64 encoding of a compact JSON object (Properties).
// Three session identifiers in it are generated once per Manager and reused
// until Reset; the launch signature among them never carries a bit of the
// client modification detection mask.
package fingerprint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedTemplate is returned when an encoded header cannot be decoded.
var ErrMalformedTemplate = errors.New("malformed fingerprint template")

// Compiled defaults used when no live client or remote source is available.
const (
	DefaultOS                = "Windows"
	DefaultBrowser           = "Discord Client"
	DefaultReleaseChannel    = "stable"
	DefaultClientVersion     = "1.0.9219"
	DefaultOSVersion         = "10.0.19045"
	DefaultArch              = "x64"
	DefaultSystemLocale      = "en-US"
	DefaultBrowserVersion    = "37.6.0"
	DefaultOSSDKVersion      = "19045"
	DefaultClientBuildNumber = 493063
	DefaultNativeBuildNumber = 73211
	DefaultClientAppState    = "focused"
)

// emptyHeader is base64("{}"), sent if encoding ever fails.
const emptyHeader = "e30="

// UserAgent returns the desktop client's user agent for a client version.
func UserAgent(clientVersion string) string {
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) discord/" +
		clientVersion + " Chrome/138.0.7204.251 Electron/" + DefaultBrowserVersion + " Safari/537.36"
}

// Properties is the identity record. Pointer fields are omitted from the
// encoding when nil, except ClientEventSource which encodes as null.
// Fields the record does not know about are kept in Extra and re-emitted
// after the known ones, sorted by key.
type Properties struct {
	OS                       string  `json:"os"`
	Browser                  string  `json:"browser"`
	ReleaseChannel           string  `json:"release_channel"`
	ClientVersion            *string `json:"client_version,omitempty"`
	OSVersion                string  `json:"os_version"`
	OSArch                   *string `json:"os_arch,omitempty"`
	AppArch                  *string `json:"app_arch,omitempty"`
	SystemLocale             string  `json:"system_locale"`
	HasClientMods            bool    `json:"has_client_mods"`
	BrowserUserAgent         string  `json:"browser_user_agent"`
	BrowserVersion           string  `json:"browser_version"`
	OSSDKVersion             *string `json:"os_sdk_version,omitempty"`
	ClientBuildNumber        uint64  `json:"client_build_number"`
	NativeBuildNumber        *uint64 `json:"native_build_number,omitempty"`
	ClientEventSource        *string `json:"client_event_source"`
	LaunchSignature          *string `json:"launch_signature,omitempty"`
	ClientLaunchID           *string `json:"client_launch_id,omitempty"`
	ClientHeartbeatSessionID *string `json:"client_heartbeat_session_id,omitempty"`
	ClientAppState           *string `json:"client_app_state,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = []string{
	"os", "browser", "release_channel", "client_version", "os_version",
	"os_arch", "app_arch", "system_locale", "has_client_mods",
	"browser_user_agent", "browser_version", "os_sdk_version",
	"client_build_number", "native_build_number", "client_event_source",
	"launch_signature", "client_launch_id", "client_heartbeat_session_id",
	"client_app_state",
}

// isKnownField matches the way encoding/json matches keys to fields, so a key
// differing only in case can never shadow a known field through Extra.
func isKnownField(key string) bool {
	for _, f := range knownFields {
		if strings.EqualFold(f, key) {
			return true
		}
	}
	return false
}

// DefaultProperties returns the compiled-default record without session ids.
func DefaultProperties() Properties {
	return Properties{
		OS:                DefaultOS,
		Browser:           DefaultBrowser,
		ReleaseChannel:    DefaultReleaseChannel,
		ClientVersion:     ptr(DefaultClientVersion),
		OSVersion:         DefaultOSVersion,
		OSArch:            ptr(DefaultArch),
		AppArch:           ptr(DefaultArch),
		SystemLocale:      DefaultSystemLocale,
		BrowserUserAgent:  UserAgent(DefaultClientVersion),
		BrowserVersion:    DefaultBrowserVersion,
		OSSDKVersion:      ptr(DefaultOSSDKVersion),
		ClientBuildNumber: DefaultClientBuildNumber,
		NativeBuildNumber: ptr[uint64](DefaultNativeBuildNumber),
		ClientAppState:    ptr(DefaultClientAppState),
	}
}

// propertiesFields has Properties' layout without its JSON methods.
type propertiesFields Properties

// MarshalJSON implements json.Marshaler.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(propertiesFields(p)); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(p.Extra) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if !isKnownField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out = out[:len(out)-1]
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		var value bytes.Buffer
		if err := json.Compact(&value, p.Extra[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out = append(out, ',')
		out = append(out, name...)
		out = append(out, ':')
		out = append(out, value.Bytes()...)
	}
	return append(out, '}'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var fields propertiesFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if isKnownField(k) {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[k] = v
	}
	*p = Properties(fields)
	return nil
}

// Encode returns the header value for p. The modification flag is always
// encoded as false.
func Encode(p Properties) (string, error) {
	p.HasClientMods = false

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Decode parses a header value. Absent optional fields stay nil.
func Decode(header string) (Properties, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return Properties{}, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	return DecodeJSON(raw)
}

// DecodeJSON parses the JSON form of a header.
func DecodeJSON(raw []byte) (Properties, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return Properties{}, fmt.Errorf("%w: not a JSON object", ErrMalformedTemplate)
	}
	var p Properties
	if err := json.Unmarshal(raw, &p); err != nil {
		return Properties{}, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	return p, nil
}

func ptr[T any](v T) *T {
	return &v
}
