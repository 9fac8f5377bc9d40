package fingerprint

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// SourceMode is where the current header contents came from, ordered by trust.
type SourceMode int

const (
	ModeDefault SourceMode = iota
	ModeRemoteScript
	ModeIntrospected
)

func (m SourceMode) String() string {
	switch m {
	case ModeRemoteScript:
		return "remote_js"
	case ModeIntrospected:
		return "cdp"
	default:
		return "default"
	}
}

// DisplayName is the human readable source name.
func (m SourceMode) DisplayName() string {
	switch m {
	case ModeRemoteScript:
		return "Remote JS"
	case ModeIntrospected:
		return "CDP (Discord Client)"
	default:
		return "Default"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SourceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// state is copied on every update; pointer fields are replaced, never written through.
type state struct {
	mode          SourceMode
	buildNumber   *uint64
	clientVersion *string
	nativeBuild   *uint64
	template      string
	ids           SessionIDs
	header        string
}

func newState() state {
	return state{ids: NewSessionIDs()}
}

// Manager owns the header state for a process. It is safe for concurrent
// use; callers fetch inputs over the network first and then record them, so
// the lock is never held across I/O.
type Manager struct {
	g      guard
	logger zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a manager in ModeDefault with fresh session ids.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	m.g.st = newState()
	return m
}

// RecordIntrospected stores a header captured from a live client. Build and
// version fields are read from decoded, or from the template itself when
// decoded is empty. The mode becomes ModeIntrospected unconditionally.
func (m *Manager) RecordIntrospected(encoded string, decoded json.RawMessage) {
	fields := gjson.ParseBytes(decoded)
	if len(decoded) == 0 {
		if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
			fields = gjson.ParseBytes(raw)
		}
	}

	m.mutate("record introspected", func(s *state) {
		s.template = encoded
		s.mode = ModeIntrospected
		if v := fields.Get("client_build_number"); v.Type == gjson.Number {
			s.buildNumber = ptr(v.Uint())
		}
		if v := fields.Get("client_version"); v.Type == gjson.String {
			s.clientVersion = ptr(v.String())
		}
		if v := fields.Get("native_build_number"); v.Type == gjson.Number {
			s.nativeBuild = ptr(v.Uint())
		}
		s.header = ""
	})
	m.logger.Info().Str("mode", ModeIntrospected.String()).Msg("Fingerprint template recorded")
}

// RecordRemoteBuildNumber stores a build number scraped from the web client.
// It drops any stored template and only moves the mode to ModeRemoteScript
// when the mode is not already ModeIntrospected.
func (m *Manager) RecordRemoteBuildNumber(n uint64) {
	m.mutate("record remote build number", func(s *state) {
		s.buildNumber = ptr(n)
		if s.mode != ModeIntrospected {
			s.mode = ModeRemoteScript
		}
		s.template = ""
		s.header = ""
	})
	m.logger.Info().Uint64("build_number", n).Msg("Remote build number recorded")
}

// RecordClientInfo supplements the client version and native build number
// regardless of mode.
func (m *Manager) RecordClientInfo(version string, nativeBuild uint64) {
	m.mutate("record client info", func(s *state) {
		s.clientVersion = ptr(version)
		s.nativeBuild = ptr(nativeBuild)
		s.header = ""
	})
	m.logger.Debug().Str("client_version", version).Uint64("native_build", nativeBuild).Msg("Client info recorded")
}

// HeaderValue returns the encoded header. It never fails: an unusable
// template falls back to synthesized properties, and a failed encode falls
// back to an encoded empty object.
func (m *Manager) HeaderValue() string {
	header, _ := m.snapshot("encode header")
	return header
}

// snapshot returns the header together with the state it was encoded from,
// both taken in one pass under the guard.
func (m *Manager) snapshot(op string) (string, state) {
	var (
		header string
		st     state
	)
	m.mutate(op, func(s *state) {
		if s.header == "" {
			s.header = m.encode(*s)
		}
		header, st = s.header, *s
	})
	if header == "" {
		m.g.view(func(s state) { st = s })
		return emptyHeader, st
	}
	return header, st
}

// ModeAndBuildNumber returns the source mode and, when known, the build number.
func (m *Manager) ModeAndBuildNumber() (SourceMode, uint64, bool) {
	var (
		mode  SourceMode
		build *uint64
	)
	m.g.view(func(s state) {
		mode, build = s.mode, s.buildNumber
	})
	if build == nil {
		return mode, 0, false
	}
	return mode, *build, true
}

// SessionIDs returns the current session identifiers.
func (m *Manager) SessionIDs() SessionIDs {
	var ids SessionIDs
	m.g.view(func(s state) { ids = s.ids })
	return ids
}

// Reset returns to ModeDefault, clears every recorded input and generates
// new session identifiers.
func (m *Manager) Reset() {
	ids := NewSessionIDs()
	m.mutate("reset", func(s *state) {
		*s = state{ids: ids}
	})
	m.logger.Info().Msg("Fingerprint state reset")
}

// Poisoned reports whether an update was ever abandoned by a panic.
func (m *Manager) Poisoned() bool {
	return m.g.isPoisoned()
}

// DebugInfo is a snapshot of the manager for diagnostics.
type DebugInfo struct {
	Header     string     `json:"x_super_properties_base64"`
	Properties Properties `json:"super_properties"`
	SessionIDs
	Mode     SourceMode `json:"mode"`
	Source   string     `json:"source"`
	Poisoned bool       `json:"poisoned"`
}

// Debug returns the effective properties and identifiers.
// The header and the session ids always come from the same state.
func (m *Manager) Debug() DebugInfo {
	header, st := m.snapshot("debug snapshot")

	return DebugInfo{
		Header:     header,
		Properties: m.properties(st),
		SessionIDs: st.ids,
		Mode:       st.mode,
		Source:     st.mode.DisplayName(),
		Poisoned:   m.Poisoned(),
	}
}

func (m *Manager) mutate(op string, fn func(*state)) {
	if err := m.g.update(fn); err != nil {
		m.logger.Error().Err(err).Str("op", op).Msg("Recovered fingerprint state")
	}
}

// encode renders s. It runs under the guard and does no I/O.
func (m *Manager) encode(s state) string {
	header, err := Encode(m.properties(s))
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to encode fingerprint")
		return emptyHeader
	}
	return header
}

// properties returns the record that s encodes to: the stored template with
// this session's ids, or the defaults with every known supplement applied.
func (m *Manager) properties(s state) Properties {
	if s.template != "" {
		p, err := Decode(s.template)
		if err == nil {
			s.ids.apply(&p)
			p.HasClientMods = false
			return p
		}
		m.logger.Warn().Err(err).Msg("Stored template unusable, synthesizing defaults")
	}
	return synthesize(s)
}

func synthesize(s state) Properties {
	p := DefaultProperties()
	s.ids.apply(&p)
	if s.buildNumber != nil {
		p.ClientBuildNumber = *s.buildNumber
	}
	if s.clientVersion != nil {
		p.ClientVersion = ptr(*s.clientVersion)
		p.BrowserUserAgent = UserAgent(*s.clientVersion)
	}
	if s.nativeBuild != nil {
		p.NativeBuildNumber = ptr(*s.nativeBuild)
	}
	return p
}
