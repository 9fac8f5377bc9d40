package fingerprint

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func decodeHeader(t *testing.T, header string) Properties {
	t.Helper()
	p, err := Decode(header)
	if err != nil {
		t.Fatalf("header %q does not decode: %v", header, err)
	}
	return p
}

func liveTemplate(t *testing.T, extra string) (string, json.RawMessage) {
	t.Helper()
	decoded := `{"os":"Windows","browser":"Discord Client","release_channel":"ptb",` +
		`"client_version":"1.0.1111","os_version":"10.0.22631","os_arch":"x64","app_arch":"x64",` +
		`"system_locale":"en-GB","has_client_mods":false,"browser_user_agent":"live UA",` +
		`"browser_version":"36.0.0","os_sdk_version":"22631","client_build_number":512345,` +
		`"native_build_number":70000,"client_event_source":null,` +
		`"launch_signature":"11111111-1111-1111-1111-111111111111",` +
		`"client_launch_id":"22222222-2222-2222-2222-222222222222",` +
		`"client_heartbeat_session_id":"33333333-3333-3333-3333-333333333333",` +
		`"client_app_state":"unfocused"` + extra + `}`
	return base64.StdEncoding.EncodeToString([]byte(decoded)), json.RawMessage(decoded)
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager()

	mode, _, ok := m.ModeAndBuildNumber()
	if mode != ModeDefault || ok {
		t.Errorf("ModeAndBuildNumber() = %v, %v, want default with no build", mode, ok)
	}

	header := m.HeaderValue()
	if header != m.HeaderValue() {
		t.Error("HeaderValue() changed without any input changing")
	}

	p := decodeHeader(t, header)
	ids := m.SessionIDs()
	if p.ClientBuildNumber != DefaultClientBuildNumber || p.OS != DefaultOS {
		t.Errorf("default header = %+v", p)
	}
	if p.LaunchSignature == nil || *p.LaunchSignature != ids.LaunchSignature {
		t.Errorf("launch_signature = %v, want %s", p.LaunchSignature, ids.LaunchSignature)
	}
	if p.ClientLaunchID == nil || *p.ClientLaunchID != ids.LaunchID {
		t.Errorf("client_launch_id = %v, want %s", p.ClientLaunchID, ids.LaunchID)
	}
	if p.ClientHeartbeatSessionID == nil || *p.ClientHeartbeatSessionID != ids.HeartbeatSessionID {
		t.Errorf("client_heartbeat_session_id = %v, want %s", p.ClientHeartbeatSessionID, ids.HeartbeatSessionID)
	}
	if !CleanSignature(ids.LaunchSignature) {
		t.Errorf("launch signature %s has detection bits set", ids.LaunchSignature)
	}
}

func TestManagersHaveDistinctSessions(t *testing.T) {
	a, b := NewManager(), NewManager()
	if a.SessionIDs() == b.SessionIDs() {
		t.Error("two managers share session ids")
	}
}

func TestRecordIntrospected(t *testing.T) {
	m := NewManager()
	encoded, decoded := liveTemplate(t, `,"design_id":0`)
	m.RecordIntrospected(encoded, decoded)

	mode, build, ok := m.ModeAndBuildNumber()
	if mode != ModeIntrospected || !ok || build != 512345 {
		t.Errorf("ModeAndBuildNumber() = %v, %d, %v", mode, build, ok)
	}

	p := decodeHeader(t, m.HeaderValue())
	ids := m.SessionIDs()
	if p.ReleaseChannel != "ptb" || p.BrowserUserAgent != "live UA" || p.ClientBuildNumber != 512345 {
		t.Errorf("template fields not kept: %+v", p)
	}
	if *p.LaunchSignature != ids.LaunchSignature || *p.ClientLaunchID != ids.LaunchID || *p.ClientHeartbeatSessionID != ids.HeartbeatSessionID {
		t.Errorf("template session ids replayed instead of this session's: %+v", p)
	}
	if string(p.Extra["design_id"]) != "0" {
		t.Errorf("unknown template field lost: %v", p.Extra)
	}
}

func TestRecordIntrospectedWithoutDecoded(t *testing.T) {
	m := NewManager()
	encoded, _ := liveTemplate(t, "")
	m.RecordIntrospected(encoded, nil)

	if _, build, ok := m.ModeAndBuildNumber(); !ok || build != 512345 {
		t.Errorf("build number = %d, %v, want 512345 read from template", build, ok)
	}
}

func TestAdversarialTemplate(t *testing.T) {
	m := NewManager()
	encoded, decoded := liveTemplate(t, "")
	encoded = base64.StdEncoding.EncodeToString([]byte(strings.Replace(string(decoded), `"has_client_mods":false`, `"has_client_mods":true`, 1)))
	m.RecordIntrospected(encoded, nil)

	header := m.HeaderValue()
	if p := decodeHeader(t, header); p.HasClientMods {
		t.Error("header claims client mods")
	}
	raw, _ := base64.StdEncoding.DecodeString(header)
	if !strings.Contains(string(raw), `"has_client_mods":false`) {
		t.Errorf("header = %s", raw)
	}
}

func TestUnusableTemplateFallsBack(t *testing.T) {
	m := NewManager()
	m.RecordIntrospected("not-base64!", json.RawMessage(`{"client_build_number":499999}`))

	p := decodeHeader(t, m.HeaderValue())
	if p.OS != DefaultOS || p.ClientBuildNumber != 499999 {
		t.Errorf("fallback header = %+v", p)
	}
}

func TestResetAfterIntrospected(t *testing.T) {
	m := NewManager()
	encoded, decoded := liveTemplate(t, "")
	m.RecordIntrospected(encoded, decoded)
	before := m.HeaderValue()
	idsBefore := m.SessionIDs()

	m.Reset()

	mode, _, ok := m.ModeAndBuildNumber()
	if mode != ModeDefault || ok {
		t.Errorf("after Reset ModeAndBuildNumber() = %v, %v, want (default, none)", mode, ok)
	}
	after := m.HeaderValue()
	if after == before {
		t.Error("header unchanged by Reset")
	}
	ids := m.SessionIDs()
	if ids.LaunchID == idsBefore.LaunchID || ids.HeartbeatSessionID == idsBefore.HeartbeatSessionID || ids.LaunchSignature == idsBefore.LaunchSignature {
		t.Errorf("session ids reused across Reset: %+v", ids)
	}
	p := decodeHeader(t, after)
	if p.ReleaseChannel != DefaultReleaseChannel || p.ClientBuildNumber != DefaultClientBuildNumber {
		t.Errorf("post-reset header still carries template: %+v", p)
	}
}

func TestModeTransitions(t *testing.T) {
	encoded, decoded := liveTemplate(t, "")

	tests := []struct {
		name      string
		steps     func(m *Manager)
		wantMode  SourceMode
		wantBuild uint64
	}{
		{
			name:      "remote from default",
			steps:     func(m *Manager) { m.RecordRemoteBuildNumber(600000) },
			wantMode:  ModeRemoteScript,
			wantBuild: 600000,
		},
		{
			name: "introspected over remote",
			steps: func(m *Manager) {
				m.RecordRemoteBuildNumber(600000)
				m.RecordIntrospected(encoded, decoded)
			},
			wantMode:  ModeIntrospected,
			wantBuild: 512345,
		},
		{
			name: "remote does not demote introspected",
			steps: func(m *Manager) {
				m.RecordIntrospected(encoded, decoded)
				m.RecordRemoteBuildNumber(600001)
			},
			wantMode:  ModeIntrospected,
			wantBuild: 600001,
		},
		{
			name: "client info keeps mode",
			steps: func(m *Manager) {
				m.RecordRemoteBuildNumber(600000)
				m.RecordClientInfo("1.0.9300", 75000)
			},
			wantMode:  ModeRemoteScript,
			wantBuild: 600000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			tt.steps(m)
			mode, build, ok := m.ModeAndBuildNumber()
			if mode != tt.wantMode || !ok || build != tt.wantBuild {
				t.Errorf("ModeAndBuildNumber() = %v, %d, %v, want %v, %d", mode, build, ok, tt.wantMode, tt.wantBuild)
			}
		})
	}
}

func TestRemoteBuildNumberDropsTemplate(t *testing.T) {
	m := NewManager()
	encoded, decoded := liveTemplate(t, "")
	m.RecordIntrospected(encoded, decoded)
	m.RecordRemoteBuildNumber(600001)

	p := decodeHeader(t, m.HeaderValue())
	if p.ReleaseChannel != DefaultReleaseChannel {
		t.Errorf("template still used after remote build number: %+v", p)
	}
	if p.ClientBuildNumber != 600001 {
		t.Errorf("client_build_number = %d, want 600001", p.ClientBuildNumber)
	}
	// Version and native build read from the template remain as supplements.
	if p.ClientVersion == nil || *p.ClientVersion != "1.0.1111" {
		t.Errorf("client_version = %v", p.ClientVersion)
	}
}

func TestRecordClientInfoInvalidatesHeader(t *testing.T) {
	m := NewManager()
	before := m.HeaderValue()
	m.RecordClientInfo("1.0.9300", 75000)
	after := m.HeaderValue()
	if before == after {
		t.Fatal("header not regenerated after RecordClientInfo")
	}

	p := decodeHeader(t, after)
	if *p.ClientVersion != "1.0.9300" || *p.NativeBuildNumber != 75000 {
		t.Errorf("client info not applied: %+v", p)
	}
	if !strings.Contains(p.BrowserUserAgent, "discord/1.0.9300 ") {
		t.Errorf("user agent not updated: %s", p.BrowserUserAgent)
	}
	if m.SessionIDs() != decodeIDs(p) {
		t.Error("session ids changed without Reset")
	}
}

func decodeIDs(p Properties) SessionIDs {
	return SessionIDs{
		LaunchSignature:    *p.LaunchSignature,
		LaunchID:           *p.ClientLaunchID,
		HeartbeatSessionID: *p.ClientHeartbeatSessionID,
	}
}

func TestPanicDuringUpdateKeepsLastState(t *testing.T) {
	m := NewManager()
	m.RecordRemoteBuildNumber(600000)
	before := m.HeaderValue()

	m.mutate("test", func(s *state) {
		s.mode = ModeIntrospected
		s.buildNumber = ptr[uint64](1)
		s.header = ""
		panic("mid-mutation")
	})

	if !m.Poisoned() {
		t.Error("Poisoned() = false after abandoned update")
	}
	mode, build, _ := m.ModeAndBuildNumber()
	if mode != ModeRemoteScript || build != 600000 {
		t.Errorf("state after panic = %v, %d, want last consistent state", mode, build)
	}
	if got := m.HeaderValue(); got != before {
		t.Error("header changed by an abandoned update")
	}

	m.RecordRemoteBuildNumber(600002)
	if _, build, _ := m.ModeAndBuildNumber(); build != 600002 {
		t.Errorf("manager unusable after panic: build = %d", build)
	}
	if !m.Debug().Poisoned {
		t.Error("Debug() does not report the abandoned update")
	}
}

func TestManagerConcurrentUse(t *testing.T) {
	m := NewManager()
	encoded, decoded := liveTemplate(t, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (i + j) % 4 {
				case 0:
					m.RecordIntrospected(encoded, decoded)
				case 1:
					m.RecordRemoteBuildNumber(uint64(600000 + j))
				case 2:
					m.RecordClientInfo("1.0.9300", 75000)
				case 3:
					if p, err := Decode(m.HeaderValue()); err != nil || p.HasClientMods {
						t.Errorf("bad header under contention: %v", err)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	if m.Poisoned() {
		t.Error("manager poisoned by ordinary use")
	}
}

func TestDebug(t *testing.T) {
	m := NewManager()
	d := m.Debug()
	if d.Source != "Default" || d.Mode != ModeDefault {
		t.Errorf("Debug() source = %q, mode = %v", d.Source, d.Mode)
	}
	if d.Header != m.HeaderValue() {
		t.Error("Debug().Header differs from HeaderValue()")
	}
	if d.SessionIDs != m.SessionIDs() {
		t.Error("Debug() session ids differ")
	}

	encoded, decoded := liveTemplate(t, "")
	m.RecordIntrospected(encoded, decoded)
	d = m.Debug()
	if d.Source != "CDP (Discord Client)" || d.Properties.ReleaseChannel != "ptb" {
		t.Errorf("Debug() after introspection = %q, %q", d.Source, d.Properties.ReleaseChannel)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"mode":"cdp"`, `"client_launch_id"`, `"super_properties"`} {
		if !strings.Contains(string(out), key) {
			t.Errorf("Debug JSON missing %s: %s", key, out)
		}
	}
}

func TestDebugConsistentUnderReset(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.Reset()
			}
		}
	}()

	for i := 0; i < 500; i++ {
		d := m.Debug()
		p := decodeHeader(t, d.Header)
		if p.LaunchSignature == nil || *p.LaunchSignature != d.LaunchSignature {
			t.Fatalf("header launch signature %v, snapshot %q", p.LaunchSignature, d.LaunchSignature)
		}
		if p.ClientLaunchID == nil || *p.ClientLaunchID != d.LaunchID {
			t.Fatalf("header launch id %v, snapshot %q", p.ClientLaunchID, d.LaunchID)
		}
	}
	close(done)
	wg.Wait()
}
