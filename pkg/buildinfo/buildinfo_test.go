package buildinfo

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

// withBuild overrides the ldflags vars for one test.
func withBuild(t *testing.T, version, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuilt := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuilt
	})
	Version, Commit, BuildTime = version, commit, built
}

func TestGet_Defaults(t *testing.T) {
	info := Get("vexa")

	if info.Component != "vexa" {
		t.Errorf("Component = %q, want vexa", info.Component)
	}
	if info.Version != "dev" || info.Commit != "unknown" || info.BuildTime != "unknown" {
		t.Errorf("unexpected defaults: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestString(t *testing.T) {
	if got := String(); got != "dev (unknown, unknown)" {
		t.Errorf("String() = %q", got)
	}

	withBuild(t, "v0.3.0", "4c1e9a2", "2026-03-01T09:00:00Z")
	if got, want := String(), "v0.3.0 (4c1e9a2, 2026-03-01T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "v0.3.0", "x", "y")
	ua := UserAgent()
	if !strings.HasPrefix(ua, "vexa-cli/v0.3.0 (") {
		t.Errorf("UserAgent() = %q", ua)
	}
	if !strings.Contains(ua, runtime.GOOS) {
		t.Errorf("UserAgent() = %q, missing GOOS", ua)
	}
}

func TestInfo_JSONKeys(t *testing.T) {
	data, err := json.Marshal(Get("vexa-serve"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"component", "version", "commit", "build_time", "go_version", "platform"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if len(decoded) != 6 {
		t.Errorf("got %d keys, want 6", len(decoded))
	}
}
