package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// testOptions mirrors the shape of a command options struct.
type testOptions struct {
	Config string

	Port          int           `toml:"server.port" env:"PORT"`
	PermitRescale bool          `toml:"capture.permit_rescale" env:"CAPTURE_PERMIT_RESCALE"`
	FloorFactor   float64       `toml:"pacing.floor_factor" env:"PACING_FLOOR_FACTOR"`
	Settle        time.Duration `toml:"devices.settle" env:"DEVICES_SETTLE"`
	Backends      []string      `toml:"backends.enabled" env:"BACKENDS"`
	LoggingLevel  string        `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidcap.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleTOML = `
[server]
port = 9090

[capture]
permit_rescale = true

[pacing]
floor_factor = 0.8

[devices]
settle = "750ms"

[backends]
enabled = ["v4l2", "simulated"]

[logging]
level = "debug"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeTOML(t, sampleTOML), Port: 8090}

	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 9090 {
		t.Errorf("Port = %d, want 9090", opts.Port)
	}
	if !opts.PermitRescale {
		t.Error("PermitRescale not applied")
	}
	if opts.FloorFactor != 0.8 {
		t.Errorf("FloorFactor = %v, want 0.8", opts.FloorFactor)
	}
	if opts.Settle != 750*time.Millisecond {
		t.Errorf("Settle = %v, want 750ms", opts.Settle)
	}
	if want := []string{"v4l2", "simulated"}; !reflect.DeepEqual(opts.Backends, want) {
		t.Errorf("Backends = %v, want %v", opts.Backends, want)
	}
	if opts.LoggingLevel != "debug" {
		t.Errorf("LoggingLevel = %q, want debug", opts.LoggingLevel)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("VIDCAP_PORT", "7000")
	t.Setenv("VIDCAP_PACING_FLOOR_FACTOR", "0.95")
	t.Setenv("VIDCAP_DEVICES_SETTLE", "2s")
	t.Setenv("VIDCAP_BACKENDS", " simulated ")

	opts := &testOptions{Config: writeTOML(t, sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 7000 {
		t.Errorf("Port = %d, want 7000 from env", opts.Port)
	}
	if opts.FloorFactor != 0.95 {
		t.Errorf("FloorFactor = %v, want 0.95 from env", opts.FloorFactor)
	}
	if opts.Settle != 2*time.Second {
		t.Errorf("Settle = %v, want 2s from env", opts.Settle)
	}
	if want := []string{"simulated"}; !reflect.DeepEqual(opts.Backends, want) {
		t.Errorf("Backends = %v, want %v", opts.Backends, want)
	}
	if opts.LoggingLevel != "debug" {
		t.Errorf("LoggingLevel = %q, want debug from TOML", opts.LoggingLevel)
	}
}

func TestLoadConfigKeepsChangedFlags(t *testing.T) {
	t.Setenv("VIDCAP_LOGGING_LEVEL", "warn")

	var opts testOptions
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	cmd.Flags().StringVar(&opts.LoggingLevel, "logging-level", "info", "")
	if err := cmd.Flags().Parse([]string{"--port=1234", "--logging-level=error"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	opts.Config = writeTOML(t, sampleTOML)

	if err := LoadConfig(&opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 1234 {
		t.Errorf("Port = %d, want CLI value 1234", opts.Port)
	}
	if opts.LoggingLevel != "error" {
		t.Errorf("LoggingLevel = %q, want CLI value error", opts.LoggingLevel)
	}
	if !opts.PermitRescale {
		t.Error("unflagged fields still come from TOML")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for a missing file: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default kept", opts.Port)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeTOML(t, "[server\nport = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Fatal("LoadConfig should reject a struct value")
	}
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"Port":                 "port",
		"LoggingLevel":         "logging-level",
		"CapturePermitRescale": "capture-permit-rescale",
	}
	for in, want := range tests {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"pacing": map[string]any{"floor_factor": 0.9},
		"root":   "value",
	}

	tests := []struct {
		key  string
		want any
	}{
		{"root", "value"},
		{"pacing.floor_factor", 0.9},
		{"pacing.missing", nil},
		{"root.child", nil},
		{"absent", nil},
	}
	for _, tt := range tests {
		if got := lookup(doc, tt.key); got != tt.want {
			t.Errorf("lookup(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestAssignIgnoresMismatchedTypes(t *testing.T) {
	var opts testOptions
	v := reflect.ValueOf(&opts).Elem()

	assign(v.FieldByName("Port"), "not a number")
	assign(v.FieldByName("PermitRescale"), int64(1))
	assign(v.FieldByName("Settle"), int64(5))
	assign(v.FieldByName("FloorFactor"), int64(1))

	if opts.Port != 0 || opts.PermitRescale || opts.Settle != 0 {
		t.Errorf("mismatched values were applied: %+v", opts)
	}
	if opts.FloorFactor != 1 {
		t.Errorf("integer TOML value should widen to float, got %v", opts.FloorFactor)
	}
}

func TestAssignParsesQuotedValues(t *testing.T) {
	var opts testOptions
	v := reflect.ValueOf(&opts).Elem()

	assign(v.FieldByName("Port"), "9000")
	assign(v.FieldByName("PermitRescale"), "true")
	assign(v.FieldByName("Backends"), "v4l2, simulated")

	if opts.Port != 9000 || !opts.PermitRescale {
		t.Errorf("quoted values not parsed: %+v", opts)
	}
	if want := []string{"v4l2", "simulated"}; !reflect.DeepEqual(opts.Backends, want) {
		t.Errorf("Backends = %v, want %v", opts.Backends, want)
	}
}

func TestLoadSettingsModuleLevels(t *testing.T) {
	s, err := LoadSettings(writeTOML(t, `
[logging]
level = "warn"
format = "json"
capture = "debug"
v4l2 = "error"
retries = 3
`))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Logging.Level != "warn" || s.Logging.Format != "json" {
		t.Errorf("got level=%q format=%q", s.Logging.Level, s.Logging.Format)
	}
	want := map[string]string{"capture": "debug", "v4l2": "error"}
	if !reflect.DeepEqual(s.Logging.Modules, want) {
		t.Errorf("Modules = %v, want %v", s.Logging.Modules, want)
	}
}

func TestLoadSettingsRejectsBrokenFile(t *testing.T) {
	if _, err := LoadSettings(writeTOML(t, "[pacing\n")); err == nil {
		t.Error("LoadSettings should fail for malformed TOML")
	}
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(writeTOML(t, sampleTOML))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Pacing.FloorFactor != 0.8 {
		t.Errorf("FloorFactor = %v, want 0.8", s.Pacing.FloorFactor)
	}
	if s.Pacing.HistorySeconds != 0 {
		t.Errorf("HistorySeconds = %v, want unset", s.Pacing.HistorySeconds)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", s.Logging.Level)
	}
	if s.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default text", s.Logging.Format)
	}

	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("LoadSettings should fail for a missing file")
	}
}
