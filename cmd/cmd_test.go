package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/vidcap/pkg/vidcap"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "none"))
	err := cmd.Execute()
	return out.String(), err
}

func TestBackendsCmd(t *testing.T) {
	out, err := run(t, CreateBackendsCmd(), "--backends", vidcap.SimulatedIdentifier)
	require.NoError(t, err)
	assert.Contains(t, out, "BACKEND")
	assert.Contains(t, out, vidcap.SimulatedIdentifier)
	assert.Contains(t, out, "Simulated capture devices")
}

func TestBackendsCmdUnknown(t *testing.T) {
	_, err := run(t, CreateBackendsCmd(), "--backends", "dshow")
	assert.Error(t, err)
}

func TestSourcesCmd(t *testing.T) {
	out, err := run(t, CreateSourcesCmd(), vidcap.SimulatedIdentifier)
	require.NoError(t, err)
	assert.Contains(t, out, "cam0")
	assert.Contains(t, out, "Simulated webcam")
	assert.Contains(t, out, "card0")
}

func TestSourcesCmdJSON(t *testing.T) {
	out, err := run(t, CreateSourcesCmd(), vidcap.SimulatedIdentifier, "--json")
	require.NoError(t, err)

	var sources []vidcap.SourceInfo
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 2)
	assert.Equal(t, "cam0", sources[0].Identifier)
}

func TestFormatsCmd(t *testing.T) {
	out, err := run(t, CreateFormatsCmd(), vidcap.SimulatedIdentifier, "cam0")
	require.NoError(t, err)
	assert.Contains(t, out, "FOURCC")
	assert.Contains(t, out, "i420")
	assert.Contains(t, out, "640x480")
}

func TestFormatsCmdUnknownSource(t *testing.T) {
	_, err := run(t, CreateFormatsCmd(), vidcap.SimulatedIdentifier, "cam9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cam9" not found`)
}

func TestCaptureCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.raw")

	out, err := run(t, CreateCaptureCmd(), vidcap.SimulatedIdentifier, "cam0",
		"--fourcc", "rgb32", "--width", "320", "--height", "240", "--fps", "15",
		"--frames", "3", "--duration", "10s", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "captured 3 frames")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3*320*240*4, info.Size())
}

func TestCaptureCmdUnsupportedFormat(t *testing.T) {
	_, err := run(t, CreateCaptureCmd(), vidcap.SimulatedIdentifier, "cam0",
		"--width", "1920", "--height", "1080", "--duration", "1s")
	assert.ErrorIs(t, err, vidcap.ErrFormatUnsupported)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
		wantErr  bool
	}{
		{"30", 30, 1, false},
		{"30000/1001", 30000, 1001, false},
		{"29.97", 29970, 1000, false},
		{"0", 0, 0, true},
		{"30/0", 0, 0, true},
		{"fast", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			num, den, err := parseRate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.num, num)
			assert.Equal(t, tt.den, den)
		})
	}
}

func TestSourceDiff(t *testing.T) {
	a := vidcap.SourceInfo{Identifier: "a"}
	b := vidcap.SourceInfo{Identifier: "b"}
	c := vidcap.SourceInfo{Identifier: "c"}

	added, removed := sourceDiff([]vidcap.SourceInfo{a, b}, []vidcap.SourceInfo{b, c})
	assert.Equal(t, []vidcap.SourceInfo{c}, added)
	assert.Equal(t, []vidcap.SourceInfo{a}, removed)

	added, removed = sourceDiff([]vidcap.SourceInfo{a}, []vidcap.SourceInfo{a})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
