package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrefersLdflags(t *testing.T) {
	defer func(v, c, d string) { Version, GitCommit, BuildDate = v, c, d }(Version, GitCommit, BuildDate)
	Version, GitCommit, BuildDate = "1.2.3", "deadbee", "2025-02-01T00:00:00Z"

	info := Get()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "deadbee", info.GitCommit)
	assert.Equal(t, "2025-02-01T00:00:00Z", info.BuildDate)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "1.2.3", String())
}

func TestGetFillsDefaults(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestShortRevision(t *testing.T) {
	assert.Equal(t, "0123456", shortRevision("0123456789abcdef"))
	assert.Equal(t, "abc", shortRevision("abc"))
}
