package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestGetInfoPrefersLdflags(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })

	Version, Commit, Date = "1.4.0", "0123456789abcdef", "2026-10-01"
	info := GetInfo()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.Equal(t, "2026-10-01", info.Date)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.4.0", Commit: "0123456789abcdef", Date: "2026-10-01", GoVersion: "go1.24.6", Platform: "linux/amd64"}
	s := info.String()
	assert.True(t, strings.HasPrefix(s, "flowboard 1.4.0 (01234567)"), s)
	assert.Contains(t, s, "go1.24.6")
	assert.Equal(t, "1.4.0", info.Short())

	info.Commit = "abc"
	assert.Contains(t, info.String(), "(abc)")
}
