package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()

	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "whenthen "+Version)
	assert.Contains(t, info.String(), "Go Version:")
}

func TestBuildInfoString(t *testing.T) {
	info := BuildInfo{
		Version:   "v1.0.0",
		BuildDate: "2024-01-01T00:00:00Z",
		GitCommit: "abc123def456",
		GoVersion: "go1.24.4",
		Module:    "github.com/paveg/whenthen",
		Dirty:     true,
	}

	str := info.String()
	assert.Contains(t, str, "whenthen v1.0.0 (dirty)")
	assert.Contains(t, str, "Build Date: 2024-01-01T00:00:00Z")
	assert.Contains(t, str, "Git Commit: abc123d")
	assert.NotContains(t, str, "abc123def456")
	assert.Contains(t, str, "Module: github.com/paveg/whenthen")

	unknown := BuildInfo{Version: "dev", BuildDate: unknownValue, GitCommit: unknownValue, GoVersion: "go1.24.4"}
	assert.NotContains(t, unknown.String(), "Build Date")
	assert.NotContains(t, unknown.String(), "Git Commit")
}
