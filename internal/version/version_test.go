package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() {
		Version, Commit = origVersion, origCommit
	}()

	Version = "1.4.0"
	Commit = "abc1234"

	assert.Equal(t, "1.4.0 (abc1234)", String())
}

func TestUserAgent(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "dev"
	assert.Equal(t, "price-streamer/dev", UserAgent())
}

func TestGoVersion(t *testing.T) {
	got := GoVersion()
	assert.True(t, strings.HasPrefix(got, "go") || got == "unknown", "GoVersion() = %q", got)
}
