package version

import (
	"regexp"
	"testing"
)

var semver = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func TestVersionFormat(t *testing.T) {
	if !semver.MatchString(Version) {
		t.Errorf("Version = %q, want vMAJOR.MINOR.PATCH", Version)
	}
}
