package bump

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
)

var versionTripleRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// ParseVersionFromTag extracts the first major.minor.patch triple from a tag name.
// Prefixes and suffixes are ignored ("release-2.0.0", "v3.1.4-beta.1"). Returns nil if there is none.
func ParseVersionFromTag(tag string) *semver.Version {
	m := versionTripleRe.FindStringSubmatch(tag)
	if m == nil {
		return nil
	}
	parts := make([]uint64, 3)
	for i := range parts {
		n, err := strconv.ParseUint(m[i+1], 10, 64)
		if err != nil {
			return nil
		}
		parts[i] = n
	}
	return semver.New(parts[0], parts[1], parts[2], "", "")
}

// NextVersion returns the version following prev.
//
// The patch is incremented, except for pre-1.0 versions: those move to major 1 and keep
// minor and patch as they were, so 0.0.0 becomes 1.0.0 and 0.4.2 becomes 1.4.2.
func NextVersion(prev *semver.Version) *semver.Version {
	if prev.Major() == 0 {
		return semver.New(1, prev.Minor(), prev.Patch(), "", "")
	}
	next := semver.New(prev.Major(), prev.Minor(), prev.Patch(), "", "").IncPatch()
	return &next
}

// EncodeBuildNumber packs a version into major*10000 + minor*100 + patch.
// Minor and patch above 99 would collide with other versions and are rejected.
func EncodeBuildNumber(v *semver.Version) (int64, error) {
	if v.Minor() > 99 || v.Patch() > 99 || v.Major() > math.MaxInt64/10000-1 {
		return 0, &RangeError{Version: v.String()}
	}
	return int64(v.Major())*10000 + int64(v.Minor())*100 + int64(v.Patch()), nil
}

// GenerateTimestamp returns t in UTC as a YYYYMMDDHHmm integer.
func GenerateTimestamp(t time.Time) int64 {
	u := t.UTC()
	return int64(u.Year())*100000000 +
		int64(u.Month())*1000000 +
		int64(u.Day())*10000 +
		int64(u.Hour())*100 +
		int64(u.Minute())
}
