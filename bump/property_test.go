//go:build property

package bump

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// Property: GenerateTimestamp is always 12 digits for years 2000-2099.
func TestTimestampWidth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2099, 12, 31, 23, 59, 0, 0, time.UTC)

	properties.Property("timestamp has 12 digits", prop.ForAll(
		func(ts time.Time) bool {
			return len(strconv.FormatInt(GenerateTimestamp(ts), 10)) == 12
		},
		gen.TimeRange(start, end.Sub(start)),
	))

	properties.TestingRun(t)
}

// Property: encoded build numbers order the same way as versions.
func TestEncodeBuildNumberMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	component := gen.UInt64Range(0, 99)
	properties.Property("encoding preserves order", prop.ForAll(
		func(a, b, c, x, y, z uint64) bool {
			v1 := semver.New(a, b, c, "", "")
			v2 := semver.New(x, y, z, "", "")
			n1, err1 := EncodeBuildNumber(v1)
			n2, err2 := EncodeBuildNumber(v2)
			if err1 != nil || err2 != nil {
				return false
			}
			return v1.Compare(v2) == compareInt(n1, n2)
		},
		component, component, component, component, component, component,
	))

	properties.TestingRun(t)
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Property: consecutive app-json bumps yield N+1 then N+2.
func TestAppJSONConsecutive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("bumps are consecutive", prop.ForAll(
		func(start int64, ios bool) bool {
			dir := t.TempDir()
			platform := models.PlatformAndroid
			doc := `{"expo":{"android":{"versionCode":` + strconv.FormatInt(start, 10) + `}}}`
			if ios {
				platform = models.PlatformIOS
				doc = `{"expo":{"ios":{"buildNumber":"` + strconv.FormatInt(start, 10) + `"}}}`
			}
			if err := os.WriteFile(filepath.Join(dir, "app.json"), []byte(doc), 0o644); err != nil {
				return false
			}

			e := newTestEngine(&runner.Fake{})
			opts := Options{Platform: platform, ProjectDir: dir}
			first, err := e.Bump(context.Background(), opts)
			if err != nil {
				return false
			}
			second, err := e.Bump(context.Background(), opts)
			if err != nil {
				return false
			}
			return first.NewValue == start+1 && second.PreviousValue == start+1 && second.NewValue == start+2
		},
		gen.Int64Range(0, 1<<40),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
