package bump

import (
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionFromTag(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"v1.2.3", "1.2.3"},
		{"release-2.0.0", "2.0.0"},
		{"v3.1.4-beta.1", "3.1.4"},
		{"1.0.9", "1.0.9"},
		{"just-a-name", ""},
		{"v1.2", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got := ParseVersionFromTag(tt.tag)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNextVersion(t *testing.T) {
	tests := map[string]string{
		"1.2.3":  "1.2.4",
		"2.0.0":  "2.0.1",
		"1.2.99": "1.2.100",
		"0.0.0":  "1.0.0",
		"0.4.2":  "1.4.2",
		"0.0.7":  "1.0.7",
	}
	for prev, want := range tests {
		assert.Equal(t, want, NextVersion(semver.MustParse(prev)).String(), prev)
	}
}

func TestEncodeBuildNumber(t *testing.T) {
	n, err := EncodeBuildNumber(semver.MustParse("1.2.4"))
	require.NoError(t, err)
	assert.EqualValues(t, 10204, n)

	n, err = EncodeBuildNumber(semver.MustParse("12.99.99"))
	require.NoError(t, err)
	assert.EqualValues(t, 129999, n)

	_, err = EncodeBuildNumber(semver.MustParse("1.2.100"))
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "1.2.100", rangeErr.Version)

	_, err = EncodeBuildNumber(semver.MustParse("1.100.0"))
	require.ErrorAs(t, err, &rangeErr)
}

func TestGenerateTimestamp(t *testing.T) {
	assert.EqualValues(t, 202406151430, GenerateTimestamp(time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)))
	assert.EqualValues(t, 200001010000, GenerateTimestamp(time.Date(2000, 1, 1, 0, 0, 59, 0, time.UTC)))

	est := time.FixedZone("EST", -5*3600)
	assert.EqualValues(t, 202406151430, GenerateTimestamp(time.Date(2024, 6, 15, 9, 30, 0, 0, est)))
}
