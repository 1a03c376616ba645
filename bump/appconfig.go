package bump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ptrus/mobile-pipeline/buildconfig"
	"github.com/ptrus/mobile-pipeline/models"
)

// Field paths in the app config document.
const (
	FieldVersion = "expo.version"

	fieldIOSBuildNumber     = "expo.ios.buildNumber"
	fieldBuildNumber        = "expo.buildNumber"
	fieldAndroidVersionCode = "expo.android.versionCode"
	fieldVersionCode        = "expo.versionCode"
)

// AppConfig is an app config JSON document edited in place. Key order and unrelated values
// are preserved across edits.
type AppConfig struct {
	path string
	data []byte
}

// LoadAppConfig reads the app config at path.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app config: %w", err)
	}
	return ParseAppConfig(path, data)
}

// ParseAppConfig parses an app config document. path is used for errors and Save.
func ParseAppConfig(path string, data []byte) (*AppConfig, error) {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &buildconfig.ConfigSyntaxError{Path: path, Err: err}
	}
	return &AppConfig{path: path, data: data}, nil
}

// Path returns the file the document was loaded from.
func (c *AppConfig) Path() string {
	return c.path
}

// Get returns the raw value at a dotted path.
func (c *AppConfig) Get(path string) gjson.Result {
	return gjson.GetBytes(c.data, path)
}

// Set replaces or creates the value at a dotted path.
func (c *AppConfig) Set(path string, value any) error {
	data, err := sjson.SetBytes(c.data, path, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	c.data = data
	return nil
}

// BuildNumberField returns the field a platform's build number is written to.
func BuildNumberField(platform models.Platform) string {
	if platform == models.PlatformIOS {
		return fieldIOSBuildNumber
	}
	return fieldAndroidVersionCode
}

// BuildNumber reads the platform build number, falling back to the shared field and then 0.
// A null field counts as absent.
func (c *AppConfig) BuildNumber(platform models.Platform) (int64, error) {
	fields := []string{fieldAndroidVersionCode, fieldVersionCode}
	if platform == models.PlatformIOS {
		fields = []string{fieldIOSBuildNumber, fieldBuildNumber}
	}

	for _, field := range fields {
		v := c.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		return parseWholeNumber(field, v)
	}
	return 0, nil
}

// SetBuildNumber writes the platform build number: a string for iOS, a number for Android.
func (c *AppConfig) SetBuildNumber(platform models.Platform, n int64) error {
	if platform == models.PlatformIOS {
		return c.Set(fieldIOSBuildNumber, strconv.FormatInt(n, 10))
	}
	return c.Set(fieldAndroidVersionCode, n)
}

// Bytes returns the document indented with two spaces and a trailing newline.
func (c *AppConfig) Bytes() ([]byte, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, c.data); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Save writes the document back to its file.
func (c *AppConfig) Save() error {
	data, err := c.Bytes()
	if err != nil {
		return fmt.Errorf("failed to format %s: %w", c.path, err)
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(c.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(c.path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.path, err)
	}
	return nil
}

func parseWholeNumber(field string, v gjson.Result) (int64, error) {
	raw := v.Raw
	switch v.Type {
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil || n < 0 {
			return 0, &InvalidValueError{Field: field, Raw: raw}
		}
		return n, nil
	case gjson.Number:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, &InvalidValueError{Field: field, Raw: raw}
		}
		return n, nil
	default:
		return 0, &InvalidValueError{Field: field, Raw: raw}
	}
}
