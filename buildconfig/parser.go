// Package buildconfig loads, validates and resolves the declarative build config file.
package buildconfig

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ptrus/mobile-pipeline/models"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://mobile-pipeline.local/app-build.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("build config schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("build config schema compile failed: %w", err)
	}
	return schema, nil
})

// ParseFile reads and validates the build config at path.
// A missing file is not an error: the config file is optional and an empty config is returned.
func ParseFile(path string) (*models.AppBuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.AppBuildConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read build config %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse validates data against the build config schema and decodes it.
// path is only used in error messages.
func Parse(path string, data []byte) (*models.AppBuildConfig, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigSyntaxError{Path: path, Err: err}
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(raw); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("failed to validate build config %s: %w", path, err)
		}
		var violations []Violation
		collectViolations(ve, &violations)
		return nil, &ConfigValidationError{Path: path, Violations: dedupe(violations)}
	}

	cfg := &models.AppBuildConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigSyntaxError{Path: path, Err: err}
	}
	return cfg, nil
}

// collectViolations flattens a validation error tree into its leaf violations.
func collectViolations(ve *jsonschema.ValidationError, out *[]Violation) {
	// A profile is the only place using anyOf; report it once instead of per branch.
	if strings.HasSuffix(ve.KeywordLocation, "/anyOf") {
		*out = append(*out, Violation{
			Field:   fieldPath(ve.InstanceLocation),
			Message: "must configure at least one platform (ios or android)",
		})
		return
	}
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{Field: fieldPath(ve.InstanceLocation), Message: ve.Message})
		return
	}
	for _, cause := range ve.Causes {
		collectViolations(cause, out)
	}
}

// fieldPath converts a JSON pointer into a dotted field path.
func fieldPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return "(root)"
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func dedupe(in []Violation) []Violation {
	seen := make(map[Violation]bool, len(in))
	out := make([]Violation, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

// ProfileNames returns the sorted profile names defined in cfg.
func ProfileNames(cfg *models.AppBuildConfig) []string {
	names := make([]string, 0, len(cfg.Build))
	for name := range cfg.Build {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProfileConfig returns the stored settings of profile for platform.
// Only the requested platform is set on the returned profile; the pointer is the stored object.
func GetProfileConfig(cfg *models.AppBuildConfig, profile string, platform models.Platform) (models.BuildProfile, error) {
	p, ok := cfg.Build[profile]
	if !ok {
		return models.BuildProfile{}, &ProfileNotFoundError{Profile: profile, Available: ProfileNames(cfg)}
	}

	var configured []string
	if p.IOS != nil {
		configured = append(configured, string(models.PlatformIOS))
	}
	if p.Android != nil {
		configured = append(configured, string(models.PlatformAndroid))
	}

	switch {
	case platform == models.PlatformIOS && p.IOS != nil:
		return models.BuildProfile{IOS: p.IOS}, nil
	case platform == models.PlatformAndroid && p.Android != nil:
		return models.BuildProfile{Android: p.Android}, nil
	}
	return models.BuildProfile{}, &PlatformNotConfiguredError{
		Profile:    profile,
		Platform:   string(platform),
		Configured: configured,
	}
}
