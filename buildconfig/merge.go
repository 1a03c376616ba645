package buildconfig

import (
	"fmt"

	"github.com/ptrus/mobile-pipeline/models"
)

// MergeActionInputs combines the parsed config with per-invocation inputs.
//
// Precedence for scalar settings: action inputs, then the config file, then hard defaults.
// A config without build profiles resolves entirely from defaults, so a project with no
// config file at all is still buildable.
func MergeActionInputs(cfg *models.AppBuildConfig, inputs *models.ActionInputs) (*models.ResolvedConfig, error) {
	if cfg == nil {
		cfg = &models.AppBuildConfig{}
	}
	if !inputs.Platform.Valid() {
		return nil, fmt.Errorf("invalid platform %q (must be %q or %q)", inputs.Platform, models.PlatformIOS, models.PlatformAndroid)
	}

	profile := inputs.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	var stored models.BuildProfile
	if len(cfg.Build) > 0 {
		p, err := GetProfileConfig(cfg, profile, inputs.Platform)
		if err != nil {
			return nil, err
		}
		stored = p
	}

	resolved := &models.ResolvedConfig{
		Platform:    inputs.Platform,
		Profile:     profile,
		ProjectDir:  inputs.ProjectDir,
		Submit:      cfg.Submit,
		Signing:     cfg.Signing,
		Updates:     resolveUpdates(cfg.Updates, inputs),
		Version:     resolveVersion(cfg.Version, inputs),
		Credentials: inputs.Credentials,
	}

	switch inputs.Platform {
	case models.PlatformIOS:
		resolved.IOS = resolveIOS(stored.IOS, inputs)
	case models.PlatformAndroid:
		resolved.Android = resolveAndroid(stored.Android, inputs)
	}

	return resolved, nil
}

func resolveIOS(stored *models.IOSBuildConfig, inputs *models.ActionInputs) *models.IOSBuildConfig {
	out := &models.IOSBuildConfig{
		BuildConfiguration: DefaultIOSBuildConfiguration,
		ExportMethod:       DefaultIOSExportMethod,
	}
	if stored != nil {
		out.Scheme = firstNonEmpty(stored.Scheme, out.Scheme)
		out.BuildConfiguration = firstNonEmpty(stored.BuildConfiguration, out.BuildConfiguration)
		out.ExportMethod = firstNonEmpty(stored.ExportMethod, out.ExportMethod)
	}
	out.Scheme = firstNonEmpty(inputs.Scheme, out.Scheme)
	out.BuildConfiguration = firstNonEmpty(inputs.BuildConfiguration, out.BuildConfiguration)
	out.ExportMethod = firstNonEmpty(inputs.ExportMethod, out.ExportMethod)
	return out
}

func resolveAndroid(stored *models.AndroidBuildConfig, inputs *models.ActionInputs) *models.AndroidBuildConfig {
	aab := DefaultAndroidAAB
	out := &models.AndroidBuildConfig{
		BuildType: DefaultAndroidBuildType,
	}
	if stored != nil {
		out.BuildType = firstNonEmpty(stored.BuildType, out.BuildType)
		if stored.AAB != nil {
			aab = *stored.AAB
		}
	}
	out.BuildType = firstNonEmpty(inputs.BuildType, out.BuildType)
	if inputs.AAB != nil {
		aab = *inputs.AAB
	}
	out.AAB = &aab
	return out
}

func resolveVersion(stored *models.VersionConfig, inputs *models.ActionInputs) *models.VersionConfig {
	out := &models.VersionConfig{
		Source:        DefaultVersionSource,
		Strategy:      DefaultVersionStrategy,
		GitTagPattern: DefaultGitTagPattern,
	}
	if stored != nil {
		out.AutoIncrement = stored.AutoIncrement
		out.Source = firstNonEmpty(stored.Source, out.Source)
		out.Strategy = firstNonEmpty(stored.Strategy, out.Strategy)
		out.GitTagPattern = firstNonEmpty(stored.GitTagPattern, out.GitTagPattern)
	}
	if inputs.VersionBump != nil {
		out.AutoIncrement = *inputs.VersionBump
	}
	out.Source = firstNonEmpty(inputs.AppConfig, out.Source)
	out.Strategy = firstNonEmpty(inputs.VersionStrategy, out.Strategy)
	out.GitTagPattern = firstNonEmpty(inputs.GitTagPattern, out.GitTagPattern)
	return out
}

func resolveUpdates(stored *models.UpdatesConfig, inputs *models.ActionInputs) *models.UpdatesConfig {
	if stored == nil && !inputs.OTA {
		return nil
	}
	out := &models.UpdatesConfig{Channel: DefaultUpdatesChannel}
	if stored != nil {
		cp := *stored
		out = &cp
		out.Channel = firstNonEmpty(out.Channel, DefaultUpdatesChannel)
	}
	out.Enabled = out.Enabled || inputs.OTA
	out.Channel = firstNonEmpty(inputs.OTAChannel, out.Channel)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
