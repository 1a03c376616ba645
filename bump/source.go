package bump

import (
	"os"
	"path/filepath"
)

// SourceKind identifies where the app config comes from.
type SourceKind int

const (
	// NoSource means the project has no app config.
	NoSource SourceKind = iota
	// StaticFile is a declarative JSON app config that can be edited.
	StaticFile
	// ResolvedViaExternalTool is a dynamic app config (app.config.js/ts) that only the Expo CLI can evaluate.
	ResolvedViaExternalTool
)

func (k SourceKind) String() string {
	switch k {
	case StaticFile:
		return "static-file"
	case ResolvedViaExternalTool:
		return "external-tool"
	default:
		return "none"
	}
}

// dynamicConfigFiles are probed, in order, when the static file is absent.
var dynamicConfigFiles = []string{"app.config.ts", "app.config.js"}

// ConfigSource is the selected app config location.
type ConfigSource struct {
	Kind SourceKind
	Path string
}

// SelectAppConfigSource probes projectDir for the static app config file, then for a dynamic one.
func SelectAppConfigSource(projectDir, file string) ConfigSource {
	if file == "" {
		file = "app.json"
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, file)
	}
	if isFile(path) {
		return ConfigSource{Kind: StaticFile, Path: path}
	}
	for _, name := range dynamicConfigFiles {
		p := filepath.Join(projectDir, name)
		if isFile(p) {
			return ConfigSource{Kind: ResolvedViaExternalTool, Path: p}
		}
	}
	return ConfigSource{Kind: NoSource}
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
