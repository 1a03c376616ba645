package bump

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"howett.net/plist"
)

// OutcomeStatus is the result of mirroring a build number into a native project.
type OutcomeStatus string

// Outcome statuses.
const (
	Applied        OutcomeStatus = "applied"
	SkippedMissing OutcomeStatus = "skipped-missing"
	Failed         OutcomeStatus = "failed"
)

// Outcome describes one native propagation attempt.
type Outcome struct {
	Status OutcomeStatus
	// Files lists the files that were updated.
	Files []string
	// Reason explains a skip or failure, or notes what an applied update left untouched.
	Reason string
}

// Info.plist keys.
const (
	plistBuildNumber = "CFBundleVersion"
	plistVersion     = "CFBundleShortVersionString"
)

var skippedIOSDirs = map[string]bool{"Pods": true, "build": true}

// PropagateIOS sets the build number, and the version when given, in every Info.plist under ios/.
func PropagateIOS(projectDir string, buildNumber int64, version string) Outcome {
	root := filepath.Join(projectDir, "ios")
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return Outcome{Status: SkippedMissing, Reason: "ios directory not found"}
	}

	plists, err := findInfoPlists(root)
	if err != nil {
		return Outcome{Status: Failed, Reason: fmt.Sprintf("failed to scan ios directory: %v", err)}
	}
	if len(plists) == 0 {
		return Outcome{Status: SkippedMissing, Reason: "no Info.plist found under ios"}
	}

	out := Outcome{Status: Applied}
	var failures []string
	for _, path := range plists {
		if err := updateInfoPlist(path, buildNumber, version); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		out.Files = append(out.Files, path)
	}
	if len(failures) > 0 {
		out.Status = Failed
		out.Reason = strings.Join(failures, "; ")
	}
	return out
}

func findInfoPlists(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (skippedIOSDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "Info.plist" {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

func updateInfoPlist(path string, buildNumber int64, version string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	format, err := plist.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("failed to parse plist: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	doc[plistBuildNumber] = strconv.FormatInt(buildNumber, 10)
	if version != "" {
		doc[plistVersion] = version
	}

	var updated []byte
	if format == plist.XMLFormat || format == plist.OpenStepFormat || format == plist.GNUStepFormat {
		updated, err = plist.MarshalIndent(doc, format, "\t")
	} else {
		updated, err = plist.Marshal(doc, format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode plist: %w", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, updated, fi.Mode().Perm())
}

var (
	gradleFiles = []string{"build.gradle", "build.gradle.kts"}

	versionCodeRe = regexp.MustCompile(`(versionCode\s*=?\s*)\d+`)
	versionNameRe = regexp.MustCompile(`(versionName\s*=?\s*)("[^"]*"|'[^']*')`)
)

// PropagateAndroid rewrites versionCode, and versionName when given, in the app build script.
// A missing versionName does not block the versionCode update; it is reported in Reason.
func PropagateAndroid(projectDir string, buildNumber int64, version string) Outcome {
	var path string
	for _, name := range gradleFiles {
		p := filepath.Join(projectDir, "android", "app", name)
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return Outcome{Status: SkippedMissing, Reason: "android/app build script not found"}
	}

	note, err := updateGradle(path, buildNumber, version)
	if err != nil {
		return Outcome{Status: Failed, Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	return Outcome{Status: Applied, Files: []string{path}, Reason: note}
}

func updateGradle(path string, buildNumber int64, version string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	script := string(data)

	script, ok := replaceFirst(versionCodeRe, script, "${1}"+strconv.FormatInt(buildNumber, 10))
	if !ok {
		return "", errors.New("versionCode not found")
	}
	var note string
	if version != "" {
		if script, ok = replaceVersionName(script, version); !ok {
			note = "versionName not found, only versionCode updated"
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return note, os.WriteFile(path, []byte(script), fi.Mode().Perm())
}

// replaceVersionName rewrites the first versionName literal, keeping its quote style.
func replaceVersionName(script, version string) (string, bool) {
	m := versionNameRe.FindStringSubmatchIndex(script)
	if m == nil {
		return script, false
	}
	quote := script[m[4] : m[4]+1]
	return script[:m[3]] + quote + version + quote + script[m[1]:], true
}

// replaceFirst expands repl for the first match of re only.
func replaceFirst(re *regexp.Regexp, s, repl string) (string, bool) {
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return s, false
	}
	var b []byte
	b = re.ExpandString(b, repl, s, m)
	return s[:m[0]] + string(b) + s[m[1]:], true
}
