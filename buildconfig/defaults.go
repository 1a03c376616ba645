package buildconfig

// DefaultConfigFile is the declarative build config file name, relative to the project dir.
const DefaultConfigFile = "app-build.json"

// DefaultProfile is used when no profile is requested.
const DefaultProfile = "production"

// Hard defaults, the last resort after action inputs and the config file.
const (
	DefaultIOSBuildConfiguration = "Release"
	DefaultIOSExportMethod       = "app-store"
	DefaultAndroidBuildType      = "release"
	DefaultAndroidAAB            = true

	DefaultVersionStrategy = "app-json"
	DefaultVersionSource   = "app.json"
	DefaultGitTagPattern   = "v*"

	DefaultUpdatesChannel = "production"
)

// Version bump strategies.
const (
	StrategyAppJSON        = "app-json"
	StrategyGitTag         = "git-tag"
	StrategyGitCommitCount = "git-commit-count"
	StrategyTimestamp      = "timestamp"
)

// Strategies lists every supported version bump strategy.
var Strategies = []string{StrategyAppJSON, StrategyGitTag, StrategyGitCommitCount, StrategyTimestamp}
