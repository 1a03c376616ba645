package pipeline

import (
	"errors"
	"fmt"

	"github.com/ptrus/mobile-pipeline/buildconfig"
	"github.com/ptrus/mobile-pipeline/bump"
	"github.com/ptrus/mobile-pipeline/fingerprint"
	"github.com/ptrus/mobile-pipeline/runner"
	"github.com/ptrus/mobile-pipeline/toolchain"
)

// FailureMessage formats a pipeline error for the run history, with a hint for known failures.
func FailureMessage(err error) string {
	var (
		validationErr *buildconfig.ConfigValidationError
		profileErr    *buildconfig.ProfileNotFoundError
		platformErr   *buildconfig.PlatformNotConfiguredError
		parseErr      *fingerprint.ParseError
		fieldErr      *fingerprint.FieldError
		invalidErr    *bump.InvalidValueError
		rangeErr      *bump.RangeError
		artifactErr   *toolchain.ArtifactNotFoundError
		exitErr       *runner.ExitError
	)

	var hint string
	switch {
	case errors.As(err, &validationErr), errors.As(err, &profileErr), errors.As(err, &platformErr):
		hint = "Fix the build config file and run again."
	case errors.As(err, &parseErr), errors.As(err, &fieldErr):
		hint = "The fingerprint tool output changed shape; check the installed expo-updates version."
	case errors.As(err, &invalidErr):
		hint = fmt.Sprintf("Set %s to a whole number in the app config.", invalidErr.Field)
	case errors.As(err, &rangeErr):
		hint = "Use the git-commit-count or timestamp version strategy for versions with components above 99."
	case errors.As(err, &artifactErr):
		hint = "The build finished without producing an artifact; check the build output location."
	case errors.As(err, &exitErr):
		hint = fmt.Sprintf("%s exited with code %d.", exitErr.Command, exitErr.ExitCode)
	}

	if hint == "" {
		return err.Error()
	}
	return err.Error() + "\n\n" + hint
}
