package toolchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"howett.net/plist"

	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// Credentials are signing and store secrets materialized on disk for one run.
type Credentials struct {
	// Env holds the variables the build tools read the credentials from.
	Env map[string]string
	// Dir is the private directory holding decoded files.
	Dir string

	keychain string
	profile  string
}

// Environment variables exported by InstallCredentials.
const (
	EnvKeychainPath         = "KEYCHAIN_PATH"
	EnvKeychainPassword     = "KEYCHAIN_PASSWORD"
	EnvProvisioningProfile  = "PROVISIONING_PROFILE_PATH"
	EnvASCKeyPath           = "APP_STORE_CONNECT_API_KEY_PATH"
	EnvMatchPassword        = "MATCH_PASSWORD"
	EnvMatchKeychainName    = "MATCH_KEYCHAIN_NAME"
	EnvMatchKeychainPass    = "MATCH_KEYCHAIN_PASSWORD"
	EnvKeystorePath         = "ANDROID_KEYSTORE_PATH"
	EnvKeystorePassword     = "ANDROID_KEYSTORE_PASSWORD"
	EnvKeyAlias             = "ANDROID_KEY_ALIAS"
	EnvKeyPassword          = "ANDROID_KEY_PASSWORD"
	EnvPlayServiceAccount   = "SUPPLY_JSON_KEY"
	EnvExpoToken            = "EXPO_TOKEN"
	provisioningProfilesDir = "Library/MobileDevice/Provisioning Profiles"
)

// secretEnvKeys name the variables whose values are masked in logs and command errors.
var secretEnvKeys = []string{
	EnvKeychainPassword,
	EnvMatchPassword,
	EnvMatchKeychainPass,
	EnvKeystorePassword,
	EnvKeyPassword,
	EnvExpoToken,
}

// secretValues returns the values of the secret variables set in env.
func secretValues(env map[string]string) []string {
	var out []string
	for _, key := range secretEnvKeys {
		if v := env[key]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ascAPIKey is the App Store Connect API key file format read by fastlane.
type ascAPIKey struct {
	KeyID    string `json:"key_id"`
	IssuerID string `json:"issuer_id"`
	Key      string `json:"key"`
	InHouse  bool   `json:"in_house"`
}

// InstallCredentials decodes the credentials for platform into a private directory and, for
// iOS certificates, a temporary keychain. The process environment is not modified.
func (t *Toolchain) InstallCredentials(ctx context.Context, platform models.Platform, creds models.Credentials) (*Credentials, error) {
	dir, err := os.MkdirTemp("", "mobile-pipeline-credentials-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	installed := &Credentials{Env: map[string]string{}, Dir: dir}

	if creds.ExpoToken != "" {
		installed.Env[EnvExpoToken] = creds.ExpoToken
	}

	switch platform {
	case models.PlatformIOS:
		err = t.installIOS(ctx, installed, creds.IOS)
	case models.PlatformAndroid:
		err = installAndroid(installed, creds.Android)
	}
	if err != nil {
		t.RemoveCredentials(ctx, installed)
		return nil, err
	}

	t.logger.Info("credentials installed", "platform", platform, "env_keys", len(installed.Env))
	return installed, nil
}

func (t *Toolchain) installIOS(ctx context.Context, installed *Credentials, creds models.IOSCredentials) error {
	if creds.P12Base64 != "" {
		p12, err := decodeTo(installed.Dir, "certificate.p12", "ios_p12_base64", creds.P12Base64)
		if err != nil {
			return err
		}
		if err := t.createKeychain(ctx, installed, p12, creds); err != nil {
			return err
		}
	}

	if creds.ProvisioningProfileBase64 != "" {
		path, err := t.installProfile(installed, creds.ProvisioningProfileBase64)
		if err != nil {
			return err
		}
		installed.Env[EnvProvisioningProfile] = path
	}

	if creds.ASCKeyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(creds.ASCKeyBase64)
		if err != nil {
			return fmt.Errorf("failed to decode ios_asc_key_base64: %w", err)
		}
		data, err := json.Marshal(ascAPIKey{KeyID: creds.ASCKeyID, IssuerID: creds.ASCIssuerID, Key: string(key)})
		if err != nil {
			return err
		}
		path := filepath.Join(installed.Dir, "asc-api-key.json")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write App Store Connect key: %w", err)
		}
		installed.Env[EnvASCKeyPath] = path
	}

	if creds.MatchPassword != "" {
		installed.Env[EnvMatchPassword] = creds.MatchPassword
	}
	return nil
}

func (t *Toolchain) createKeychain(ctx context.Context, installed *Credentials, p12 string, creds models.IOSCredentials) error {
	password := creds.KeychainPassword
	if password == "" {
		password = uuid.NewString()
	}
	keychain := filepath.Join(installed.Dir, "build.keychain-db")

	steps := [][]string{
		{"create-keychain", "-p", password, keychain},
		{"set-keychain-settings", "-lut", "21600", keychain},
		{"unlock-keychain", "-p", password, keychain},
		{"import", p12, "-P", creds.P12Password, "-A", "-t", "cert", "-f", "pkcs12", "-k", keychain},
		{"set-key-partition-list", "-S", "apple-tool:,apple:", "-k", password, keychain},
		{"list-keychains", "-d", "user", "-s", keychain, "login.keychain-db"},
	}
	opts := runner.Options{Dir: t.projectDir, Sensitive: []string{password, creds.P12Password}}
	for _, args := range steps {
		if _, err := t.runner.Run(ctx, "security", args, opts); err != nil {
			return fmt.Errorf("failed to set up keychain (%s): %w", args[0], err)
		}
		if args[0] == "create-keychain" {
			installed.keychain = keychain
		}
	}

	installed.Env[EnvKeychainPath] = keychain
	installed.Env[EnvKeychainPassword] = password
	installed.Env[EnvMatchKeychainName] = keychain
	installed.Env[EnvMatchKeychainPass] = password
	return nil
}

// installProfile copies the profile into the user's provisioning profile directory, named
// by its UUID so Xcode can find it.
func (t *Toolchain) installProfile(installed *Credentials, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ios_provisioning_profile_base64: %w", err)
	}

	name := profileUUID(data)
	if name == "" {
		name = uuid.NewString()
	}
	dir := filepath.Join(t.homeDir, provisioningProfilesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create provisioning profile directory: %w", err)
	}
	path := filepath.Join(dir, name+".mobileprovision")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to install provisioning profile: %w", err)
	}
	installed.profile = path
	return path, nil
}

// profileUUID extracts the UUID from the plist embedded in a signed provisioning profile.
func profileUUID(data []byte) string {
	start := bytes.Index(data, []byte("<?xml"))
	end := bytes.Index(data, []byte("</plist>"))
	if start < 0 || end < start {
		return ""
	}
	var profile struct {
		UUID string `plist:"UUID"`
	}
	if _, err := plist.Unmarshal(data[start:end+len("</plist>")], &profile); err != nil {
		return ""
	}
	return profile.UUID
}

func installAndroid(installed *Credentials, creds models.AndroidCredentials) error {
	if creds.KeystoreBase64 != "" {
		path, err := decodeTo(installed.Dir, "release.keystore", "android_keystore_base64", creds.KeystoreBase64)
		if err != nil {
			return err
		}
		installed.Env[EnvKeystorePath] = path
		installed.Env[EnvKeystorePassword] = creds.KeystorePassword
		installed.Env[EnvKeyAlias] = creds.KeyAlias
		installed.Env[EnvKeyPassword] = creds.KeyPassword
	}

	if creds.PlayServiceAccountBase64 != "" {
		path, err := decodeTo(installed.Dir, "play-service-account.json", "android_play_service_account_base64", creds.PlayServiceAccountBase64)
		if err != nil {
			return err
		}
		installed.Env[EnvPlayServiceAccount] = path
	}
	return nil
}

func decodeTo(dir, name, input, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", input, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// RemoveCredentials deletes the keychain, installed profile and decoded files. Errors are logged.
func (t *Toolchain) RemoveCredentials(ctx context.Context, installed *Credentials) {
	if installed == nil {
		return
	}
	if installed.keychain != "" {
		if _, err := t.runner.Run(ctx, "security", []string{"delete-keychain", installed.keychain}, runner.Options{Dir: t.projectDir}); err != nil {
			t.logger.Warn("failed to delete keychain", "err", err)
		}
	}
	if installed.profile != "" {
		if err := os.Remove(installed.profile); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("failed to remove provisioning profile", "err", err)
		}
	}
	if err := os.RemoveAll(installed.Dir); err != nil {
		t.logger.Warn("failed to remove credentials directory", "err", err)
	}
}
