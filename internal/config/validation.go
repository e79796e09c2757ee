package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// Named ROM sources with built-in URL rules.
const (
	SourceLineageOS       = "lineageos"
	SourcePixelExperience = "pixelexperience"
	SourceEvolutionX      = "evolutionx"
)

// Validate checks cross-field rules the schema cannot express.
func (c *BuildConfig) Validate() error {
	if c.Device == "" {
		return fieldError("device", "device is required")
	}
	if c.Source.ROM == "" {
		return fieldError("rom", "rom is required")
	}
	if c.Output.Filename == "" {
		return fieldError("output.filename", "output filename is required")
	}

	// A local archive replaces the download, so source coordinates are unused.
	if c.RomArchive == "" {
		if err := c.validateSource(); err != nil {
			return err
		}
	}

	if c.MaxRetries < 1 {
		return fieldError("max_retries", fmt.Sprintf("max_retries must be at least 1, got %d", c.MaxRetries))
	}

	if c.ExpectedChecksum != "" {
		if b, err := hex.DecodeString(c.ExpectedChecksum); err != nil || len(b) != 32 {
			return fieldError("expected_checksum", "expected_checksum must be a 64 character hex SHA-256 digest")
		}
	}

	if !c.Signing.Method.IsValid() {
		return fieldError("signing.method", fmt.Sprintf("unknown signing method %q (expected apksigner, jarsigner, custom or test)", c.Signing.Method))
	}
	// Credentials are only needed when the signer actually runs.
	switch method := c.Signing.Method; {
	case c.SkipSigning:
	case method == SigningAPKSigner || method == SigningJarSigner:
		if c.Signing.KeystorePath == "" {
			return fieldError("signing.keystore_path", fmt.Sprintf("%s signing requires keystore_path", c.Signing.Method))
		}
		if c.Signing.KeyAlias == "" {
			return fieldError("signing.key_alias", fmt.Sprintf("%s signing requires key_alias", c.Signing.Method))
		}
	case method == SigningCustom:
		if strings.TrimSpace(c.Signing.CustomCommand) == "" {
			return fieldError("signing.custom_command", "custom signing requires custom_command")
		}
	}

	for stage := range c.Hooks {
		if !stage.IsValid() {
			return fieldError("hooks."+string(stage), fmt.Sprintf("unknown hook stage %q", stage))
		}
	}

	if c.Retry.Backoff != "" && NormalizeRetryBackoff(string(c.Retry.Backoff)) == "" {
		return fieldError("retry.backoff", fmt.Sprintf("unknown retry backoff %q (expected fixed, linear or exponential)", c.Retry.Backoff))
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		return fieldError("retry", "retry delays must not be negative")
	}

	return nil
}

func (c *BuildConfig) validateSource() error {
	if c.Source.IsURL() {
		return nil
	}
	switch strings.ToLower(c.Source.ROM) {
	case SourceLineageOS:
		required := []struct{ field, value string }{
			{"version", c.Source.Version},
			{"timestamp", c.Source.Timestamp},
			{"variant", c.Source.Variant},
		}
		for _, r := range required {
			if r.value == "" {
				return fieldError(r.field, fmt.Sprintf("%s is required for rom %q", r.field, c.Source.ROM))
			}
		}
	case SourcePixelExperience, SourceEvolutionX:
		if c.Source.Version == "" {
			return fieldError("version", fmt.Sprintf("version is required for rom %q", c.Source.ROM))
		}
	default:
		return fieldError("rom", fmt.Sprintf("rom %q is neither a known source (lineageos, pixelexperience, evolutionx) nor an http(s) URL", c.Source.ROM))
	}
	return nil
}

func fieldError(field, message string) error {
	return ferrors.ConfigError(message).WithContext("field", field).Build()
}
