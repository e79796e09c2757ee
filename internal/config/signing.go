package config

import "strings"

// SigningMethod names one of the supported signing strategies.
type SigningMethod string

const (
	SigningAPKSigner SigningMethod = "apksigner"
	SigningJarSigner SigningMethod = "jarsigner"
	SigningCustom    SigningMethod = "custom"
	SigningTest      SigningMethod = "test"
)

// NormalizeSigningMethod lower-cases and trims raw; an empty value selects the test method.
func NormalizeSigningMethod(raw string) SigningMethod {
	m := SigningMethod(strings.ToLower(strings.TrimSpace(raw)))
	if m == "" {
		return SigningTest
	}
	return m
}

// IsValid reports whether m is a supported signing method.
func (m SigningMethod) IsValid() bool {
	switch m {
	case SigningAPKSigner, SigningJarSigner, SigningCustom, SigningTest:
		return true
	default:
		return false
	}
}

// SigningConfig is the signing descriptor as written in ROMMER.yaml.
// Which fields are meaningful depends on Method.
type SigningConfig struct {
	Method           SigningMethod `yaml:"method"`
	KeystorePath     string        `yaml:"keystore_path,omitempty"`
	KeyAlias         string        `yaml:"key_alias,omitempty"`
	KeystorePassword string        `yaml:"keystore_password,omitempty"`
	KeyPassword      string        `yaml:"key_password,omitempty"`
	CustomCommand    string        `yaml:"custom_command,omitempty"`
}
