package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// DefaultConfigFile is the configuration file name looked up when no path is given.
const DefaultConfigFile = "ROMMER.yaml"

// DefaultMaxRetries is the number of download attempts used when max_retries is unset.
const DefaultMaxRetries = 3

// DownloadSentinel is the --romzip value that means "download the ROM".
const DownloadSentinel = ".download"

// GitPatchPrefix marks a patch entry that is fetched from a git remote.
const GitPatchPrefix = "git+"

// BuildConfig is the immutable description of a single pipeline run. It is
// constructed once by Load (including CLI overrides) and then only read.
type BuildConfig struct {
	Device           string
	Source           SourceDescriptor
	MaxRetries       int
	ExpectedChecksum string
	Patches          []string
	Output           OutputConfig
	Signing          SigningConfig
	Cleanup          bool
	CleanupOnFailure bool
	Hooks            Hooks
	Retry            RetryConfig
	DownloadDir      string
	WorkDir          string

	// Run-scoped fields, set from RunOptions.
	RomArchive  string
	SkipSigning bool
	DryRun      bool
	DryRunHooks bool
	Tags        []string

	// BaseDir is the directory relative paths in the document are resolved against.
	BaseDir string
}

// SourceDescriptor identifies the base ROM: a named source plus version
// coordinates, or a direct URL in ROM.
type SourceDescriptor struct {
	ROM            string
	Version        string
	AndroidVersion int
	Variant        string
	Timestamp      string
}

// IsURL reports whether the descriptor points at a literal URL.
func (s SourceDescriptor) IsURL() bool {
	return strings.HasPrefix(strings.ToLower(s.ROM), "http://") || strings.HasPrefix(strings.ToLower(s.ROM), "https://")
}

// OutputConfig describes the produced archive.
type OutputConfig struct {
	Filename string `yaml:"filename"`
}

// RetryConfig tunes the delay between download attempts.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay time.Duration    `yaml:"initial_delay"`
	MaxDelay     time.Duration    `yaml:"max_delay"`
}

// RunOptions carries command-line overrides. They shadow document fields at
// construction time only.
type RunOptions struct {
	RomArchive       string
	NoCleanup        bool
	CleanupOnFailure bool
	SkipSigning      bool
	DryRun           bool
	DryRunHooks      bool
	Tags             []string
}

// document mirrors ROMMER.yaml. Pointer fields distinguish "absent" from zero values.
type document struct {
	Device           string         `yaml:"device"`
	ROM              string         `yaml:"rom"`
	Version          string         `yaml:"version"`
	AndroidVersion   int            `yaml:"android_version"`
	Variant          string         `yaml:"variant"`
	Timestamp        string         `yaml:"timestamp"`
	MaxRetries       *int           `yaml:"max_retries"`
	ExpectedChecksum string         `yaml:"expected_checksum"`
	Patches          []string       `yaml:"patches"`
	Output           OutputConfig   `yaml:"output"`
	Signing          *SigningConfig `yaml:"signing"`
	Cleanup          *bool          `yaml:"cleanup"`
	CleanupOnFailure bool           `yaml:"cleanup_on_failure"`
	Hooks            Hooks          `yaml:"hooks"`
	Retry            RetryConfig    `yaml:"retry"`
	DownloadDir      string         `yaml:"download_dir"`
	WorkDir          string         `yaml:"work_dir"`
}

// Load reads, validates and resolves the configuration file at configPath,
// applying opts on top. Environment variables from .env files next to the
// configuration are loaded first so ${VAR} references can be expanded.
func Load(configPath string, opts RunOptions) (*BuildConfig, error) {
	baseDir := filepath.Dir(configPath)
	loadEnvFiles(baseDir)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read configuration file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse(data, baseDir, opts)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a BuildConfig from raw YAML. Relative paths are resolved against baseDir.
func Parse(data []byte, baseDir string, opts RunOptions) (*BuildConfig, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	if err := validateDocument(expanded); err != nil {
		return nil, err
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	if err := dec.Decode(&doc); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").Fatal().Build()
	}

	cfg := fromDocument(&doc, baseDir)
	cfg.apply(opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromDocument(doc *document, baseDir string) *BuildConfig {
	cfg := &BuildConfig{
		Device: strings.TrimSpace(doc.Device),
		Source: SourceDescriptor{
			ROM:            strings.TrimSpace(doc.ROM),
			Version:        strings.TrimSpace(doc.Version),
			AndroidVersion: doc.AndroidVersion,
			Variant:        strings.TrimSpace(doc.Variant),
			Timestamp:      strings.TrimSpace(doc.Timestamp),
		},
		MaxRetries:       DefaultMaxRetries,
		ExpectedChecksum: strings.ToLower(strings.TrimSpace(doc.ExpectedChecksum)),
		Output:           doc.Output,
		Signing:          SigningConfig{Method: SigningTest},
		Cleanup:          true,
		CleanupOnFailure: doc.CleanupOnFailure,
		Hooks:            Hooks{},
		Retry:            doc.Retry,
		DownloadDir:      doc.DownloadDir,
		WorkDir:          doc.WorkDir,
		BaseDir:          baseDir,
	}
	if doc.MaxRetries != nil {
		cfg.MaxRetries = *doc.MaxRetries
	}
	if doc.Cleanup != nil {
		cfg.Cleanup = *doc.Cleanup
	}
	if doc.Signing != nil {
		cfg.Signing = *doc.Signing
		cfg.Signing.Method = NormalizeSigningMethod(string(doc.Signing.Method))
		cfg.Signing.KeystorePath = cfg.resolvePath(doc.Signing.KeystorePath)
	}
	if raw := string(doc.Retry.Backoff); raw != "" {
		cfg.Retry.Backoff = NormalizeRetryBackoff(raw)
		if cfg.Retry.Backoff == "" {
			// keep the raw value so Validate can name it
			cfg.Retry.Backoff = RetryBackoffMode(raw)
		}
	}
	for stage, script := range doc.Hooks {
		cfg.Hooks[stage] = cfg.resolvePath(strings.TrimSpace(script))
	}
	for _, p := range doc.Patches {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, GitPatchPrefix) {
			p = cfg.resolvePath(p)
		}
		cfg.Patches = append(cfg.Patches, p)
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = baseDir
	} else {
		cfg.DownloadDir = cfg.resolvePath(cfg.DownloadDir)
	}
	if cfg.WorkDir != "" {
		cfg.WorkDir = cfg.resolvePath(cfg.WorkDir)
	}
	return cfg
}

func (c *BuildConfig) apply(opts RunOptions) {
	if opts.RomArchive != "" && opts.RomArchive != DownloadSentinel {
		c.RomArchive = ExpandHome(opts.RomArchive)
	}
	if opts.NoCleanup {
		c.Cleanup = false
	}
	if opts.CleanupOnFailure {
		c.CleanupOnFailure = true
	}
	c.SkipSigning = opts.SkipSigning
	c.DryRun = opts.DryRun
	c.DryRunHooks = opts.DryRunHooks
	c.Tags = append([]string(nil), opts.Tags...)
}

// resolvePath expands ~ and makes relative paths relative to BaseDir.
func (c *BuildConfig) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	p = ExpandHome(p)
	if filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// OutputPath returns the location of the produced archive.
func (c *BuildConfig) OutputPath() string {
	return c.resolvePath(c.Output.Filename)
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Summary renders a one-line description of the configured build.
func (c *BuildConfig) Summary() string {
	rom := c.Source.ROM
	if c.Source.IsURL() {
		rom = "custom"
	}
	return fmt.Sprintf("device=%s rom=%s version=%s android=%d patches=%d", c.Device, rom, c.Source.Version, c.Source.AndroidVersion, len(c.Patches))
}
