package config

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

const examplePatchName = "example_patch"

// scaffoldDocument is the starter configuration written by InitProject.
type scaffoldDocument struct {
	Device         string        `yaml:"device"`
	ROM            string        `yaml:"rom"`
	MaxRetries     int           `yaml:"max_retries"`
	Version        string        `yaml:"version"`
	AndroidVersion int           `yaml:"android_version"`
	Timestamp      string        `yaml:"timestamp"`
	Variant        string        `yaml:"variant"`
	Patches        []string      `yaml:"patches"`
	Output         OutputConfig  `yaml:"output"`
	Signing        SigningConfig `yaml:"signing"`
	Cleanup        bool          `yaml:"cleanup"`
}

var scaffoldComments = map[string]string{
	"device":    "device codename",
	"rom":       "lineageos, pixelexperience, evolutionx or a direct URL",
	"timestamp": "required for lineageos",
	"variant":   "required for lineageos",
	"signing":   "apksigner, jarsigner, custom or test",
}

const scaffoldGitignore = `# Generated and downloaded ROM archives
*.zip
*.part

# Signing material
*.keystore
*.jks
*.p12
*.pem
*.key
keys/

# Local environment overrides
.env
.env.local

# Editor files
.vscode/
.idea/
*.swp
*~
`

// InitProject scaffolds a new project in dir: a commented ROMMER.yaml, an
// example patch unit with deletion manifests and a .gitignore. Existing files
// are only overwritten when force is set. It returns the paths it wrote.
func InitProject(dir string, force bool) ([]string, error) {
	cfgPath := filepath.Join(dir, DefaultConfigFile)
	if !force {
		if _, err := os.Stat(cfgPath); err == nil {
			return nil, ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
				WithContext("path", cfgPath).
				Build()
		} else if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to inspect project directory").Build()
		}
	}

	cfgBody, err := renderScaffold()
	if err != nil {
		return nil, err
	}

	patchDir := filepath.Join(dir, examplePatchName)
	files := []struct {
		path string
		body []byte
	}{
		{cfgPath, cfgBody},
		{filepath.Join(patchDir, "system", "etc", "example_custom_file.txt"), []byte("This is an example custom file that will be added to the ROM\n")},
		{filepath.Join(patchDir, ".rommerdel"), []byte("# directories removed from the ROM, one per line\nsystem/app/ExampleBloatwareApp\nsystem/priv-app/UnwantedSystemApp\n")},
		{filepath.Join(patchDir, ".rommerfdel"), []byte("# files removed from the ROM, one per line\nsystem/media/bootanimation.zip\nsystem/etc/example_unwanted_file.conf\n")},
		{filepath.Join(dir, ".gitignore"), []byte(scaffoldGitignore)},
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return written, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to create directory").
				WithContext("path", filepath.Dir(f.path)).
				Build()
		}
		if err := os.WriteFile(f.path, f.body, 0o644); err != nil {
			return written, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write file").
				WithContext("path", f.path).
				Build()
		}
		written = append(written, f.path)
	}
	return written, nil
}

func renderScaffold() ([]byte, error) {
	doc := scaffoldDocument{
		Device:         "your_device_codename",
		ROM:            SourceLineageOS,
		MaxRetries:     DefaultMaxRetries,
		Version:        "22.1",
		AndroidVersion: 15,
		Timestamp:      "20250614",
		Variant:        "nightly",
		Patches:        []string{examplePatchName + "/"},
		Output:         OutputConfig{Filename: "custom-rom.zip"},
		Signing:        SigningConfig{Method: SigningTest},
		Cleanup:        true,
	}

	var node yaml.Node
	if err := node.Encode(doc); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render example configuration").Build()
	}
	// Mapping content alternates key and value nodes.
	for i := 0; i+1 < len(node.Content); i += 2 {
		if comment, ok := scaffoldComments[node.Content[i].Value]; ok {
			node.Content[i].LineComment = comment
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render example configuration").Build()
	}
	if err := enc.Close(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render example configuration").Build()
	}
	return buf.Bytes(), nil
}
