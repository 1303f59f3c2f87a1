package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

// Config is the complete seapack build configuration.
type Config struct {
	App      App      `yaml:"app"`
	Runtime  Runtime  `yaml:"runtime"`
	Targets  Targets  `yaml:"targets"`
	Output   string   `yaml:"output"`
	Jobs     int      `yaml:"jobs"`
	Retries  int      `yaml:"retries"`
	Signing  Signing  `yaml:"signing"`
	Verify   Verify   `yaml:"verify"`
	Postject []string `yaml:"postject,omitempty"`
}

// App describes the application being packaged.
type App struct {
	// Name prefixes every output file: <name>-<platform>-<arch>[.exe].
	Name string `yaml:"name"`
	// Blob is the prepared SEA blob. Empty means read it from SeaConfig.
	Blob string `yaml:"blob,omitempty"`
	// SeaConfig is the sea-config.json used to produce the blob.
	SeaConfig string `yaml:"sea_config"`
	// Prebuild runs before the blob is generated, e.g. {"node", "build.js"}.
	Prebuild []string `yaml:"prebuild,omitempty"`
	// GenerateBlob runs node --experimental-sea-config before packaging.
	// Ignored when Blob is set.
	GenerateBlob bool `yaml:"generate_blob"`
}

// Runtime selects the Node.js distribution.
type Runtime struct {
	Version string `yaml:"version"`
	Mirror  string `yaml:"mirror"`
}

// Targets lists the platforms and architectures to build.
type Targets struct {
	Platforms []platform.Platform `yaml:"platforms"`
	Archs     []platform.Arch     `yaml:"archs"`
}

// Signing holds per-platform signing settings.
type Signing struct {
	Mac     MacSigning     `yaml:"mac"`
	Windows WindowsSigning `yaml:"windows"`
}

// MacSigning configures codesign.
type MacSigning struct {
	Identity string `yaml:"identity,omitempty"`
}

// WindowsSigning configures signtool.
type WindowsSigning struct {
	PFX          string `yaml:"pfx,omitempty"`
	Password     string `yaml:"-"`
	TimestampURL string `yaml:"timestamp_url,omitempty"`
}

// Verify controls archive integrity checks.
type Verify struct {
	Checksums bool   `yaml:"checksums"`
	Keyring   string `yaml:"keyring,omitempty"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		App: App{
			Name:         DefaultAppName,
			SeaConfig:    DefaultSeaConfig,
			GenerateBlob: true,
		},
		Runtime: Runtime{
			Version: DefaultRuntimeVersion,
			Mirror:  DefaultMirror,
		},
		Targets: Targets{
			Platforms: append([]platform.Platform(nil), platform.DefaultPlatforms...),
			Archs:     append([]platform.Arch(nil), platform.DefaultArchs...),
		},
		Output:  DefaultOutput,
		Jobs:    1,
		Retries: DefaultRetries,
	}
}

// Matrix returns the targets to build in order.
func (c *Config) Matrix() []platform.Target {
	return platform.Matrix(c.Targets.Platforms, c.Targets.Archs)
}

// Validate checks a fully resolved Config.
func (c *Config) Validate() error {
	if err := validateAppName(c.App.Name); err != nil {
		return &ValidationError{Field: "app.name", Message: err.Error()}
	}

	if !versionPattern.MatchString(c.Runtime.Version) {
		return &ValidationError{
			Field:   "runtime.version",
			Message: fmt.Sprintf("invalid version %q (expected MAJOR.MINOR.PATCH)", c.Runtime.Version),
		}
	}

	if err := validateMirror(c.Runtime.Mirror); err != nil {
		return &ValidationError{Field: "runtime.mirror", Message: err.Error()}
	}

	if len(c.Targets.Platforms) == 0 {
		return &ValidationError{Field: "platforms", Message: "no target platforms selected"}
	}
	if len(c.Targets.Archs) == 0 {
		return &ValidationError{Field: "archs", Message: "no target architectures selected"}
	}

	if strings.TrimSpace(c.Output) == "" {
		return &ValidationError{Field: "output", Message: "output directory cannot be empty"}
	}
	if err := validateOutputDir(c.Output); err != nil {
		return &ValidationError{Field: "output", Message: err.Error()}
	}

	if c.Jobs < 1 || c.Jobs > MaxJobs {
		return &ValidationError{Field: "jobs", Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxJobs, c.Jobs)}
	}
	if c.Retries < 0 || c.Retries > MaxRetries {
		return &ValidationError{Field: "retries", Message: fmt.Sprintf("must be between 0 and %d (got %d)", MaxRetries, c.Retries)}
	}

	w := c.Signing.Windows
	if (w.PFX == "") != (w.Password == "") {
		return &ValidationError{Field: "signing.windows", Message: "pfx and password must be given together"}
	}
	if w.TimestampURL != "" {
		if u, err := url.Parse(w.TimestampURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "signing.windows.timestamp_url", Message: "must be an http or https URL"}
		}
	}

	if c.Verify.Keyring != "" && !c.Verify.Checksums {
		return &ValidationError{Field: "verify.keyring", Message: "keyring requires checksum verification to be enabled"}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	appNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// validateAppName keeps output file names inside the output directory.
func validateAppName(name string) error {
	if name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if len(name) > MaxAppNameLength {
		return fmt.Errorf("app name too long (%d chars, max %d)", len(name), MaxAppNameLength)
	}
	if !appNamePattern.MatchString(name) {
		return fmt.Errorf("invalid app name %q (letters, digits, '.', '_' and '-' only)", name)
	}
	return nil
}

func validateMirror(mirror string) error {
	u, err := url.Parse(mirror)
	if err != nil {
		return fmt.Errorf("invalid mirror URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("mirror URL must use https:// or http:// scheme (got: %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mirror URL has no host")
	}
	return nil
}

// validateOutputDir refuses directories whose removal would be catastrophic,
// since the output directory is deleted before every build.
func validateOutputDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("cannot resolve output directory: %w", err)
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return fmt.Errorf("refusing to use filesystem root %s as output directory", abs)
	}
	if cwd, err := filepath.Abs("."); err == nil && abs == cwd {
		return fmt.Errorf("refusing to use the working directory as output directory")
	}
	return nil
}
