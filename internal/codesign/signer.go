// Package codesign strips and applies native code signatures with the
// operating system's own tools.
//
// macOS binaries are handled with codesign and Windows binaries with
// signtool. Both only run on a host of the same OS; on any other host the
// signer does nothing except report the flags the embedding tool needs.
// Existing signatures are always removed before embedding when the host
// allows it. A new signature is only applied when credentials are present.
package codesign

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/signtool"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
)

// DefaultTimestampURL is the RFC 3161 server used for Authenticode.
const DefaultTimestampURL = "http://timestamp.digicert.com"

// machoSegmentFlags place the blob in its own Mach-O segment.
var machoSegmentFlags = []string{"--macho-segment-name", "NODE_SEA"}

// Credentials holds the signing inputs for every platform.
type Credentials struct {
	// MacIdentity is the codesign identity, e.g. "Developer ID Application: ...".
	MacIdentity string
	// WinPFX is the path to the Authenticode certificate.
	WinPFX string
	// WinPassword unlocks WinPFX.
	WinPassword string
	// TimestampURL overrides DefaultTimestampURL.
	TimestampURL string
}

// HasMac reports whether macOS signing was requested.
func (c Credentials) HasMac() bool {
	return c.MacIdentity != ""
}

// HasWindows reports whether Windows signing was requested. Both the
// certificate and its password are required.
func (c Credentials) HasWindows() bool {
	return c.WinPFX != "" && c.WinPassword != ""
}

// Signer prepares a runtime binary for embedding and signs the result.
type Signer interface {
	// Strip removes an existing signature.
	Strip(ctx context.Context, path string) error
	// Sign applies a new signature. It is a no-op without credentials.
	Sign(ctx context.Context, path string) error
	// EmbedFlags returns extra flags for the embedding tool.
	EmbedFlags() []string
	// Signs reports whether Sign will apply a signature.
	Signs() bool
}

// Deps are the collaborators a signer may need.
type Deps struct {
	Runner  toolexec.Runner
	Locator *signtool.Locator
	// SDKRoot is where the Locator searches, usually signtool.ProgramFiles().
	SDKRoot string
	Logger  logging.Logger
}

// ForTarget returns the signer for target on host.
func ForTarget(host *platform.Info, target platform.Target, creds Credentials, deps Deps) Signer {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	switch {
	case target.Platform == platform.Mac && host.CanSign(platform.Mac):
		return &Mac{Identity: creds.MacIdentity, Runner: deps.Runner, Logger: logger}
	case target.Platform == platform.Mac:
		if creds.HasMac() {
			logger.Warn("macOS signing requires a macOS host, leaving binary unsigned", "target", target.String())
		}
		return Unsigned{Flags: machoSegmentFlags}
	case target.Platform == platform.Windows && host.CanSign(platform.Windows):
		w := &Windows{
			PFX:          creds.WinPFX,
			Password:     creds.WinPassword,
			TimestampURL: creds.TimestampURL,
			Locator:      deps.Locator,
			SDKRoot:      deps.SDKRoot,
			Runner:       deps.Runner,
			Logger:       logger,
		}
		if w.Locator == nil {
			w.Locator = signtool.New(signtool.WithLogger(logger))
		}
		if w.SDKRoot == "" {
			w.SDKRoot = signtool.ProgramFiles()
		}
		return w
	case target.Platform == platform.Windows:
		if creds.HasWindows() {
			logger.Warn("Authenticode signing requires a Windows host, leaving binary unsigned", "target", target.String())
		}
		return Unsigned{}
	default:
		return Unsigned{}
	}
}

// Unsigned leaves binaries alone.
type Unsigned struct {
	Flags []string
}

func (Unsigned) Strip(context.Context, string) error { return nil }
func (Unsigned) Sign(context.Context, string) error  { return nil }
func (u Unsigned) EmbedFlags() []string              { return u.Flags }
func (Unsigned) Signs() bool                         { return false }

// Mac signs with codesign.
type Mac struct {
	Identity string
	Runner   toolexec.Runner
	Logger   logging.Logger
}

func (m *Mac) Strip(ctx context.Context, path string) error {
	m.Logger.Info("removing signature", "path", path)
	if _, err := m.Runner.Run(ctx, toolexec.Command{
		Name: "codesign",
		Args: []string{"--remove-signature", path},
	}); err != nil {
		return fmt.Errorf("remove macOS signature: %w", err)
	}
	return nil
}

func (m *Mac) Sign(ctx context.Context, path string) error {
	if !m.Signs() {
		return nil
	}
	m.Logger.Info("signing binary", "path", path)
	if _, err := m.Runner.Run(ctx, toolexec.Command{
		Name: "codesign",
		Args: []string{"--sign", m.Identity, path},
	}); err != nil {
		return fmt.Errorf("sign macOS binary: %w", err)
	}
	return nil
}

func (m *Mac) EmbedFlags() []string { return machoSegmentFlags }

func (m *Mac) Signs() bool { return m.Identity != "" }

// Windows signs with signtool from the Windows SDK.
type Windows struct {
	PFX          string
	Password     string
	TimestampURL string
	Locator      *signtool.Locator
	SDKRoot      string
	Runner       toolexec.Runner
	Logger       logging.Logger
}

func (w *Windows) tool(ctx context.Context) string {
	return w.Locator.Locate(ctx, w.SDKRoot)
}

func (w *Windows) Strip(ctx context.Context, path string) error {
	w.Logger.Info("removing signature", "path", path)
	if _, err := w.Runner.Run(ctx, toolexec.Command{
		Name: w.tool(ctx),
		Args: []string{"remove", "/s", path},
	}); err != nil {
		return fmt.Errorf("remove Authenticode signature: %w", err)
	}
	return nil
}

func (w *Windows) Sign(ctx context.Context, path string) error {
	if !w.Signs() {
		return nil
	}
	ts := w.TimestampURL
	if ts == "" {
		ts = DefaultTimestampURL
	}

	w.Logger.Info("signing binary", "path", path)
	if _, err := w.Runner.Run(ctx, toolexec.Command{
		Name: w.tool(ctx),
		Args: []string{
			"sign",
			"/fd", "SHA256",
			"/f", w.PFX,
			"/p", w.Password,
			"/t", ts,
			path,
		},
		Secrets: []string{w.Password},
	}); err != nil {
		return fmt.Errorf("sign Windows binary: %w", err)
	}
	return nil
}

func (w *Windows) EmbedFlags() []string { return nil }

func (w *Windows) Signs() bool { return w.PFX != "" && w.Password != "" }
