// Package platform describes the build targets seapack packages for and the
// host it runs on.
//
// A Target is one platform/architecture pair from the packaging matrix. The
// host Info decides which signing tools can run locally: macOS signatures
// can only be stripped and applied on a darwin host, Authenticode only on
// windows. Host detection uses gopsutil and degrades gracefully to the Go
// runtime values when the OS query fails.
package platform

import "context"

// Info contains host platform detection information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // original GOARCH
	Distro  string // OS distribution or product name as reported by the OS (e.g. "ubuntu", "darwin")
	Version string // OS version (e.g. "22.04", "14.5")
}

// IsLinux returns true if the host is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the host is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the host is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// CanSign reports whether the host can run the native signing tool for
// target platform p.
func (i *Info) CanSign(p Platform) bool {
	switch p {
	case Mac:
		return i.IsMacOS()
	case Windows:
		return i.IsWindows()
	default:
		return false
	}
}

// Detector is the interface for host platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. Useful for tests and for callers that
// already know the host.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns the configured info and error.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return s.Info, s.Err
}
