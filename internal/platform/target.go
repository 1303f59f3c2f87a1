package platform

// Platform is a packaging target operating system.
type Platform string

const (
	Mac     Platform = "mac"
	Linux   Platform = "linux"
	Windows Platform = "windows"
)

// DistName returns the platform name used in runtime distribution file names.
func (p Platform) DistName() string {
	switch p {
	case Mac:
		return "darwin"
	case Windows:
		return "win"
	default:
		return string(p)
	}
}

// ArchiveExt returns the extension of the distribution archive for p.
func (p Platform) ArchiveExt() string {
	if p == Windows {
		return "zip"
	}
	return "tar.xz"
}

// ExeSuffix returns ".exe" for windows and "" otherwise.
func (p Platform) ExeSuffix() string {
	if p == Windows {
		return ".exe"
	}
	return ""
}

// Arch is a packaging target CPU architecture.
type Arch string

const (
	ARM64 Arch = "arm64"
	X64   Arch = "x64"
)

// DefaultPlatforms is the platform order used when none are requested.
var DefaultPlatforms = []Platform{Mac, Linux, Windows}

// DefaultArchs is the architecture order used when none are requested.
var DefaultArchs = []Arch{ARM64, X64}

// Target is one platform/architecture pair of the packaging matrix.
type Target struct {
	Platform Platform
	Arch     Arch
}

// String returns the distribution style name, e.g. "linux-x64" or "win-arm64".
func (t Target) String() string {
	return t.Platform.DistName() + "-" + string(t.Arch)
}

// Matrix returns the cross product of platforms and archs, platforms outer
// and archs inner, preserving the given order. Repeated entries in either
// list are ignored after their first occurrence.
func Matrix(platforms []Platform, archs []Arch) []Target {
	platforms = dedupe(platforms)
	archs = dedupe(archs)

	targets := make([]Target, 0, len(platforms)*len(archs))
	for _, p := range platforms {
		for _, a := range archs {
			targets = append(targets, Target{Platform: p, Arch: a})
		}
	}
	return targets
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
