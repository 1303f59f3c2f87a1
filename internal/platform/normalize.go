package platform

import (
	"fmt"
	"strings"
)

// platformAliases maps accepted spellings to canonical platforms.
// "darwin" and "win" are the names used in distribution file names.
var platformAliases = map[string]Platform{
	"mac":     Mac,
	"macos":   Mac,
	"darwin":  Mac,
	"osx":     Mac,
	"linux":   Linux,
	"windows": Windows,
	"win":     Windows,
	"win32":   Windows,
}

// archAliases maps accepted spellings to canonical architectures.
var archAliases = map[string]Arch{
	"x64":     X64,
	"amd64":   X64,
	"x86_64":  X64,
	"arm64":   ARM64,
	"aarch64": ARM64,
}

// ParsePlatform converts a user supplied platform name to a Platform.
// Matching is case-insensitive.
func ParsePlatform(name string) (Platform, error) {
	if p, ok := platformAliases[normalizeName(name)]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown platform: %q (supported: mac, linux, windows)", name)
}

// ParseArch converts a user supplied architecture name to an Arch.
func ParseArch(name string) (Arch, error) {
	if a, ok := archAliases[normalizeName(name)]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown architecture: %q (supported: arm64, x64)", name)
}

// ParsePlatformList parses names that may be space or comma separated.
// Unknown names are returned separately rather than failing the whole list,
// so a caller can warn and continue.
func ParsePlatformList(args []string) (platforms []Platform, unknown []string) {
	for _, arg := range args {
		for _, name := range strings.Split(arg, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			p, err := ParsePlatform(name)
			if err != nil {
				unknown = append(unknown, name)
				continue
			}
			platforms = append(platforms, p)
		}
	}
	return platforms, unknown
}

// normalizeHostArch converts GOARCH values to the host architecture names
// reported in Info. Only amd64 and arm64 hosts are supported.
func normalizeHostArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64)", arch)
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
