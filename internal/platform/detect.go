package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual host detection.
type RealDetector struct{}

// NewDetector creates a new host detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs host detection.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture, and
// gopsutil for the distribution/product name and version.
//
// If gopsutil fails, Distro and Version are left empty and detection still
// succeeds. Only context cancellation is reported as an error.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeHostArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	distro, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Distro = normalizeName(distro)
	info.Version = normalizeName(version)

	return info, nil
}
