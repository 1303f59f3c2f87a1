// Package inject embeds a single executable application blob into a runtime
// binary with postject.
package inject

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
)

const (
	// SentinelFuse marks the injection point inside the runtime binary.
	SentinelFuse = "NODE_SEA_FUSE_fce680ab2cc467b6e072b8b5df1996b2"
	// ResourceName is the name of the resource holding the blob.
	ResourceName = "NODE_SEA_BLOB"
)

// DefaultCommand runs postject through npx.
var DefaultCommand = []string{"npx", "postject"}

// Injector invokes the embedding tool.
type Injector struct {
	command []string
	runner  toolexec.Runner
	logger  logging.Logger
}

// New creates an Injector. An empty command means DefaultCommand.
func New(command []string, runner toolexec.Runner, logger logging.Logger) *Injector {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Injector{command: command, runner: runner, logger: logger}
}

// Command returns the invocation that injects blob into binary. extraFlags
// are appended after the sentinel fuse, e.g. a Mach-O segment name.
func (i *Injector) Command(binary, blob string, extraFlags []string) (toolexec.Command, error) {
	absBlob, err := filepath.Abs(blob)
	if err != nil {
		return toolexec.Command{}, fmt.Errorf("resolve blob path: %w", err)
	}

	args := make([]string, 0, len(i.command)+6+len(extraFlags))
	args = append(args, i.command[1:]...)
	args = append(args,
		binary,
		ResourceName,
		absBlob,
		"--sentinel-fuse", SentinelFuse,
	)
	args = append(args, extraFlags...)

	return toolexec.Command{Name: i.command[0], Args: args}, nil
}

// Inject writes blob into binary in place.
func (i *Injector) Inject(ctx context.Context, binary, blob string, extraFlags []string) error {
	cmd, err := i.Command(binary, blob, extraFlags)
	if err != nil {
		return err
	}

	i.logger.Debug("writing executable", "binary", binary)
	if _, err := i.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("inject application blob into %s: %w", filepath.Base(binary), err)
	}
	return nil
}
