package pack

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
)

// DefaultNode is the runtime used to generate the blob.
const DefaultNode = "node"

// BlobBuilder produces the SEA blob from the application sources before
// packaging starts.
type BlobBuilder struct {
	Runner toolexec.Runner
	Node   string
	Logger logging.Logger
}

// Build runs the optional prebuild command and then
// node --experimental-sea-config <seaConfig>.
func (b *BlobBuilder) Build(ctx context.Context, prebuild []string, seaConfig string) error {
	logger := b.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	defer logging.Group(logger, "Prepare blob")()

	if len(prebuild) > 0 {
		logger.Info("running prebuild", "command", prebuild[0])
		if _, err := b.Runner.Run(ctx, toolexec.Command{Name: prebuild[0], Args: prebuild[1:]}); err != nil {
			return fmt.Errorf("prebuild: %w", err)
		}
	}

	node := b.Node
	if node == "" {
		node = DefaultNode
	}
	logger.Info("generating blob", "sea_config", seaConfig)
	if _, err := b.Runner.Run(ctx, toolexec.Command{
		Name: node,
		Args: []string{"--experimental-sea-config", seaConfig},
	}); err != nil {
		return fmt.Errorf("generate blob: %w", err)
	}
	return nil
}
