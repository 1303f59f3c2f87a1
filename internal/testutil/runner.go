package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
)

// FakeRunner records commands instead of running them. FailOn maps a
// substring of the command line to the error returned for it.
type FakeRunner struct {
	mu       sync.Mutex
	Commands []toolexec.Command
	FailOn   map[string]error
}

// Run records cmd and returns the configured error, if any.
func (f *FakeRunner) Run(_ context.Context, cmd toolexec.Command) (*toolexec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Commands = append(f.Commands, cmd)
	line := cmd.Name + " " + strings.Join(cmd.Args, " ")
	for substr, err := range f.FailOn {
		if strings.Contains(line, substr) {
			return &toolexec.Result{}, err
		}
	}
	return &toolexec.Result{}, nil
}

// Lines returns each recorded command as a redacted command line.
func (f *FakeRunner) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, len(f.Commands))
	for i, c := range f.Commands {
		lines[i] = c.String()
	}
	return lines
}
