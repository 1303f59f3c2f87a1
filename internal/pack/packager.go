// Package pack turns runtime distributions into single executable
// applications, one per target.
//
// For every target the Packager opens the distribution archive as a stream,
// extracts the runtime binary into the output directory, strips its
// signature where the host allows, injects the application blob and signs
// the result. A failing target is recorded in the Report and the remaining
// targets still run.
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/seapack/internal/archive"
	"github.com/ZebulonRouseFrantzich/seapack/internal/codesign"
	"github.com/ZebulonRouseFrantzich/seapack/internal/dist"
	"github.com/ZebulonRouseFrantzich/seapack/internal/inject"
	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/signtool"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
	"github.com/ZebulonRouseFrantzich/seapack/internal/verify"
)

// Source opens distribution archives. *dist.Client implements it.
type Source interface {
	Open(ctx context.Context, target platform.Target, version string) (*dist.Stream, error)
}

// Plan describes one packaging run.
type Plan struct {
	// App names the output files.
	App string
	// Version is the runtime version to package.
	Version string
	// Targets in the order they are reported.
	Targets []platform.Target
	// OutputDir must already exist; see PrepareOutputDir.
	OutputDir string
	// Blob is the prepared SEA blob.
	Blob string
	// Jobs bounds how many targets run at once. Values below 1 mean 1.
	Jobs int
	// Credentials for signing.
	Credentials codesign.Credentials
	// Checksums, when not nil, are checked against every archive.
	Checksums verify.Checksums
	// RunID identifies the run in the report. Empty means a new UUID.
	RunID string
}

// Deps are the collaborators of a Packager.
type Deps struct {
	Source   Source
	Injector *inject.Injector
	// Runner executes the signing tools.
	Runner toolexec.Runner
	// Host decides which signing tools can run.
	Host *platform.Info
	// Locator finds signtool.exe and is shared by every Windows target.
	Locator *signtool.Locator
	// SDKRoot overrides where the Locator searches.
	SDKRoot string
	Clock   Clock
	Logger  logging.Logger
}

// Packager runs a Plan.
type Packager struct {
	source    Source
	extractor *archive.Extractor
	injector  *inject.Injector
	runner    toolexec.Runner
	host      *platform.Info
	locator   *signtool.Locator
	sdkRoot   string
	clock     Clock
	logger    logging.Logger
}

// New creates a Packager. Source, Injector, Runner and Locator are required.
// A missing Host is reported by Run.
func New(deps Deps) (*Packager, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("packager needs a runtime source")
	case deps.Injector == nil:
		return nil, errors.New("packager needs an injector")
	case deps.Runner == nil:
		return nil, errors.New("packager needs a command runner")
	case deps.Locator == nil:
		return nil, errors.New("packager needs a signtool locator")
	}

	p := &Packager{
		source:   deps.Source,
		injector: deps.Injector,
		runner:   deps.Runner,
		host:     deps.Host,
		locator:  deps.Locator,
		sdkRoot:  deps.SDKRoot,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if p.logger == nil {
		p.logger = logging.Nop()
	}
	if p.clock == nil {
		p.clock = RealClock{}
	}
	p.extractor = archive.NewExtractor(p.logger)
	return p, nil
}

// Run packages every target of plan. The returned error is only set when the
// plan itself is unusable; per-target failures are in Report.Err.
func (p *Packager) Run(ctx context.Context, plan Plan) (*Report, error) {
	if len(plan.Targets) == 0 {
		return nil, errors.New("no targets to package")
	}
	if plan.App == "" || plan.Blob == "" || plan.OutputDir == "" {
		return nil, errors.New("plan needs an app name, a blob and an output directory")
	}
	if p.host == nil {
		return nil, errors.New("host platform unknown")
	}
	if _, err := os.Stat(plan.Blob); err != nil {
		return nil, fmt.Errorf("application blob: %w", err)
	}

	jobs := plan.Jobs
	if jobs < 1 {
		jobs = 1
	}

	runID := plan.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	report := &Report{
		RunID:   runID,
		App:     plan.App,
		Version: plan.Version,
		Started: p.clock.Now(),
		Results: make([]JobResult, len(plan.Targets)),
	}
	p.logger.Info("packaging", "app", plan.App, "node", plan.Version, "targets", len(plan.Targets), "jobs", jobs, "run", report.RunID)

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, target := range plan.Targets {
		g.Go(func() error {
			if jobs == 1 {
				defer logging.Group(p.logger, "Package "+target.String())()
			}
			report.Results[i] = p.packageTarget(ctx, plan, target)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = p.clock.Now().Sub(report.Started)
	return report, nil
}

// packageTarget runs every stage for one target. Failures are recorded on the
// result.
func (p *Packager) packageTarget(ctx context.Context, plan Plan, target platform.Target) JobResult {
	start := p.clock.Now()
	res := JobResult{
		Target: target,
		Output: OutputPath(plan.OutputDir, plan.App, target),
		Stage:  StageOpen,
	}
	logger := p.logger

	fail := func(stage Stage, err error) JobResult {
		res.Stage = stage
		res.Err = err
		res.Error = err.Error()
		res.Duration = p.clock.Now().Sub(start)
		if stage != StageOpen && stage != StageVerify && stage != StageExtract {
			// A binary that was not injected or signed must not look finished.
			os.Remove(res.Output)
		}
		logger.Error("target failed", "target", target.String(), "stage", string(stage), "error", err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(StageOpen, err)
	}

	stream, err := p.source.Open(ctx, target, plan.Version)
	if err != nil {
		return fail(StageOpen, err)
	}
	defer stream.Close()

	var src io.Reader = stream
	var check func() error
	if plan.Checksums != nil {
		expected, err := plan.Checksums.Lookup(stream.Name)
		if err != nil {
			return fail(StageVerify, err)
		}
		hr := verify.NewHashingReader(stream)
		src = hr
		check = func() error {
			// Trailing bytes after the archive still count toward the digest.
			if _, err := io.Copy(io.Discard, hr); err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			return hr.Check(expected)
		}
	}

	extracted, err := p.extractor.ExtractToFile(ctx, archive.ForPlatform(target.Platform), src,
		archive.BinaryTarget(target.Platform), res.Output, check)
	if err != nil {
		if errors.Is(err, verify.ErrChecksumMismatch) {
			return fail(StageVerify, err)
		}
		return fail(StageExtract, err)
	}
	res.Bytes = extracted.Bytes
	logger.Debug("extracted runtime", "target", target.String(), "entry", extracted.Path, "bytes", extracted.Bytes)

	signer := codesign.ForTarget(p.host, target, plan.Credentials, codesign.Deps{
		Runner:  p.runner,
		Locator: p.locator,
		SDKRoot: p.sdkRoot,
		Logger:  logger,
	})

	if p.host.CanSign(target.Platform) {
		if err := signer.Strip(ctx, res.Output); err != nil {
			return fail(StageStrip, err)
		}
	}

	if err := p.injector.Inject(ctx, res.Output, plan.Blob, signer.EmbedFlags()); err != nil {
		return fail(StageInject, err)
	}

	if signer.Signs() {
		if err := signer.Sign(ctx, res.Output); err != nil {
			return fail(StageSign, err)
		}
		res.Signed = true
	}

	res.Stage = StageDone
	res.Duration = p.clock.Now().Sub(start)
	logger.Info("packaged", "target", target.String(), "output", res.Output, "signed", res.Signed)
	return res
}
