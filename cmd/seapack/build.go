package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/seapack/internal/codesign"
	"github.com/ZebulonRouseFrantzich/seapack/internal/config"
	"github.com/ZebulonRouseFrantzich/seapack/internal/dist"
	"github.com/ZebulonRouseFrantzich/seapack/internal/inject"
	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/pack"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/signtool"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
	"github.com/ZebulonRouseFrantzich/seapack/internal/transaction"
	"github.com/ZebulonRouseFrantzich/seapack/internal/verify"
)

// buildOptions holds the parsed command line of `seapack build`.
type buildOptions struct {
	configPath  string
	macIdentity string
	winPFX      string
	winPassword string
	node        string
	output      string
	jobs        int
	archs       []string
	blob        string
	seaConfig   string
	appName     string
	mirror      string
	verify      bool
	keyring     string
	report      string
	debug       bool
	skipBlob    bool
	help        bool

	// platforms are the positional arguments.
	platforms []string
	flags     *pflag.FlagSet
}

func newBuildFlagSet(opts *buildOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("seapack build", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&opts.macIdentity, "mac-sign", "m", "", "common name of the macOS signing certificate (default: $MAC_DEVELOPER_CN)")
	fs.StringVarP(&opts.winPFX, "win-sign-pfx", "w", "", "PFX file holding the Windows signing keys (default: $WIN_DEVELOPER_PFX)")
	fs.StringVarP(&opts.winPassword, "win-sign-pwd", "p", "", "password of the PFX file (default: $WIN_DEVELOPER_PWD)")
	fs.StringVarP(&opts.node, "node", "n", "", "Node.js version to package (default: "+config.DefaultRuntimeVersion+")")
	fs.StringVarP(&opts.output, "output", "o", "", "folder that will contain the binaries (default: "+config.DefaultOutput+")")
	fs.StringVarP(&opts.configPath, "config", "c", "", "Lua config file (default: $SEAPACK_CONFIG or "+config.DefaultConfigFile+")")
	fs.IntVarP(&opts.jobs, "jobs", "j", 1, "targets packaged in parallel")
	fs.StringSliceVar(&opts.archs, "arch", nil, "architectures to build, e.g. arm64,x64")
	fs.StringVar(&opts.blob, "blob", "", "prepared SEA blob; skips blob generation")
	fs.StringVar(&opts.seaConfig, "sea-config", "", "sea-config.json naming the blob (default: "+config.DefaultSeaConfig+")")
	fs.StringVar(&opts.appName, "app-name", "", "prefix of the output file names")
	fs.StringVar(&opts.mirror, "mirror", "", "Node.js distribution mirror (default: "+config.DefaultMirror+")")
	fs.BoolVar(&opts.verify, "verify", false, "check archives against SHASUMS256.txt")
	fs.StringVar(&opts.keyring, "keyring", "", "OpenPGP keyring for SHASUMS256.txt.asc; implies --verify")
	fs.StringVar(&opts.report, "report", "", "write a YAML run report to this file")
	fs.BoolVar(&opts.skipBlob, "skip-blob", false, "do not run node --experimental-sea-config")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.BoolVarP(&opts.help, "help", "h", false, "show help")
	return fs
}

// parseBuildArgs parses the build command line.
func parseBuildArgs(args []string) (*buildOptions, error) {
	opts := &buildOptions{}
	fs := newBuildFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			opts.flags = fs
			return opts, nil
		}
		return nil, fmt.Errorf("%w\nRun 'seapack build --help' for usage", err)
	}
	opts.flags = fs
	opts.platforms = fs.Args()
	return opts, nil
}

func (o *buildOptions) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}

// applyTo overlays the options given on the command line onto cfg. Unknown
// platform names are reported and skipped.
func (o *buildOptions) applyTo(cfg *config.Config, logger logging.Logger) error {
	if o.changed("mac-sign") {
		cfg.Signing.Mac.Identity = o.macIdentity
	}
	if o.changed("win-sign-pfx") {
		cfg.Signing.Windows.PFX = o.winPFX
	}
	if o.changed("win-sign-pwd") {
		cfg.Signing.Windows.Password = o.winPassword
	}
	if o.changed("node") {
		cfg.Runtime.Version = dist.NormalizeVersion(o.node)
	}
	if o.changed("output") {
		cfg.Output = o.output
	}
	if o.changed("jobs") {
		cfg.Jobs = o.jobs
	}
	if o.changed("blob") {
		cfg.App.Blob = o.blob
	}
	if o.changed("sea-config") {
		cfg.App.SeaConfig = o.seaConfig
	}
	if o.changed("app-name") {
		cfg.App.Name = o.appName
	}
	if o.changed("mirror") {
		cfg.Runtime.Mirror = strings.TrimRight(o.mirror, "/")
	}
	if o.verify {
		cfg.Verify.Checksums = true
	}
	if o.changed("keyring") {
		cfg.Verify.Keyring = o.keyring
		cfg.Verify.Checksums = true
	}
	if o.skipBlob {
		cfg.App.GenerateBlob = false
	}

	if o.changed("arch") {
		archs := make([]platform.Arch, 0, len(o.archs))
		for _, name := range o.archs {
			a, err := platform.ParseArch(name)
			if err != nil {
				return err
			}
			archs = append(archs, a)
		}
		cfg.Targets.Archs = archs
	}

	if len(o.platforms) > 0 {
		platforms, unknown := platform.ParsePlatformList(o.platforms)
		if len(unknown) > 0 {
			logger.Warn("ignoring unknown platforms", "names", strings.Join(unknown, ","))
		}
		cfg.Targets.Platforms = platforms
	}
	return nil
}

// resolveConfig merges defaults, the config file, the environment and the
// command line, then validates the result.
func resolveConfig(ctx context.Context, opts *buildOptions, detector platform.Detector, getenv func(string) string, logger logging.Logger) (*config.Config, error) {
	parser := config.NewParser(detector, logger)
	cfg, err := parser.Load(ctx, config.LoadOptions{Path: opts.configPath, Getenv: getenv})
	if err != nil {
		return nil, fmt.Errorf("load config: %s", config.FormatError(err, opts.debug))
	}
	if err := opts.applyTo(cfg, logger); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDeps are the process-level collaborators of a build.
type buildDeps struct {
	Runner   toolexec.Runner
	Detector platform.Detector
	Logger   logging.Logger
	Stdout   io.Writer
	// SDKRoot overrides where signtool.exe is searched for.
	SDKRoot string
}

// build packages every target of cfg. The report is returned whenever the
// packaging loop ran, even if some targets failed.
func build(ctx context.Context, cfg *config.Config, reportPath string, deps buildDeps) (*pack.Report, error) {
	logger := deps.Logger

	host, err := deps.Detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}
	logger.Debug("host platform", "os", host.OS, "arch", host.Arch)

	runID := uuid.NewString()
	lock, err := transaction.AcquireLock(ctx, cfg.Output, runID)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	outDir, err := pack.PrepareOutputDir(cfg.Output)
	if err != nil {
		return nil, err
	}

	if cfg.App.Blob == "" && cfg.App.GenerateBlob {
		builder := &pack.BlobBuilder{Runner: deps.Runner, Logger: logger}
		if err := builder.Build(ctx, cfg.App.Prebuild, cfg.App.SeaConfig); err != nil {
			return nil, err
		}
	}
	blob, err := cfg.ResolveBlob()
	if err != nil {
		return nil, err
	}

	client := dist.NewClient(
		dist.WithMirror(cfg.Runtime.Mirror),
		dist.WithAttempts(uint(cfg.Retries+1)),
		dist.WithLogger(logger),
	)

	var checksums verify.Checksums
	if cfg.Verify.Checksums {
		checksums, err = fetchChecksums(ctx, client, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded checksums", "version", cfg.Runtime.Version, "files", len(checksums))
	}

	packager, err := pack.New(pack.Deps{
		Source:   client,
		Injector: inject.New(cfg.Postject, deps.Runner, logger),
		Runner:   deps.Runner,
		Host:     host,
		Locator:  signtool.New(signtool.WithLogger(logger)),
		SDKRoot:  deps.SDKRoot,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	report, err := packager.Run(ctx, pack.Plan{
		App:       cfg.App.Name,
		Version:   cfg.Runtime.Version,
		Targets:   cfg.Matrix(),
		OutputDir: outDir,
		Blob:      blob,
		Jobs:      cfg.Jobs,
		RunID:     runID,
		Checksums: checksums,
		Credentials: codesign.Credentials{
			MacIdentity:  cfg.Signing.Mac.Identity,
			WinPFX:       cfg.Signing.Windows.PFX,
			WinPassword:  cfg.Signing.Windows.Password,
			TimestampURL: cfg.Signing.Windows.TimestampURL,
		},
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprint(deps.Stdout, report.Summary())

	if reportPath != "" {
		if err := report.Save(reportPath); err != nil {
			return report, fmt.Errorf("save report: %w", err)
		}
		logger.Info("wrote report", "path", reportPath)
	}

	return report, report.Err()
}

func fetchChecksums(ctx context.Context, client *dist.Client, cfg *config.Config) (verify.Checksums, error) {
	if cfg.Verify.Keyring == "" {
		return verify.FetchChecksums(ctx, client, cfg.Runtime.Version, nil)
	}
	keyring, err := verify.LoadKeyring(cfg.Verify.Keyring)
	if err != nil {
		return nil, err
	}
	return verify.FetchChecksums(ctx, client, cfg.Runtime.Version, keyring)
}

// runBuild handles the `seapack build` subcommand
func runBuild(args []string) error {
	opts, err := parseBuildArgs(args)
	if err != nil {
		return err
	}
	if opts.help {
		printBuildHelp(os.Stdout, opts.flags)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, logging.Options{Debug: opts.debug, Actions: logging.InActions()})
	detector := platform.NewDetector()

	cfg, err := resolveConfig(ctx, opts, detector, os.Getenv, logger)
	if err != nil {
		return err
	}

	_, err = build(ctx, cfg, opts.report, buildDeps{
		Runner:   toolexec.NewExecRunner(toolexec.DefaultTimeout, logger),
		Detector: detector,
		Logger:   logger,
		Stdout:   os.Stdout,
	})
	return err
}

func printBuildHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: seapack build [options] [platforms]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Packages the Node.js application as a self-executing binary for the specified platforms.")
	fmt.Fprintln(w, "Platform names can be separated by spaces or commas (default: macos windows linux).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
}
