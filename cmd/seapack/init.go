package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/seapack/internal/config"
	"github.com/ZebulonRouseFrantzich/seapack/internal/transaction"
)

// initOptions holds the parsed command line of `seapack init`.
type initOptions struct {
	path    string
	appName string
	force   bool
	help    bool
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// defaultAppName derives an output prefix from the project directory.
func defaultAppName(dir string) string {
	name := unsafeNameChars.ReplaceAllString(filepath.Base(dir), "-")
	name = strings.TrimLeft(name, "._-")
	if name == "" || len(name) > config.MaxAppNameLength {
		return config.DefaultAppName
	}
	return name
}

// writeInitialConfig writes a starter config to opts.path. An existing file
// is only replaced with force.
func writeInitialConfig(opts initOptions, gen *config.Generator) (string, error) {
	path := opts.path
	if path == "" {
		path = config.DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil {
		if !opts.force {
			return "", fmt.Errorf("%s already exists\nUse --force to overwrite it", path)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("check %s: %w", path, err)
	}

	cfg := config.Default()
	cfg.App.Name = opts.appName
	if cfg.App.Name == "" {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return "", fmt.Errorf("resolve project directory: %w", err)
		}
		cfg.App.Name = defaultAppName(dir)
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	luaCode, err := gen.Generate(cfg)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := transaction.WriteFileAtomic(path, []byte(luaCode), 0o644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return path, nil
}

// runInit handles the `seapack init` subcommand
func runInit(args []string) error {
	var opts initOptions
	flags := pflag.NewFlagSet("seapack init", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVarP(&opts.path, "config", "c", config.DefaultConfigFile, "file to create")
	flags.StringVar(&opts.appName, "app-name", "", "prefix of the output file names (default: directory name)")
	flags.BoolVarP(&opts.force, "force", "f", false, "overwrite an existing file")
	flags.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w\nRun 'seapack init --help' for usage", err)
	}
	if opts.help {
		fmt.Println("Usage: seapack init [options]")
		fmt.Println()
		fmt.Println("Writes a starter seapack.lua with the default build settings.")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Print(flags.FlagUsages())
		return nil
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	path, err := writeInitialConfig(opts, config.NewGenerator())
	if err != nil {
		return err
	}

	fmt.Printf("✓ Created %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Point app.sea_config at your sea-config.json")
	fmt.Println("  2. Export MAC_DEVELOPER_CN or WIN_DEVELOPER_PFX/WIN_DEVELOPER_PWD to sign")
	fmt.Println("  3. Run: seapack build")
	return nil
}
