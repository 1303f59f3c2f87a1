package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

// Parser evaluates seapack.lua files.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a config parser. The detector feeds the read-only host
// table; nil leaves it undefined.
func NewParser(detector platform.Detector, logger logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Parser{detector: detector, logger: logger}
}

// ParseFile reads and evaluates a config file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if findings := ScanSecrets(string(data)); len(findings) > 0 {
		p.logger.Warn(FormatSecretWarning(findings), "file", path)
	}

	return p.ParseString(ctx, string(data))
}

// ParseString evaluates Lua code and returns the defaults overlaid with the
// global seapack table. The result is not validated; callers merge flags and
// environment first and then call Validate.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("host detection failed: %w", err)
		}
		if err := platform.InjectHostTable(L, info); err != nil {
			return nil, fmt.Errorf("inject host table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// typeError reports a field holding the wrong Lua type.
func typeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid value for " + luaGlobalSeapack + "." + field,
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// extractConfig reads the global "seapack" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobalSeapack)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'seapack' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}
	table := root.(*lua.LTable)
	cfg := Default()

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if app, err := subTable(table, luaFieldApp); err != nil {
		collect(err)
	} else if app != nil {
		collect(setString(app, luaFieldApp, luaFieldName, &cfg.App.Name))
		collect(setString(app, luaFieldApp, luaFieldBlob, &cfg.App.Blob))
		collect(setString(app, luaFieldApp, luaFieldSeaConfig, &cfg.App.SeaConfig))
		collect(setBool(app, luaFieldApp+"."+luaFieldGenerate, luaFieldGenerate, &cfg.App.GenerateBlob))
		if cmd, ok, err := stringList(app, luaFieldPrebuild); err != nil {
			collect(err)
		} else if ok {
			cfg.App.Prebuild = cmd
		}
	}

	if rt, err := subTable(table, luaFieldRuntime); err != nil {
		collect(err)
	} else if rt != nil {
		collect(setString(rt, luaFieldRuntime, luaFieldVersion, &cfg.Runtime.Version))
		collect(setString(rt, luaFieldRuntime, luaFieldMirror, &cfg.Runtime.Mirror))
	}

	if names, ok, err := stringList(table, luaFieldPlatforms); err != nil {
		collect(err)
	} else if ok {
		platforms, err := parsePlatforms(names)
		collect(err)
		cfg.Targets.Platforms = platforms
	}

	if names, ok, err := stringList(table, luaFieldArchs); err != nil {
		collect(err)
	} else if ok {
		archs, err := parseArchs(names)
		collect(err)
		cfg.Targets.Archs = archs
	}

	collect(setString(table, "", luaFieldOutput, &cfg.Output))
	collect(setInt(table, luaFieldJobs, &cfg.Jobs))
	collect(setInt(table, luaFieldRetries, &cfg.Retries))

	if cmd, ok, err := stringList(table, luaFieldPostject); err != nil {
		collect(err)
	} else if ok {
		cfg.Postject = cmd
	}

	if signing, err := subTable(table, luaFieldSigning); err != nil {
		collect(err)
	} else if signing != nil {
		if mac, err := subTable(signing, luaFieldMac); err != nil {
			collect(err)
		} else if mac != nil {
			collect(setString(mac, "signing.mac", luaFieldIdentity, &cfg.Signing.Mac.Identity))
		}
		if win, err := subTable(signing, luaFieldWindows); err != nil {
			collect(err)
		} else if win != nil {
			collect(setString(win, "signing.windows", luaFieldPFX, &cfg.Signing.Windows.PFX))
			collect(setString(win, "signing.windows", luaFieldPassword, &cfg.Signing.Windows.Password))
			collect(setString(win, "signing.windows", luaFieldTimestamp, &cfg.Signing.Windows.TimestampURL))
		}
	}

	if verify := table.RawGetString(luaFieldVerify); verify.Type() == lua.LTBool {
		// Shorthand: verify = true
		cfg.Verify.Checksums = bool(verify.(lua.LBool))
	} else if v, err := subTable(table, luaFieldVerify); err != nil {
		collect(err)
	} else if v != nil {
		collect(setBool(v, "verify."+luaFieldChecksums, luaFieldChecksums, &cfg.Verify.Checksums))
		collect(setString(v, luaFieldVerify, luaFieldKeyring, &cfg.Verify.Keyring))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// subTable returns a nested table, or nil if the field is absent.
func subTable(t *lua.LTable, field string) (*lua.LTable, error) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil, nil
	case lua.LTTable:
		return v.(*lua.LTable), nil
	default:
		return nil, typeError(field, "table", v)
	}
}

func setString(t *lua.LTable, parent, field string, dst *string) error {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTString:
		*dst = v.String()
		return nil
	default:
		return typeError(qualify(parent, field), "string", v)
	}
}

func setInt(t *lua.LTable, field string, dst *int) error {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTNumber:
		n := float64(v.(lua.LNumber))
		if n != float64(int(n)) {
			return typeError(field, "integer", v)
		}
		*dst = int(n)
		return nil
	default:
		return typeError(field, "number", v)
	}
}

func setBool(t *lua.LTable, qualified, field string, dst *bool) error {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
		return nil
	default:
		return typeError(qualified, "boolean", v)
	}
}

// stringList reads an array of strings. Nil holes, such as those produced by
// host.when(false, "x"), are skipped. A single string is accepted as a
// one-element list.
func stringList(t *lua.LTable, field string) ([]string, bool, error) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil, false, nil
	case lua.LTString:
		return []string{v.String()}, true, nil
	case lua.LTTable:
	default:
		return nil, false, typeError(field, "list of strings", v)
	}

	var out []string
	var err error
	list := v.(*lua.LTable)
	for i := 1; i <= list.MaxN(); i++ {
		item := list.RawGetInt(i)
		switch item.Type() {
		case lua.LTNil:
			continue
		case lua.LTString:
			out = append(out, item.String())
		default:
			if err == nil {
				err = typeError(fmt.Sprintf("%s[%d]", field, i), "string", item)
			}
		}
	}
	return out, true, err
}

func parsePlatforms(names []string) ([]platform.Platform, error) {
	platforms, unknown := platform.ParsePlatformList(names)
	if len(unknown) > 0 {
		return platforms, &ValidationError{
			Field:   luaFieldPlatforms,
			Message: "unknown platform(s): " + strings.Join(unknown, ", "),
		}
	}
	return platforms, nil
}

func parseArchs(names []string) ([]platform.Arch, error) {
	var archs []platform.Arch
	var unknown []string
	for _, name := range names {
		a, err := platform.ParseArch(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		archs = append(archs, a)
	}
	if len(unknown) > 0 {
		return archs, &ValidationError{
			Field:   luaFieldArchs,
			Message: "unknown architecture(s): " + strings.Join(unknown, ", "),
		}
	}
	return archs, nil
}

func qualify(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
