package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Generator generates Lua configuration code from Go structs.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
		now:    time.Now,
	}
}

// Generate generates Lua code from a Config struct.
// The output is formatted and human-readable. The Windows certificate
// password is never written; it is read from WIN_DEVELOPER_PWD at build time.
func (g *Generator) Generate(config *Config) (string, error) {
	if config == nil {
		return "", fmt.Errorf("config is nil")
	}

	var buf bytes.Buffer

	buf.WriteString("-- seapack configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().UTC().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- The read-only `host` table describes the machine running the build:\n")
	buf.WriteString("--   host.os, host.arch, host.is_macos, host.is_windows, host.when(cond, value)\n\n")

	buf.WriteString(luaGlobalSeapack + " = {\n")

	g.writeApp(&buf, config.App)
	g.writeRuntime(&buf, config.Runtime)

	names := make([]string, 0, len(config.Targets.Platforms))
	for _, p := range config.Targets.Platforms {
		names = append(names, string(p))
	}
	g.writeList(&buf, luaFieldPlatforms, names)

	archs := make([]string, 0, len(config.Targets.Archs))
	for _, a := range config.Targets.Archs {
		archs = append(archs, string(a))
	}
	g.writeList(&buf, luaFieldArchs, archs)

	g.line(&buf, 1, fmt.Sprintf("%s = %s,", luaFieldOutput, g.quoteLuaString(config.Output)))
	g.line(&buf, 1, fmt.Sprintf("%s = %d,", luaFieldJobs, config.Jobs))
	g.line(&buf, 1, fmt.Sprintf("%s = %d,", luaFieldRetries, config.Retries))
	if len(config.Postject) > 0 {
		g.writeList(&buf, luaFieldPostject, config.Postject)
	}
	buf.WriteString("\n")

	g.writeSigning(&buf, config.Signing)
	g.writeVerify(&buf, config.Verify)

	buf.WriteString("}\n")

	return buf.String(), nil
}

func (g *Generator) writeApp(buf *bytes.Buffer, app App) {
	g.line(buf, 1, luaFieldApp+" = {")
	g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldName, g.quoteLuaString(app.Name)))
	if app.Blob != "" {
		g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldBlob, g.quoteLuaString(app.Blob)))
	}
	g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldSeaConfig, g.quoteLuaString(app.SeaConfig)))
	if len(app.Prebuild) > 0 {
		quoted := make([]string, len(app.Prebuild))
		for i, arg := range app.Prebuild {
			quoted[i] = g.quoteLuaString(arg)
		}
		g.line(buf, 2, fmt.Sprintf("%s = { %s },", luaFieldPrebuild, strings.Join(quoted, ", ")))
	}
	if !app.GenerateBlob {
		g.line(buf, 2, luaFieldGenerate+" = false,")
	}
	g.line(buf, 1, "},\n")
}

func (g *Generator) writeRuntime(buf *bytes.Buffer, rt Runtime) {
	g.line(buf, 1, luaFieldRuntime+" = {")
	g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldVersion, g.quoteLuaString(rt.Version)))
	if rt.Mirror != "" && rt.Mirror != DefaultMirror {
		g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldMirror, g.quoteLuaString(rt.Mirror)))
	}
	g.line(buf, 1, "},\n")
}

func (g *Generator) writeSigning(buf *bytes.Buffer, s Signing) {
	g.line(buf, 1, luaFieldSigning+" = {")

	g.line(buf, 2, luaFieldMac+" = {")
	if s.Mac.Identity != "" {
		g.line(buf, 3, fmt.Sprintf("%s = %s,", luaFieldIdentity, g.quoteLuaString(s.Mac.Identity)))
	} else {
		g.line(buf, 3, "-- identity = \"Developer ID Application: ...\", -- or MAC_DEVELOPER_CN")
	}
	g.line(buf, 2, "},")

	g.line(buf, 2, luaFieldWindows+" = {")
	if s.Windows.PFX != "" {
		g.line(buf, 3, fmt.Sprintf("%s = %s,", luaFieldPFX, g.quoteLuaString(s.Windows.PFX)))
	} else {
		g.line(buf, 3, "-- pfx = \"cert.pfx\", -- or WIN_DEVELOPER_PFX")
	}
	g.line(buf, 3, "-- the password is read from WIN_DEVELOPER_PWD")
	if s.Windows.TimestampURL != "" {
		g.line(buf, 3, fmt.Sprintf("%s = %s,", luaFieldTimestamp, g.quoteLuaString(s.Windows.TimestampURL)))
	}
	g.line(buf, 2, "},")

	g.line(buf, 1, "},\n")
}

func (g *Generator) writeVerify(buf *bytes.Buffer, v Verify) {
	g.line(buf, 1, luaFieldVerify+" = {")
	g.line(buf, 2, fmt.Sprintf("%s = %t,", luaFieldChecksums, v.Checksums))
	if v.Keyring != "" {
		g.line(buf, 2, fmt.Sprintf("%s = %s,", luaFieldKeyring, g.quoteLuaString(v.Keyring)))
	}
	g.line(buf, 1, "},")
}

// writeList writes a single-line array of strings.
func (g *Generator) writeList(buf *bytes.Buffer, field string, items []string) {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = g.quoteLuaString(item)
	}
	g.line(buf, 1, fmt.Sprintf("%s = { %s },", field, strings.Join(quoted, ", ")))
}

func (g *Generator) line(buf *bytes.Buffer, depth int, s string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(s)
	buf.WriteString("\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}
