package config

import (
	"fmt"
	"regexp"
	"strings"
)

// secretRule matches one kind of signing or publishing secret that should
// not live in a checked-in build file.
type secretRule struct {
	kind    string
	pattern *regexp.Regexp
	// valueOnly rules match a bare credential, so the whole line is hidden
	// in previews rather than just the right-hand side.
	valueOnly bool
}

var secretRules = []secretRule{
	{
		kind:    "certificate password",
		pattern: regexp.MustCompile(`(?i)\b(password|passwd|pwd|pfx_?pass(word)?)\s*=\s*['"][^'"]+['"]`),
	},
	{
		kind:      "private key",
		pattern:   regexp.MustCompile(`-----BEGIN ([A-Z]+ )?PRIVATE KEY-----`),
		valueOnly: true,
	},
	{
		// PKCS#12 and DER certificates start with a SEQUENCE, "MII" in base64.
		kind:      "inline certificate",
		pattern:   regexp.MustCompile(`['"]MII[A-Za-z0-9+/]{60,}={0,2}['"]`),
		valueOnly: true,
	},
	{
		kind:      "Apple app-specific password",
		pattern:   regexp.MustCompile(`\b[a-z]{4}-[a-z]{4}-[a-z]{4}-[a-z]{4}\b`),
		valueOnly: true,
	},
	{
		kind:      "GitHub token",
		pattern:   regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		valueOnly: true,
	},
	{
		kind:      "npm token",
		pattern:   regexp.MustCompile(`\bnpm_[A-Za-z0-9]{36}\b`),
		valueOnly: true,
	},
}

// SecretFinding is a line of a config file that looks like it holds a
// secret. Preview never contains the secret itself.
type SecretFinding struct {
	Kind    string
	Line    int
	Preview string
}

// ScanSecrets reports lines of a Lua config that appear to embed signing
// credentials or tokens. Each line is reported at most once, for the first
// rule it matches. Comments are scanned too.
func ScanSecrets(content string) []SecretFinding {
	var findings []SecretFinding
	for i, line := range strings.Split(content, "\n") {
		for _, rule := range secretRules {
			loc := rule.pattern.FindStringIndex(line)
			if loc == nil {
				continue
			}
			findings = append(findings, SecretFinding{
				Kind:    rule.kind,
				Line:    i + 1,
				Preview: redactLine(line, loc, rule.valueOnly),
			})
			break
		}
	}
	return findings
}

// redactLine keeps the key of an assignment and hides everything from the
// match onward.
func redactLine(line string, loc []int, valueOnly bool) string {
	if !valueOnly {
		if eq := strings.Index(line, "="); eq > 0 {
			return strings.TrimSpace(line[:eq]) + " = [REDACTED]"
		}
	}
	prefix := strings.TrimSpace(line[:loc[0]])
	if prefix == "" {
		return "[REDACTED]"
	}
	return prefix + " [REDACTED]"
}

// FormatSecretWarning renders findings as a warning for the log.
func FormatSecretWarning(findings []SecretFinding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("possible secrets in build configuration:\n")
	for _, f := range findings {
		fmt.Fprintf(&sb, "  line %d: %s (%s)\n", f.Line, f.Kind, f.Preview)
	}
	fmt.Fprintf(&sb, "Keep signing.windows.password out of %s; set %s or pass --win-sign-pwd instead.\n",
		DefaultConfigFile, EnvWinPassword)
	sb.WriteString("Certificates and tokens belong in the CI secret store, not in version control.")
	return sb.String()
}
