package codesign

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/signtool"
	"github.com/ZebulonRouseFrantzich/seapack/internal/testutil"
	"github.com/ZebulonRouseFrantzich/seapack/internal/toolexec"
)

var (
	macHost   = &platform.Info{OS: "darwin", Arch: "arm64"}
	winHost   = &platform.Info{OS: "windows", Arch: "amd64"}
	linuxHost = &platform.Info{OS: "linux", Arch: "amd64"}

	macTarget   = platform.Target{Platform: platform.Mac, Arch: platform.ARM64}
	winTarget   = platform.Target{Platform: platform.Windows, Arch: platform.X64}
	linuxTarget = platform.Target{Platform: platform.Linux, Arch: platform.X64}
)

// emptyLocator never finds signtool, so it resolves to the bare name.
func emptyLocator() *signtool.Locator {
	return signtool.New(signtool.WithFS(fstest.MapFS{}))
}

func TestForTarget_Selection(t *testing.T) {
	creds := Credentials{MacIdentity: "Dev ID", WinPFX: "cert.pfx", WinPassword: "pw"}

	tests := []struct {
		name      string
		host      *platform.Info
		target    platform.Target
		wantType  string
		wantFlags []string
	}{
		{"mac on mac", macHost, macTarget, "*codesign.Mac", []string{"--macho-segment-name", "NODE_SEA"}},
		{"mac on linux", linuxHost, macTarget, "codesign.Unsigned", []string{"--macho-segment-name", "NODE_SEA"}},
		{"windows on windows", winHost, winTarget, "*codesign.Windows", nil},
		{"windows on mac", macHost, winTarget, "codesign.Unsigned", nil},
		{"linux anywhere", macHost, linuxTarget, "codesign.Unsigned", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ForTarget(tt.host, tt.target, creds, Deps{Runner: &testutil.FakeRunner{}, Locator: emptyLocator(), SDKRoot: "pf"})
			if got := reflect.TypeOf(s).String(); got != tt.wantType {
				t.Errorf("signer type = %s, want %s", got, tt.wantType)
			}
			if got := s.EmbedFlags(); !reflect.DeepEqual(got, tt.wantFlags) {
				t.Errorf("EmbedFlags() = %v, want %v", got, tt.wantFlags)
			}
		})
	}
}

func TestMac_StripAndSign(t *testing.T) {
	runner := &testutil.FakeRunner{}
	s := ForTarget(macHost, macTarget, Credentials{MacIdentity: "Developer ID Application: Example"}, Deps{Runner: runner})

	if err := s.Strip(context.Background(), "bin/app-darwin-arm64"); err != nil {
		t.Fatalf("Strip() error = %v", err)
	}
	if err := s.Sign(context.Background(), "bin/app-darwin-arm64"); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	want := []string{
		"codesign --remove-signature bin/app-darwin-arm64",
		"codesign --sign Developer ID Application: Example bin/app-darwin-arm64",
	}
	if got := runner.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %q\nwant %q", got, want)
	}
}

func TestMac_NoIdentityStripsOnly(t *testing.T) {
	runner := &testutil.FakeRunner{}
	s := ForTarget(macHost, macTarget, Credentials{}, Deps{Runner: runner})

	_ = s.Strip(context.Background(), "app")
	_ = s.Sign(context.Background(), "app")

	if s.Signs() {
		t.Error("Signs() = true without identity")
	}
	if got := len(runner.Commands); got != 1 {
		t.Errorf("ran %d commands, want only the strip", got)
	}
}

func TestWindows_StripAndSign(t *testing.T) {
	runner := &testutil.FakeRunner{}
	locator := emptyLocator()
	s := ForTarget(winHost, winTarget, Credentials{WinPFX: `C:\certs\app.pfx`, WinPassword: "s3cret"},
		Deps{Runner: runner, Locator: locator, SDKRoot: "pf"})

	if err := s.Strip(context.Background(), "app-win-x64.exe"); err != nil {
		t.Fatalf("Strip() error = %v", err)
	}
	if err := s.Sign(context.Background(), "app-win-x64.exe"); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	want := []string{
		"signtool.exe remove /s app-win-x64.exe",
		`signtool.exe sign /fd SHA256 /f C:\certs\app.pfx /p [REDACTED] /t http://timestamp.digicert.com app-win-x64.exe`,
	}
	if got := runner.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %q\nwant %q", got, want)
	}
	// Both calls share one lookup.
	if got := locator.Scans(); got != 1 {
		t.Errorf("Scans() = %d, want 1", got)
	}
}

func TestWindows_PasswordRequired(t *testing.T) {
	s := ForTarget(winHost, winTarget, Credentials{WinPFX: "cert.pfx"}, Deps{Runner: &testutil.FakeRunner{}, Locator: emptyLocator()})
	if s.Signs() {
		t.Error("Signs() = true without password")
	}
}

func TestWindows_TimestampOverride(t *testing.T) {
	runner := &testutil.FakeRunner{}
	s := ForTarget(winHost, winTarget, Credentials{WinPFX: "c.pfx", WinPassword: "pw", TimestampURL: "http://ts.example.com"},
		Deps{Runner: runner, Locator: emptyLocator(), SDKRoot: "pf"})

	_ = s.Sign(context.Background(), "a.exe")
	if !strings.Contains(runner.Lines()[0], "/t http://ts.example.com") {
		t.Errorf("command = %q, want custom timestamp server", runner.Lines()[0])
	}
}

func TestSign_ToolFailure(t *testing.T) {
	toolErr := &toolexec.ExternalToolError{Tool: "codesign", ExitCode: 1}
	runner := &testutil.FakeRunner{FailOn: map[string]error{"--sign": toolErr}}
	s := ForTarget(macHost, macTarget, Credentials{MacIdentity: "id"}, Deps{Runner: runner})

	err := s.Sign(context.Background(), "app")
	if !errors.As(err, new(*toolexec.ExternalToolError)) {
		t.Errorf("Sign() error = %v, want *ExternalToolError", err)
	}
}

func TestUnsigned_RunsNothing(t *testing.T) {
	runner := &testutil.FakeRunner{}
	s := ForTarget(linuxHost, macTarget, Credentials{MacIdentity: "id"}, Deps{Runner: runner})

	_ = s.Strip(context.Background(), "app")
	_ = s.Sign(context.Background(), "app")
	if len(runner.Commands) != 0 {
		t.Errorf("ran %v on a host that cannot sign", runner.Lines())
	}
}

func TestCredentials(t *testing.T) {
	if (Credentials{WinPFX: "a"}).HasWindows() {
		t.Error("HasWindows() = true without password")
	}
	if !(Credentials{WinPFX: "a", WinPassword: "b"}).HasWindows() {
		t.Error("HasWindows() = false with both fields")
	}
	if !(Credentials{MacIdentity: "x"}).HasMac() {
		t.Error("HasMac() = false with identity")
	}
}
