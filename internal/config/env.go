package config

import "os"

// Environment variables read by seapack.
const (
	EnvMacIdentity = "MAC_DEVELOPER_CN"
	EnvWinPFX      = "WIN_DEVELOPER_PFX"
	EnvWinPassword = "WIN_DEVELOPER_PWD"
	EnvConfigFile  = "SEAPACK_CONFIG"
	EnvNodeVersion = "SEAPACK_NODE_VERSION"
	EnvMirror      = "SEAPACK_MIRROR"
)

// ApplyEnv fills cfg from the environment. Signing credentials are only
// taken from the environment when the config left them empty. The runtime
// variables override the config file. A nil getenv uses os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = getenv(key)
		}
	}
	fill(&cfg.Signing.Mac.Identity, EnvMacIdentity)
	fill(&cfg.Signing.Windows.PFX, EnvWinPFX)
	fill(&cfg.Signing.Windows.Password, EnvWinPassword)

	if v := getenv(EnvNodeVersion); v != "" {
		cfg.Runtime.Version = v
	}
	if v := getenv(EnvMirror); v != "" {
		cfg.Runtime.Mirror = v
	}
}
