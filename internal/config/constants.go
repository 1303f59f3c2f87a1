package config

import "time"

// Defaults mirror the behavior of running seapack with no options.
const (
	DefaultAppName        = "app"
	DefaultRuntimeVersion = "22.8.0"
	DefaultMirror         = "https://nodejs.org"
	DefaultOutput         = "./bin"
	DefaultSeaConfig      = "sea-config.json"
	DefaultConfigFile     = "seapack.lua"
	DefaultRetries        = 2
)

// Limits
const (
	MaxConfigSize       = 1 << 20
	MaxAppNameLength    = 64
	MaxJobs             = 16
	MaxRetries          = 10
	DefaultParseTimeout = 5 * time.Second
)

// Lua schema field names and globals
const (
	luaGlobalSeapack    = "seapack"
	luaFieldApp         = "app"
	luaFieldName        = "name"
	luaFieldBlob        = "blob"
	luaFieldSeaConfig   = "sea_config"
	luaFieldPrebuild    = "prebuild"
	luaFieldGenerate    = "generate_blob"
	luaFieldRuntime     = "runtime"
	luaFieldVersion     = "version"
	luaFieldMirror      = "mirror"
	luaFieldPlatforms   = "platforms"
	luaFieldArchs       = "archs"
	luaFieldOutput      = "output"
	luaFieldJobs        = "jobs"
	luaFieldRetries     = "retries"
	luaFieldSigning     = "signing"
	luaFieldMac         = "mac"
	luaFieldWindows     = "windows"
	luaFieldIdentity    = "identity"
	luaFieldPFX         = "pfx"
	luaFieldPassword    = "password"
	luaFieldTimestamp   = "timestamp_url"
	luaFieldVerify      = "verify"
	luaFieldChecksums   = "checksums"
	luaFieldKeyring     = "keyring"
	luaFieldPostject    = "postject"
	luaCallStackSize    = 256
	luaRegistrySize     = 1024 * 8
	luaRegistryMaxSize  = 1024 * 64
	luaRegistryGrowStep = 32
)
