// Package config loads seapack build configuration.
//
// # Overview
//
// Settings come from four layers, lowest precedence first:
//   - Built-in defaults (Default)
//   - An optional Lua file, seapack.lua or the path in SEAPACK_CONFIG
//   - Environment fallbacks (MAC_DEVELOPER_CN, WIN_DEVELOPER_PFX, WIN_DEVELOPER_PWD)
//   - Command line flags, applied by cmd/seapack
//
// Signing credentials from the environment only fill values the file left
// empty. SEAPACK_NODE_VERSION and SEAPACK_MIRROR override the file.
//
// # Lua configuration
//
// The file must define a global seapack table:
//
//	seapack = {
//	  app = {
//	    name = "migration-audit",
//	    sea_config = "sea-config.json",
//	    prebuild = { "node", "build.js" },
//	  },
//	  runtime = { version = "22.8.0" },
//	  platforms = { "mac", "linux", "windows" },
//	  archs = { "arm64", "x64" },
//	  output = "./bin",
//	  jobs = 2,
//	  signing = {
//	    mac = { identity = host.when(host.is_macos, "Developer ID Application: Example") },
//	    windows = { pfx = "cert.pfx" },
//	  },
//	  verify = { checksums = true, keyring = "nodejs-keys.asc" },
//	}
//
// A read-only host table describes the machine running the build
// (host.os, host.arch, host.is_linux, host.is_macos, host.is_windows and
// host.when). Nil entries in lists are skipped, so host.when can drop
// platforms conditionally.
//
// # Sandbox
//
// The VM has no os, io, package loading, debug or metatable access, and runs
// with a bounded call stack, a bounded registry and a 5 second deadline.
// The string, table and math libraries remain available.
//
// Literal secrets in the file produce a warning; the Windows certificate
// password belongs in WIN_DEVELOPER_PWD.
//
// # sea-config.json
//
// When no blob is given explicitly the blob path is the "output" field of
// Node's sea-config.json. The file may contain comments and trailing commas.
package config
