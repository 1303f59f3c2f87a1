package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM strips everything that reaches outside the VM. A seapack
// config is declarative: it may compute values with string, table and math,
// and read the host table, but never run commands, touch files or load code.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os",
		"io",
		"require",
		"module",
		"package",
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"debug",
		"collectgarbage",
		"getfenv",
		"setfenv",
		"rawset",
		"rawget",
		"setmetatable",
		"getmetatable",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a size-limited Lua state with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:    luaCallStackSize,
		RegistrySize:     luaRegistrySize,
		RegistryMaxSize:  luaRegistryMaxSize,
		RegistryGrowStep: luaRegistryGrowStep,
	})
	sandboxLuaVM(L)
	return L
}
