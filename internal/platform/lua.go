package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectHostTable creates a read-only "host" table describing the machine
// running seapack and injects it into the Lua state as a global.
// This should be called before loading any user configuration code.
func InjectHostTable(L *lua.LState, info *Info) error {
	hostTable := L.NewTable()

	L.SetField(hostTable, "os", lua.LString(info.OS))
	L.SetField(hostTable, "arch", lua.LString(info.Arch))
	L.SetField(hostTable, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(hostTable, "distro", lua.LString(info.Distro))
	L.SetField(hostTable, "version", lua.LString(info.Version))

	L.SetField(hostTable, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(hostTable, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(hostTable, "is_windows", lua.LBool(info.IsWindows()))

	// when(condition, value) returns value if condition is true, nil otherwise
	whenFunc := L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		value := L.Get(2)
		if cond {
			L.Push(value)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})
	L.SetField(hostTable, "when", whenFunc)

	L.SetGlobal("host", makeReadOnly(L, hostTable))

	return nil
}

// makeReadOnly makes a Lua table read-only by creating a proxy table with a metatable.
// The proxy redirects reads to the original table but prevents all writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()

	L.SetField(mt, "__index", table)

	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("host table is read-only and cannot be modified")
		return 0
	}))

	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)

	return proxy
}
