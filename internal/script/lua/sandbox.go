package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Names resolved through the active invocation.
const (
	globalChartNum = "chart_num"
	globalRoot     = "FireChartSVG"
)

// openSafeLibraries opens only libraries without host access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os, debug and package stay closed; require needs package.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// installPrint routes print to the active invocation's printMessage, or to
// the engine logger outside an invocation.
func (e *Engine) installPrint() {
	e.L.SetGlobal("print", e.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		msg := strings.Join(parts, "\t")
		if e.active != nil {
			e.active.root.PrintMessage(msg)
			return 0
		}
		e.logger.Info(msg)
		return 0
	}))
}

// installBinding resolves chart_num and FireChartSVG on global misses and
// rejects assignments to either name.
func (e *Engine) installBinding() {
	mt := e.L.NewTable()
	e.L.SetField(mt, "__index", e.L.NewFunction(func(L *lua.LState) int {
		key, ok := L.Get(2).(lua.LString)
		if !ok || e.active == nil {
			L.Push(lua.LNil)
			return 1
		}
		switch string(key) {
		case globalChartNum:
			L.Push(e.active.chartNum())
		case globalRoot:
			L.Push(e.active.rootTable(L))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))
	e.L.SetField(mt, "__newindex", e.L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		key := L.Get(2)
		if isBindingName(key) {
			L.RaiseError("cannot assign to %s", key.String())
			return 0
		}
		tbl.RawSet(key, L.Get(3))
		return 0
	}))
	e.L.SetMetatable(e.L.G.Global, mt)
}

func isBindingName(key lua.LValue) bool {
	s, ok := key.(lua.LString)
	return ok && (string(s) == globalChartNum || string(s) == globalRoot)
}

// clearBinding drops raw globals that would shadow the binding, such as
// those written with rawset.
func (e *Engine) clearBinding() {
	e.L.G.Global.RawSetString(globalChartNum, lua.LNil)
	e.L.G.Global.RawSetString(globalRoot, lua.LNil)
}
