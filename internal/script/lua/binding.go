package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/registry"
)

// binding is the bridge root of the running invocation.
type binding struct {
	root  *bridge.Context
	table *lua.LTable
}

func (b *binding) chartNum() lua.LValue {
	if b.root.ChartNum() == 0 {
		return lua.LNil
	}
	return lua.LNumber(b.root.ChartNum())
}

// contextTable returns {chart_num = ..., FireChartSVG = ...}.
func (b *binding) contextTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString(globalChartNum, b.chartNum())
	t.RawSetString(globalRoot, b.rootTable(L))
	return t
}

// rootTable builds the FireChartSVG table once per invocation.
func (b *binding) rootTable(L *lua.LState) *lua.LTable {
	if b.table != nil {
		return b.table
	}
	root := b.root
	t := L.NewTable()

	t.RawSetString("printMessage", L.NewFunction(func(L *lua.LState) int {
		i := argBase(L, t)
		root.PrintMessage(L.ToStringMeta(L.Get(i)).String())
		return 0
	}))

	t.RawSetString("getChart", L.NewFunction(func(L *lua.LState) int {
		i := argBase(L, t)
		h := registry.Handle(L.CheckInt64(i))
		p, err := root.GetChart(h)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(proxyTable(L, p))
		return 1
	}))

	t.RawSetString("createHostWindow", L.NewFunction(func(L *lua.LState) int {
		i := argBase(L, t)
		var opts map[string]any
		if tbl, ok := L.Get(i).(*lua.LTable); ok {
			opts, _ = ToGoValue(tbl).(map[string]any)
		}
		id, err := root.CreateHostWindow(bridge.WindowOptionsFromMap(opts))
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(lua.LString(id))
		return 1
	}))

	b.table = t
	return t
}

// proxyTable exposes a chart proxy as a table of methods.
func proxyTable(L *lua.LState, p *bridge.ChartProxy) *lua.LTable {
	t := L.NewTable()

	method := func(name string, fn func(L *lua.LState, i int) int) {
		t.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			return fn(L, argBase(L, t))
		}))
	}
	raise := func(L *lua.LState, err error) int {
		L.RaiseError("%s", err.Error())
		return 0
	}

	method("getChartNum", func(L *lua.LState, _ int) int {
		L.Push(lua.LNumber(p.ChartNum()))
		return 1
	})
	method("getName", func(L *lua.LState, _ int) int {
		name, err := p.Name()
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(name))
		return 1
	})
	method("drawAnnotationLine", func(L *lua.LState, i int) int {
		id, err := p.DrawAnnotationLine(float64(L.CheckNumber(i)))
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LNumber(id))
		return 1
	})
	method("deleteAnnotationLine", func(L *lua.LState, i int) int {
		if err := p.DeleteAnnotationLine(L.CheckInt(i)); err != nil {
			return raise(L, err)
		}
		return 0
	})
	method("setAnnotationMode", func(L *lua.LState, i int) int {
		if err := p.SetAnnotationMode(L.CheckString(i)); err != nil {
			return raise(L, err)
		}
		return 0
	})
	method("moveSeriesUp", func(L *lua.LState, i int) int {
		if err := p.MoveSeriesUp(L.CheckString(i)); err != nil {
			return raise(L, err)
		}
		return 0
	})
	method("moveSeriesDown", func(L *lua.LState, i int) int {
		if err := p.MoveSeriesDown(L.CheckString(i)); err != nil {
			return raise(L, err)
		}
		return 0
	})

	return t
}

// argBase returns the stack index of the first real argument, skipping
// self when the method was called with ':'.
func argBase(L *lua.LState, self *lua.LTable) int {
	if L.GetTop() >= 1 {
		if t, ok := L.Get(1).(*lua.LTable); ok && t == self {
			return 2
		}
	}
	return 1
}
