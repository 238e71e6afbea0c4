package ecma

import (
	"github.com/dop251/goja"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/registry"
)

// binding is the bridge root of the running invocation.
type binding struct {
	root *bridge.Context
	obj  *goja.Object
}

func (b *binding) chartNum(vm *goja.Runtime) goja.Value {
	if b.root.ChartNum() == 0 {
		return goja.Undefined()
	}
	return vm.ToValue(int64(b.root.ChartNum()))
}

// contextObject returns {chart_num, FireChartSVG}.
func (b *binding) contextObject(vm *goja.Runtime) *goja.Object {
	o := vm.NewObject()
	_ = o.Set(globalChartNum, b.chartNum(vm))
	_ = o.Set(globalRoot, b.rootObject(vm))
	return o
}

// rootObject builds the FireChartSVG object once per invocation.
func (b *binding) rootObject(vm *goja.Runtime) *goja.Object {
	if b.obj != nil {
		return b.obj
	}
	root := b.root
	o := vm.NewObject()

	_ = o.Set("printMessage", func(call goja.FunctionCall) goja.Value {
		root.PrintMessage(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = o.Set("getChart", func(call goja.FunctionCall) goja.Value {
		p, err := root.GetChart(registry.Handle(call.Argument(0).ToInteger()))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return proxyObject(vm, p)
	})
	_ = o.Set("createHostWindow", func(call goja.FunctionCall) goja.Value {
		opts, _ := call.Argument(0).Export().(map[string]any)
		id, err := root.CreateHostWindow(bridge.WindowOptionsFromMap(opts))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(id)
	})

	b.obj = o
	return o
}

// proxyObject exposes a chart proxy as an object of methods.
func proxyObject(vm *goja.Runtime, p *bridge.ChartProxy) *goja.Object {
	o := vm.NewObject()
	check := func(err error) {
		if err != nil {
			panic(vm.NewGoError(err))
		}
	}

	_ = o.Set("getChartNum", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(int64(p.ChartNum()))
	})
	_ = o.Set("getName", func(goja.FunctionCall) goja.Value {
		name, err := p.Name()
		check(err)
		return vm.ToValue(name)
	})
	_ = o.Set("drawAnnotationLine", func(call goja.FunctionCall) goja.Value {
		id, err := p.DrawAnnotationLine(call.Argument(0).ToFloat())
		check(err)
		return vm.ToValue(id)
	})
	_ = o.Set("deleteAnnotationLine", func(call goja.FunctionCall) goja.Value {
		check(p.DeleteAnnotationLine(int(call.Argument(0).ToInteger())))
		return goja.Undefined()
	})
	_ = o.Set("setAnnotationMode", func(call goja.FunctionCall) goja.Value {
		check(p.SetAnnotationMode(call.Argument(0).String()))
		return goja.Undefined()
	})
	_ = o.Set("moveSeriesUp", func(call goja.FunctionCall) goja.Value {
		check(p.MoveSeriesUp(call.Argument(0).String()))
		return goja.Undefined()
	})
	_ = o.Set("moveSeriesDown", func(call goja.FunctionCall) goja.Value {
		check(p.MoveSeriesDown(call.Argument(0).String()))
		return goja.Undefined()
	})
	return o
}
