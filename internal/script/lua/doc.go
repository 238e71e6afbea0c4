// Package lua is the gopher-lua script engine.
//
// Each Engine owns one sandboxed LState. Only the base, table, string and
// math libraries are opened, and the loaders (dofile, loadfile, load,
// loadstring) are removed. print writes to the host log.
//
// Handlers use the FireChartSVG chart script convention:
//
//	function paddingGrouperOnClick(evt)
//	    local chart = FireChartSVG.getChart(chart_num)
//	    return chart.drawAnnotationLine(evt.clientX)
//	end
//
// chart_num and FireChartSVG are resolved through the globals table's
// __index while an invocation is active, so nothing is written into the
// globals and helper functions see the same binding. Assigning to either
// name raises an error. Bridge methods accept
// both FireChartSVG.getChart(n) and FireChartSVG:getChart(n).
//
// The context table {chart_num = ..., FireChartSVG = ...} is also passed
// as the handler's second argument.
package lua
