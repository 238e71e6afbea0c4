// Package security provides the capability model for the host bridge.
//
// Capabilities are hierarchical. Granting a parent capability (e.g.
// "chart") implicitly grants all child capabilities (e.g. "chart.read",
// "chart.annotate").
//
// Capability categories:
//   - chart.read: resolve chart handles to proxies
//   - chart.annotate: draw and delete annotation lines, change the
//     annotation mode
//   - chart.layout: reorder series rows
//   - chart.cross: resolve handles other than the invocation's own
//   - host.log: write to the host log
//   - host.window: open host windows
//
// Example usage:
//
//	checker := security.NewPermissionChecker("default.lua")
//	checker.GrantAll(security.DefaultCapabilities())
//
//	if err := checker.CheckCapability(security.CapabilityChartAnnotate); err != nil {
//	    // denied
//	}
package security
