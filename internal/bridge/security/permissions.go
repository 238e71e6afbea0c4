package security

import (
	"sync"
)

// PermissionChecker validates bridge operations against granted
// capabilities. It is safe for concurrent use.
type PermissionChecker struct {
	mu sync.RWMutex

	capabilities map[Capability]bool

	// script identity, used in error messages and logs
	scriptName string
}

// NewPermissionChecker creates a checker with no capabilities.
func NewPermissionChecker(scriptName string) *PermissionChecker {
	return &PermissionChecker{
		capabilities: make(map[Capability]bool),
		scriptName:   scriptName,
	}
}

// ScriptName returns the name the checker was created with.
func (pc *PermissionChecker) ScriptName() string {
	return pc.scriptName
}

// Grant grants a capability.
func (pc *PermissionChecker) Grant(c Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.capabilities[c] = true
}

// Revoke revokes a capability. Children granted through a parent are
// revoked with it.
func (pc *PermissionChecker) Revoke(c Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.capabilities, c)
}

// GrantAll grants multiple capabilities.
func (pc *PermissionChecker) GrantAll(caps []Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, c := range caps {
		pc.capabilities[c] = true
	}
}

// HasCapability returns true if the capability is granted directly or
// through a parent.
func (pc *PermissionChecker) HasCapability(c Capability) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.capabilities[c] {
		return true
	}
	for granted := range pc.capabilities {
		if ImpliesCapability(granted, c) {
			return true
		}
	}
	return false
}

// CheckCapability returns a *CapabilityError if c is not granted.
func (pc *PermissionChecker) CheckCapability(c Capability) error {
	if !pc.HasCapability(c) {
		return NewCapabilityError(c, "", "not granted")
	}
	return nil
}

// CheckOperation is CheckCapability with the operation name in the error.
func (pc *PermissionChecker) CheckOperation(c Capability, operation string) error {
	if !pc.HasCapability(c) {
		return NewCapabilityError(c, operation, "not granted")
	}
	return nil
}

// Capabilities returns the directly granted capabilities in name order.
func (pc *PermissionChecker) Capabilities() []Capability {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	caps := make([]Capability, 0, len(pc.capabilities))
	for c := range pc.capabilities {
		caps = append(caps, c)
	}
	sortCapabilities(caps)
	return caps
}
