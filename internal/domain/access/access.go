// Package access provides the capability checks injected at the boundary of
// every role-gated operation. Role storage itself is a collaborator concern;
// the engines only ever see the Controller interface.
package access

import (
	"sync"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/pkg/errors"
)

// Role names a capability required by a gated operation.
type Role string

const (
	// RoleExecutor may execute resting orders
	RoleExecutor Role = "executor"

	// RoleLiquidator may trigger liquidations
	RoleLiquidator Role = "liquidator"

	// RoleAdmin may administer limits and fees
	RoleAdmin Role = "admin"
)

// String returns string representation
func (r Role) String() string {
	return string(r)
}

// Controller answers capability checks for gated operations.
type Controller interface {
	// RequireRole fails with ErrUnauthorized unless caller holds role.
	RequireRole(caller uuid.UUID, role Role) error
}

// StaticController is an in-memory grant table. It serves deployments where
// the role set is fixed at wiring time, and tests.
type StaticController struct {
	mu     sync.RWMutex
	grants map[uuid.UUID]map[Role]bool
}

// NewStaticController creates an empty grant table.
func NewStaticController() *StaticController {
	return &StaticController{grants: make(map[uuid.UUID]map[Role]bool)}
}

// Grant gives caller the role.
func (c *StaticController) Grant(caller uuid.UUID, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grants[caller] == nil {
		c.grants[caller] = make(map[Role]bool)
	}
	c.grants[caller][role] = true
}

// Revoke removes the role from caller.
func (c *StaticController) Revoke(caller uuid.UUID, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.grants[caller], role)
}

// RequireRole implements Controller.
func (c *StaticController) RequireRole(caller uuid.UUID, role Role) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.grants[caller][role] {
		return nil
	}
	return errors.Wrapf(errors.ErrUnauthorized, "caller %s lacks role %s", caller, role)
}
