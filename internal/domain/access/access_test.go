package access_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/thxForu/perp-futures/internal/domain/access"
	"github.com/thxForu/perp-futures/pkg/errors"
)

func TestStaticController(t *testing.T) {
	acl := access.NewStaticController()
	caller := uuid.New()

	assert.ErrorIs(t, acl.RequireRole(caller, access.RoleLiquidator), errors.ErrUnauthorized)

	acl.Grant(caller, access.RoleLiquidator)
	assert.NoError(t, acl.RequireRole(caller, access.RoleLiquidator))

	// Roles are independent of each other.
	assert.ErrorIs(t, acl.RequireRole(caller, access.RoleExecutor), errors.ErrUnauthorized)

	acl.Revoke(caller, access.RoleLiquidator)
	assert.ErrorIs(t, acl.RequireRole(caller, access.RoleLiquidator), errors.ErrUnauthorized)
}
