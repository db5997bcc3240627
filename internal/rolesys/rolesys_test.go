package rolesys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
)

func TestForRole_ReturnsDistinctBehaviorText(t *testing.T) {
	require.Contains(t, ForRole(model.RoleRouta), "@@@task")
	require.Contains(t, ForRole(model.RoleCrafter), "report_to_parent")
	require.Contains(t, ForRole(model.RoleGate), "NOT APPROVED")
	require.Empty(t, ForRole(model.Role("BOGUS")))
}

func TestInjectRoleContext_WrapsAndStrips(t *testing.T) {
	injected := InjectRoleContext(model.RoleCrafter, "implement the login endpoint")
	require.Contains(t, injected, TagStart)
	require.Contains(t, injected, TagEnd)
	require.Contains(t, injected, "implement the login endpoint")

	stripped := StripSystemContent(injected)
	require.Equal(t, "implement the login endpoint", stripped)
}
