package taskparser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
)

const samplePlan = `
Here is the plan.

@@@task
# Add rate limiter
## Objective
Protect the public API from abuse by capping request rate per client.

## Scope
- internal/ratelimit package
- middleware wiring in the gin router

## Definition of Done
- unit tests cover burst and steady-state behavior
- 429 responses include Retry-After

## Verification
- go test ./internal/ratelimit/...
@@@

Some narrative text in between blocks.

@@@task
@@@
`

func TestParse_ExtractsAllFields(t *testing.T) {
	tasks := Parse(samplePlan)
	require.Len(t, tasks, 2)

	first := tasks[0]
	require.Equal(t, "Add rate limiter", first.Title)
	require.Equal(t, model.TaskStatusPending, first.Status)
	require.Contains(t, first.Objective, "Protect the public API")
	require.Equal(t, []string{"internal/ratelimit package", "middleware wiring in the gin router"}, first.Scope)
	require.Len(t, first.AcceptanceCriteria, 2)
	require.Equal(t, []string{"go test ./internal/ratelimit/..."}, first.VerificationCommands)
	require.NotEmpty(t, first.ID)
	require.False(t, first.CreatedAt.IsZero())
	require.Equal(t, first.CreatedAt, first.UpdatedAt)
}

func TestParse_EmptyBlockGetsDefaultTitle(t *testing.T) {
	tasks := Parse(samplePlan)
	require.Len(t, tasks, 2)

	second := tasks[1]
	require.Equal(t, "Untitled Task", second.Title)
	require.Empty(t, second.Objective)
	require.Nil(t, second.Scope)
}

func TestParse_NoBlocksReturnsEmpty(t *testing.T) {
	tasks := Parse("no task blocks here at all")
	require.Empty(t, tasks)
}

func TestParse_NeverFailsOnMalformedInput(t *testing.T) {
	malformed := "@@@task\n# Only a title, no sections\n@@@"
	tasks := Parse(malformed)
	require.Len(t, tasks, 1)
	require.Equal(t, "Only a title, no sections", tasks[0].Title)
	require.Empty(t, tasks[0].Objective)
}
