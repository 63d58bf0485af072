package incidents

import (
	"testing"

	"github.com/statusdeck-dev/statusdeck/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []types.IncidentStatus{
		types.StatusInvestigating,
		types.StatusIdentified,
		types.StatusMonitoring,
		types.StatusResolved,
	}

	legal := map[types.IncidentStatus]map[types.IncidentStatus]bool{
		types.StatusInvestigating: {
			types.StatusIdentified: true,
			types.StatusMonitoring: true,
			types.StatusResolved:   true,
		},
		types.StatusIdentified: {
			types.StatusMonitoring: true,
			types.StatusResolved:   true,
		},
		types.StatusMonitoring: {
			types.StatusResolved: true,
		},
		types.StatusResolved: {
			types.StatusInvestigating: true,
		},
	}

	// Exhaustive over every (current, target) pair, including self
	// transitions, which are all illegal.
	for _, current := range all {
		for _, target := range all {
			want := legal[current][target]
			got := CanTransition(current, target)
			assert.Equal(t, want, got, "%s -> %s", current, target)
		}
	}
}

func TestCanTransitionSkipsMonitoring(t *testing.T) {
	// identified -> resolved is legal without passing through
	// monitoring; there is no implicit chaining.
	assert.True(t, CanTransition(types.StatusIdentified, types.StatusResolved))
}

func TestAllowedNextIsACopy(t *testing.T) {
	next := AllowedNext(types.StatusInvestigating)
	next[0] = types.StatusResolved
	assert.Equal(t, types.StatusIdentified, AllowedNext(types.StatusInvestigating)[0])
}
