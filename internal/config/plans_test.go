package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlan(t *testing.T) {
	plans := DefaultPlanConfig()

	cases := []struct {
		label     string
		credits   int
		recurring bool
		matched   bool
	}{
		{"Buddy Start", 75, true, true},
		{"BUDDY ACTIVE", 150, true, true},
		{"Buddy Pro Coaching", 300, true, true},
		{"Bundel 50 credits", 50, false, true},
		{"Bundel 100 credits", 100, false, true},
		{"Iets anders", 0, false, false},
		{"", 0, false, false},
	}
	for _, tc := range cases {
		plan, ok := plans.ResolvePlan(tc.label)
		require.Equal(t, tc.matched, ok, "label %q", tc.label)
		if !ok {
			continue
		}
		assert.Equal(t, tc.credits, plan.Credits, "label %q", tc.label)
		assert.Equal(t, tc.recurring, plan.Recurring, "label %q", tc.label)
	}
}

func TestValidatePlanConfig(t *testing.T) {
	assert.Error(t, validatePlanConfig(PlanConfig{}))
	assert.Error(t, validatePlanConfig(PlanConfig{Plans: []Plan{{Match: " ", Credits: 10}}}))
	assert.Error(t, validatePlanConfig(PlanConfig{Plans: []Plan{{Match: "start", Credits: 0}}}))
	assert.NoError(t, validatePlanConfig(DefaultPlanConfig()))
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticPlanConfigHolder(PlanConfig{Plans: []Plan{{Match: "x", Credits: 1}}})
	got := holder.Get()
	require.Len(t, got.Plans, 1)
	assert.Equal(t, "x", got.Plans[0].Match)
}
