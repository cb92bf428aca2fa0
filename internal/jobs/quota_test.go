package jobs

import (
	"testing"

	"github.com/geoconvert/geoconvert/internal/config"
)

func TestPlanLimitKnownPlan(t *testing.T) {
	limits := map[string]config.PlanLimit{
		"free": {ConversionsPerMonth: 5},
		"pro":  {ConversionsPerMonth: 500},
	}
	if got := planLimit(limits, PlanPro); got != 500 {
		t.Errorf("planLimit(pro) = %d, want 500", got)
	}
}

func TestPlanLimitUnknownPlanFallsBackToFree(t *testing.T) {
	limits := map[string]config.PlanLimit{
		"free": {ConversionsPerMonth: 5},
	}
	if got := planLimit(limits, Plan("mystery-tier")); got != 5 {
		t.Errorf("planLimit(mystery-tier) = %d, want the free tier's 5", got)
	}
}

func TestPlanLimitNoFreeTierConfiguredAtAll(t *testing.T) {
	if got := planLimit(map[string]config.PlanLimit{}, PlanFree); got != 0 {
		t.Errorf("planLimit with no configured tiers = %d, want 0", got)
	}
}
