package jobs

import "github.com/geoconvert/geoconvert/internal/config"

// planLimit resolves a plan tag to its monthly conversion budget
// (-1 means unlimited), defaulting to the free tier's limit for an
// unrecognized plan tag rather than failing open to unlimited.
func planLimit(limits map[string]config.PlanLimit, plan Plan) int {
	if l, ok := limits[string(plan)]; ok {
		return l.ConversionsPerMonth
	}
	if l, ok := limits["free"]; ok {
		return l.ConversionsPerMonth
	}
	return 0
}
