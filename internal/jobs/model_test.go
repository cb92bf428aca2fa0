package jobs

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusSuccess, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusSuccess, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusSuccess, StatusExpired, true},
		{StatusSuccess, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
		{StatusExpired, StatusSuccess, false},
	}
	for _, c := range cases {
		job := ConversionJob{Status: c.from}
		if got := job.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
