package quality

import "testing"

func TestScoreIsPureFunctionAndClamped(t *testing.T) {
	r := Report{
		Geometry: GeometrySection{Total: 10, ValidityRate: 100},
		Attribute: AttributeSection{
			TotalColumns:     2,
			CompletenessRate: 100,
			Columns:          map[string]ColumnStats{},
		},
		Projection: ProjectionSection{SourceEPSG: 2154, TargetEPSG: 2154},
	}

	score1, recs1 := computeScore(r)
	score2, recs2 := computeScore(r)

	if score1 != score2 {
		t.Errorf("computeScore is not pure: %d != %d", score1, score2)
	}
	if len(recs1) != len(recs2) {
		t.Errorf("recommendations differ across identical inputs")
	}
	if score1 < 0 || score1 > 100 {
		t.Errorf("score %d out of [0,100]", score1)
	}
	if score1 != 100 {
		t.Errorf("expected perfect inputs to score 100, got %d", score1)
	}
}

func TestScoreToGradeThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  Grade
	}{
		{95, GradeA}, {85, GradeB}, {75, GradeC}, {65, GradeD}, {40, GradeF},
	}
	for _, c := range cases {
		if got := scoreToGrade(c.score); got != c.want {
			t.Errorf("scoreToGrade(%d) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestScoreUnknownCRSPenalized(t *testing.T) {
	r := Report{
		Geometry:   GeometrySection{Total: 1, ValidityRate: 100},
		Attribute:  AttributeSection{TotalColumns: 0, CompletenessRate: 100},
		Projection: ProjectionSection{},
	}
	score, recs := computeScore(r)
	if score != 90 {
		t.Errorf("expected 90 (15 dropped to 5 for unknown CRS), got %d", score)
	}
	found := false
	for _, rec := range recs {
		if rec == "Projection not detected. Specify the source EPSG manually." {
			found = true
		}
	}
	if !found {
		t.Error("expected unknown-CRS recommendation")
	}
}
