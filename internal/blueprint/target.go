package blueprint

// PeriodTotals sums periods across rows.
type PeriodTotals struct {
	All      float64 `json:"all"`
	Examined float64 `json:"examined"`
	New      float64 `json:"new"`
}

// SumPeriods returns total, examined and new periods over rows.
func SumPeriods(rows []Row) PeriodTotals {
	var t PeriodTotals
	for i := range rows {
		t.All += rows[i].Periods
		t.Examined += rows[i].Examined()
		t.New += rows[i].NewPeriods()
	}
	return t
}

// ComputeTargets returns the score each row should earn out of
// p.TotalScore. Mid-term targets are proportional to periods; final-exam
// targets split the budget between examined and new periods by p.OldShare.
// A zero denominator yields a zero term.
func ComputeTargets(rows []Row, finalExam bool, p Policy) []float64 {
	targets := make([]float64, len(rows))
	totals := SumPeriods(rows)
	if totals.All <= 0 {
		return targets
	}

	if !finalExam {
		for i := range rows {
			targets[i] = rows[i].Periods / totals.All * p.TotalScore
		}
		return targets
	}

	scoreForOld := p.OldScoreCap()
	scoreForNew := p.TotalScore - scoreForOld
	for i := range rows {
		var sOld, sNew float64
		if totals.Examined > 0 {
			sOld = rows[i].Examined() / totals.Examined * scoreForOld
		}
		if totals.New > 0 {
			sNew = rows[i].NewPeriods() / totals.New * scoreForNew
		}
		targets[i] = sOld + sNew
	}
	return targets
}
