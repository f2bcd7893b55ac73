package quiz

// PassPercent is the fixed pass threshold: an attempt passes when the
// obtained share of total marks strictly exceeds this percentage.
const PassPercent = 33

// Grade scores one submitted answer against a question. The comparison is
// exact string equality with the correct choice text: no trimming, no
// case-folding, no partial credit. Deterministic and total; the awarded
// marks are either 0 or the question's full weight.
func Grade(q Question, answer string) (isCorrect bool, marks int) {
	if answer == q.Correct {
		return true, q.Marks
	}
	return false, 0
}

// Totals is the aggregate outcome of an attempt.
type Totals struct {
	Possible int  `json:"total_possible"`
	Obtained int  `json:"total_obtained"`
	Passed   bool `json:"passed"`
}

// AggregateTotals sums marks over the quiz's questions (not over responses:
// a quiz edited after an attempt started still counts at its current full
// weight) and obtained marks over the attempt's responses.
//
// A quiz with zero total marks never passes; the ratio is not evaluated.
func AggregateTotals(questions []Question, responses []Response) Totals {
	var t Totals
	for _, q := range questions {
		t.Possible += q.Marks
	}
	for _, r := range responses {
		t.Obtained += r.Marks
	}
	if t.Possible > 0 {
		t.Passed = 100*float64(t.Obtained)/float64(t.Possible) > PassPercent
	}
	return t
}
