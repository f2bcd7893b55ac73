package quiz

import "testing"

func TestGrade(t *testing.T) {
	q := Question{Title: "2+2?", Choices: []string{"3", "4"}, Correct: "4", Marks: 5}

	ok, marks := Grade(q, "4")
	if !ok || marks != 5 {
		t.Fatalf("correct answer: got (%v, %d), want (true, 5)", ok, marks)
	}
	// Comparison is verbatim: no trimming, no case folding, no partial
	// credit.
	for _, wrong := range []string{"3", " 4", "4 ", "four", ""} {
		ok, marks := Grade(q, wrong)
		if ok || marks != 0 {
			t.Fatalf("answer %q: got (%v, %d), want (false, 0)", wrong, ok, marks)
		}
	}
}

func TestAggregateTotals(t *testing.T) {
	questions := []Question{
		{ID: 1, Marks: 2},
		{ID: 2, Marks: 2},
		{ID: 3, Marks: 2},
	}
	responses := []Response{
		{QuestionID: 1, IsCorrect: true, Marks: 2},
		{QuestionID: 2, Answer: "wrong"},
		{QuestionID: 3, Answer: ""},
	}

	got := AggregateTotals(questions, responses)
	if got.Possible != 6 || got.Obtained != 2 {
		t.Fatalf("totals = %+v, want possible 6 obtained 2", got)
	}
	// 2/6 is 33.33%, strictly above the 33 threshold.
	if !got.Passed {
		t.Fatal("33.33%% should pass the strict >33 rule")
	}
}

func TestAggregateTotalsExactThresholdFails(t *testing.T) {
	questions := []Question{{ID: 1, Marks: 100}}
	responses := []Response{{QuestionID: 1, Marks: 33}}
	if got := AggregateTotals(questions, responses); got.Passed {
		t.Fatalf("exactly 33%% must not pass, got %+v", got)
	}
}

func TestAggregateTotalsZeroPossible(t *testing.T) {
	got := AggregateTotals(nil, nil)
	if got.Passed || got.Possible != 0 || got.Obtained != 0 {
		t.Fatalf("empty quiz must not pass: %+v", got)
	}
}

func TestAggregateTotalsUsesQuestionWeights(t *testing.T) {
	// Possible sums over the quiz's questions, not over responses: a
	// question added after materialization still raises the denominator.
	questions := []Question{{ID: 1, Marks: 3}, {ID: 2, Marks: 3}}
	responses := []Response{{QuestionID: 1, IsCorrect: true, Marks: 3}}
	got := AggregateTotals(questions, responses)
	if got.Possible != 6 || got.Obtained != 3 {
		t.Fatalf("totals = %+v, want possible 6 obtained 3", got)
	}
}
