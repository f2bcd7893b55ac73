package quiz

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory Store with the same conflict semantics the SQL
// schemas enforce.
type fakeStore struct {
	mu        sync.Mutex
	quizzes   map[string]Quiz
	questions map[string][]Question
	attempts  map[int64]*Attempt
	responses map[int64][]*Response
	bank      map[int64]BankQuestion

	nextAttemptID  int64
	nextResponseID int64
	nextBankID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quizzes:   map[string]Quiz{},
		questions: map[string][]Question{},
		attempts:  map[int64]*Attempt{},
		responses: map[int64][]*Response{},
		bank:      map[int64]BankQuestion{},
	}
}

func (f *fakeStore) PutQuiz(_ context.Context, q Quiz, questions []Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizzes[q.ID] = q
	f.questions[q.ID] = nil
	for _, qu := range questions {
		qu.ID = int64(len(f.questions[q.ID]) + 1)
		qu.QuizID = q.ID
		f.questions[q.ID] = append(f.questions[q.ID], qu)
	}
	return nil
}

func (f *fakeStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (f *fakeStore) GetQuizByKey(_ context.Context, key string) (Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.quizzes {
		if q.AccessKey == NormalizeKey(key) {
			return q, nil
		}
	}
	return Quiz{}, ErrNotFound
}

func (f *fakeStore) ListQuizzes(_ context.Context, invigilatorID string) ([]Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Quiz
	for _, q := range f.quizzes {
		if invigilatorID == "" || q.InvigilatorID == invigilatorID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) ListQuestions(_ context.Context, quizID string) ([]Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Question(nil), f.questions[quizID]...), nil
}

func (f *fakeStore) AddQuestions(_ context.Context, quizID string, questions []Question) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, qu := range questions {
		qu.ID = int64(len(f.questions[quizID]) + 1)
		qu.QuizID = quizID
		f.questions[quizID] = append(f.questions[quizID], qu)
	}
	return len(questions), nil
}

func (f *fakeStore) AssignAttempts(_ context.Context, quizID string, userIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := 0
	for _, uid := range userIDs {
		exists := false
		for _, a := range f.attempts {
			if a.QuizID == quizID && a.UserID == uid {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		f.nextAttemptID++
		f.attempts[f.nextAttemptID] = &Attempt{ID: f.nextAttemptID, QuizID: quizID, UserID: uid}
		created++
	}
	return created, nil
}

func (f *fakeStore) GetAttempt(_ context.Context, quizID, userID string) (Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			return *a, nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (f *fakeStore) GetAttemptByID(_ context.Context, id int64) (Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return *a, nil
}

func (f *fakeStore) ListQuizAttempts(_ context.Context, quizID string) ([]Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Attempt
	for i := int64(1); i <= f.nextAttemptID; i++ {
		if a, ok := f.attempts[i]; ok && a.QuizID == quizID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserAttempts(_ context.Context, userID string) ([]Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Attempt
	for i := int64(1); i <= f.nextAttemptID; i++ {
		if a, ok := f.attempts[i]; ok && a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) SetExtra(_ context.Context, attemptID int64, extra string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	a.Extra = extra
	return nil
}

func (f *fakeStore) StartAttempt(_ context.Context, attemptID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return false, ErrNotFound
	}
	if a.Started != nil {
		return false, nil
	}
	t := now
	a.Started = &t
	return true, nil
}

func (f *fakeStore) CompleteAttempt(_ context.Context, attemptID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return false, ErrNotFound
	}
	if a.Completed != nil {
		return false, nil
	}
	t := at
	a.Completed = &t
	return true, nil
}

func (f *fakeStore) IncrementSuspicion(_ context.Context, attemptID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return 0, ErrNotFound
	}
	a.SuspicionCount++
	return a.SuspicionCount, nil
}

func (f *fakeStore) MaterializeResponses(_ context.Context, attemptID int64, questionIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ord, qid := range questionIDs {
		exists := false
		for _, r := range f.responses[attemptID] {
			if r.QuestionID == qid {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		f.nextResponseID++
		f.responses[attemptID] = append(f.responses[attemptID],
			&Response{ID: f.nextResponseID, AttemptID: attemptID, QuestionID: qid, Ord: ord})
	}
	return nil
}

func (f *fakeStore) UpsertAnswer(_ context.Context, attemptID, questionID int64, answer string, isCorrect bool, marks int) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.responses[attemptID] {
		if r.QuestionID == questionID {
			r.Answer, r.IsCorrect, r.Marks = answer, isCorrect, marks
			return *r, nil
		}
	}
	return Response{}, ErrNotFound
}

func (f *fakeStore) ListResponses(_ context.Context, attemptID int64) ([]Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Response, 0, len(f.responses[attemptID]))
	for _, r := range f.responses[attemptID] {
		out = append(out, *r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].QuestionID < out[j-1].QuestionID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) ListResponsesDisplay(_ context.Context, attemptID int64) ([]Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Response, 0, len(f.responses[attemptID]))
	for _, r := range f.responses[attemptID] {
		out = append(out, *r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Ord < out[j-1].Ord; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) AddBankQuestions(_ context.Context, entries []BankQuestion) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.nextBankID++
		e.ID = f.nextBankID
		f.bank[e.ID] = e
	}
	return len(entries), nil
}

func (f *fakeStore) ListBankQuestions(_ context.Context, tag, level string) ([]BankQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []BankQuestion
	for i := int64(1); i <= f.nextBankID; i++ {
		e, ok := f.bank[i]
		if !ok {
			continue
		}
		if (tag == "" || e.Tag == tag) && (level == "" || e.Level == level) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBankQuestions(_ context.Context, ids []int64) ([]BankQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]BankQuestion, 0, len(ids))
	for _, id := range ids {
		e, ok := f.bank[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeExporter struct {
	mu    sync.Mutex
	calls int
	last  ResultReport
}

func (e *fakeExporter) Export(_ context.Context, rep ResultReport) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = rep
	return "reports/fake.csv", nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	key   string
}

func (n *fakeNotifier) AttemptSubmitted(_ context.Context, _ ResultReport, artifactKey string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.key = artifactKey
	return nil
}

type fakeSink struct {
	mu    sync.Mutex
	types []string
}

func (s *fakeSink) Append(_ context.Context, typ, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, typ)
	return nil
}

type fixture struct {
	store    *fakeStore
	svc      *Service
	exporter *fakeExporter
	notifier *fakeNotifier
	sink     *fakeSink
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStore(),
		exporter: &fakeExporter{},
		notifier: &fakeNotifier{},
		sink:     &fakeSink{},
		now:      at(10, 0),
	}
	f.svc = NewService(f.store, nil, func() time.Time { return f.now }, f.exporter, f.notifier, f.sink, nil)

	q := windowQuiz()
	q.AccessKey = "AB12CD"
	questions := []Question{
		{Title: "2+2?", Choices: []string{"3", "4"}, Correct: "4", Marks: 2},
		{Title: "3+3?", Choices: []string{"5", "6"}, Correct: "6", Marks: 2},
		{Title: "4+4?", Choices: []string{"7", "8"}, Correct: "8", Marks: 2},
	}
	if err := f.store.PutQuiz(context.Background(), q, questions); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	if _, err := f.store.AssignAttempts(context.Background(), q.ID, []string{"alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.store.SetExtra(context.Background(), 1, "roll-42"); err != nil {
		t.Fatalf("extra: %v", err)
	}
	return f
}

func TestEnterFirstEntryStartsAndMaterializes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Enter(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if view.Phase != PhaseFirstEntry {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseFirstEntry)
	}
	if view.Attempt.Started == nil || !view.Attempt.Started.Equal(f.now) {
		t.Fatalf("started = %v, want %v", view.Attempt.Started, f.now)
	}
	if len(view.Questions) != 3 || len(view.Responses) != 3 {
		t.Fatalf("got %d questions, %d responses, want 3 and 3", len(view.Questions), len(view.Responses))
	}
	for _, qu := range view.Questions {
		if qu.Correct != "" {
			t.Fatalf("question %d leaked correct answer %q", qu.ID, qu.Correct)
		}
	}
	if view.TimeRemaining != 30*60 {
		t.Fatalf("time remaining = %d, want %d", view.TimeRemaining, 30*60)
	}
}

func TestEnterReentryCountsSuspicion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	f.now = at(10, 5)
	view, err := f.svc.Enter(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if view.Phase != PhaseReentry {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseReentry)
	}
	if view.SuspicionCount != 1 {
		t.Fatalf("suspicion = %d, want 1", view.SuspicionCount)
	}
	// Content is the one materialized at start, unmodified.
	if len(view.Responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(view.Responses))
	}
}

func TestEnterWithoutAttempt(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Enter(context.Background(), "q1", "mallory"); err != ErrNotAuthorized {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestLazyExpirySettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	started := f.now

	// First read past the deadline settles the attempt.
	f.now = at(11, 0)
	view, err := f.svc.Enter(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("enter after expiry: %v", err)
	}
	if view.Phase != PhaseResultReady {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseResultReady)
	}
	wantCompleted := started.Add(30 * time.Minute)
	if view.Attempt.Completed == nil || !view.Attempt.Completed.Equal(wantCompleted) {
		t.Fatalf("completed = %v, want started+duration %v", view.Attempt.Completed, wantCompleted)
	}

	// Later reads converge on the identical instant.
	f.now = at(12, 0)
	view2, err := f.svc.Enter(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !view2.Attempt.Completed.Equal(wantCompleted) {
		t.Fatalf("completed drifted to %v", view2.Attempt.Completed)
	}

	// Settling is never a submission: no export, no notification.
	if f.exporter.calls != 0 || f.notifier.calls != 0 {
		t.Fatalf("lazy expiry triggered side effects: export=%d notify=%d", f.exporter.calls, f.notifier.calls)
	}
}

func TestSaveAnswerGradesAndRejectsAfterEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	resp, err := f.svc.SaveAnswer(ctx, "q1", "alice", 1, "4")
	if err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if !resp.IsCorrect || resp.Marks != 2 {
		t.Fatalf("response = %+v, want correct with 2 marks", resp)
	}

	// Overwrite with a wrong answer; last write wins.
	resp, err = f.svc.SaveAnswer(ctx, "q1", "alice", 1, "3")
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if resp.IsCorrect || resp.Marks != 0 {
		t.Fatalf("overwritten response = %+v, want incorrect", resp)
	}

	// Unknown question.
	if _, err := f.svc.SaveAnswer(ctx, "q1", "alice", 99, "4"); err != ErrNotFound {
		t.Fatalf("unknown question err = %v, want ErrNotFound", err)
	}

	// Answers after the clock ran out are rejected.
	f.now = at(11, 0)
	if _, err := f.svc.SaveAnswer(ctx, "q1", "alice", 2, "6"); err != ErrInvalidState {
		t.Fatalf("late answer err = %v, want ErrInvalidState", err)
	}
}

func TestSaveAnswerBeforeStart(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SaveAnswer(context.Background(), "q1", "alice", 1, "4"); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestSaveExtraRejectedOnceStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.SaveExtra(ctx, "q1", "alice", "roll-43"); err != nil {
		t.Fatalf("save extra before start: %v", err)
	}
	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := f.svc.SaveExtra(ctx, "q1", "alice", "roll-44"); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestSubmitSideEffectsFireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := f.svc.SaveAnswer(ctx, "q1", "alice", 1, "4"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	f.now = at(10, 10)
	rep, err := f.svc.Submit(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rep.Totals.Obtained != 2 || rep.Totals.Possible != 6 {
		t.Fatalf("totals = %+v, want 2/6", rep.Totals)
	}
	if !rep.Totals.Passed {
		t.Fatal("2/6 is 33.33%, should pass")
	}
	if f.exporter.calls != 1 || f.notifier.calls != 1 {
		t.Fatalf("side effects: export=%d notify=%d, want 1 and 1", f.exporter.calls, f.notifier.calls)
	}
	if f.notifier.key != "reports/fake.csv" {
		t.Fatalf("notifier got artifact %q", f.notifier.key)
	}

	// A duplicate submit returns the report but repeats nothing.
	rep2, err := f.svc.Submit(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if !rep2.Attempt.Completed.Equal(*rep.Attempt.Completed) {
		t.Fatalf("completed changed on duplicate submit")
	}
	if f.exporter.calls != 1 || f.notifier.calls != 1 {
		t.Fatalf("duplicate submit repeated side effects: export=%d notify=%d", f.exporter.calls, f.notifier.calls)
	}
}

func TestSubmitAfterDeadlineCompletesAtDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	started := f.now

	// The clock ran out before the explicit submit arrived. The submit
	// still wins the attempt and fires side effects, it just completes
	// at the deadline instead of the wall clock.
	f.now = at(11, 0)
	rep, err := f.svc.Submit(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !rep.Attempt.Completed.Equal(started.Add(30 * time.Minute)) {
		t.Fatalf("completed = %v, want the deadline", rep.Attempt.Completed)
	}
	if f.exporter.calls != 1 || f.notifier.calls != 1 {
		t.Fatalf("side effects: export=%d notify=%d, want 1 and 1", f.exporter.calls, f.notifier.calls)
	}
}

func TestSubmitAfterSettledByEarlierRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	started := f.now

	// A read after the deadline settles the attempt first.
	f.now = at(11, 0)
	if _, err := f.svc.Peek(ctx, "ab12cd", "alice"); err != nil {
		t.Fatalf("peek: %v", err)
	}

	rep, err := f.svc.Submit(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !rep.Attempt.Completed.Equal(started.Add(30 * time.Minute)) {
		t.Fatalf("completed = %v, want the settled deadline", rep.Attempt.Completed)
	}
	if f.exporter.calls != 0 || f.notifier.calls != 0 {
		t.Fatalf("settled submit fired side effects: export=%d notify=%d", f.exporter.calls, f.notifier.calls)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Submit(context.Background(), "q1", "alice"); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestResultWhileRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := f.svc.Result(ctx, "q1", "alice"); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	f.now = at(11, 0)
	rep, err := f.svc.Result(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("result after expiry: %v", err)
	}
	if rep.Totals.Possible != 6 {
		t.Fatalf("possible = %d, want 6", rep.Totals.Possible)
	}
}

func setShowResults(f *fixture, show bool) {
	f.store.mu.Lock()
	q := f.store.quizzes["q1"]
	q.ShowResults = show
	f.store.quizzes["q1"] = q
	f.store.mu.Unlock()
}

func TestResultArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setShowResults(f, true)

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	// Not available while the attempt is running.
	if _, err := f.svc.ResultArtifact(ctx, "q1", "alice"); err != ErrInvalidState {
		t.Fatalf("running err = %v, want ErrInvalidState", err)
	}

	f.now = at(10, 10)
	if _, err := f.svc.Submit(ctx, "q1", "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	key, err := f.svc.ResultArtifact(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("result artifact: %v", err)
	}
	if key != "reports/fake.csv" {
		t.Fatalf("key = %q", key)
	}
	if f.exporter.calls != 2 {
		t.Fatalf("exporter calls = %d, want the submit export plus the download export", f.exporter.calls)
	}

	// Withheld results have no downloadable artifact either.
	setShowResults(f, false)
	if _, err := f.svc.ResultArtifact(ctx, "q1", "alice"); err != ErrInvalidState {
		t.Fatalf("withheld err = %v, want ErrInvalidState", err)
	}

	// Other users never see it.
	if _, err := f.svc.ResultArtifact(ctx, "q1", "mallory"); err != ErrNotAuthorized {
		t.Fatalf("stranger err = %v, want ErrNotAuthorized", err)
	}
}

func TestResultArtifactAfterExpirySettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setShowResults(f, true)

	if _, err := f.svc.Enter(ctx, "q1", "alice"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	// Expiry settles through a read, so no export has happened yet. The
	// download still produces the artifact on demand.
	f.now = at(11, 0)
	if _, err := f.svc.Peek(ctx, "ab12cd", "alice"); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if f.exporter.calls != 0 {
		t.Fatalf("exporter calls after settle = %d, want 0", f.exporter.calls)
	}
	key, err := f.svc.ResultArtifact(ctx, "q1", "alice")
	if err != nil {
		t.Fatalf("result artifact: %v", err)
	}
	if key != "reports/fake.csv" || f.exporter.calls != 1 {
		t.Fatalf("key = %q, exporter calls = %d", key, f.exporter.calls)
	}
}

func TestRecordSuspiciousEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, maxed, err := f.svc.RecordSuspiciousEvent(ctx, "q1", "alice")
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
		if maxed != (i >= 3) {
			t.Fatalf("maxed = %v at count %d", maxed, i)
		}
	}
	found := false
	for _, typ := range f.sink.types {
		if typ == "suspicion_max_reached" {
			found = true
		}
	}
	if !found {
		t.Fatalf("threshold event missing, got %v", f.sink.types)
	}
}

func TestPeekHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Peek(ctx, "ab12cd", "alice")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if view.Phase != PhaseFirstEntry {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseFirstEntry)
	}
	a, _ := f.store.GetAttempt(ctx, "q1", "alice")
	if a.Started != nil || a.SuspicionCount != 0 {
		t.Fatalf("peek mutated the attempt: %+v", a)
	}
}

func TestProfileBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := windowQuiz()
	past.ID, past.AccessKey = "q-past", "PAST01"
	past.StartAt, past.EndAt = at(6, 0), at(7, 0)
	if err := f.store.PutQuiz(ctx, past, nil); err != nil {
		t.Fatal(err)
	}
	future := windowQuiz()
	future.ID, future.AccessKey = "q-future", "FUT001"
	future.StartAt, future.EndAt = at(12, 0), at(13, 0)
	if err := f.store.PutQuiz(ctx, future, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AssignAttempts(ctx, "q-past", []string{"alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AssignAttempts(ctx, "q-future", []string{"alice"}); err != nil {
		t.Fatal(err)
	}

	pastE, currentE, upcomingE, err := f.svc.Profile(ctx, "alice")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(pastE) != 1 || pastE[0].Quiz.ID != "q-past" || pastE[0].Phase != PhaseMissed {
		t.Fatalf("past bucket = %+v", pastE)
	}
	if len(currentE) != 1 || currentE[0].Quiz.ID != "q1" {
		t.Fatalf("current bucket = %+v", currentE)
	}
	if len(upcomingE) != 1 || upcomingE[0].Quiz.ID != "q-future" {
		t.Fatalf("upcoming bucket = %+v", upcomingE)
	}
}

func TestReportDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.AssignAttempts(ctx, "q1", []string{"bob"}); err != nil {
		t.Fatal(err)
	}
	for _, uid := range []string{"alice", "bob"} {
		_ = f.store.SetExtra(ctx, attemptIDFor(t, f.store, uid), "x")
		if _, err := f.svc.Enter(ctx, "q1", uid); err != nil {
			t.Fatalf("enter %s: %v", uid, err)
		}
	}
	if _, err := f.svc.SaveAnswer(ctx, "q1", "alice", 1, "4"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SaveAnswer(ctx, "q1", "bob", 1, "4"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SaveAnswer(ctx, "q1", "bob", 2, "6"); err != nil {
		t.Fatal(err)
	}

	rep, err := f.svc.Report(ctx, "q1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.TotalMarks != 6 || rep.Attempts != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Distribution[2] != 1 || rep.Distribution[4] != 1 {
		t.Fatalf("distribution = %v, want one attempt at 2 and one at 4", rep.Distribution)
	}
}

func attemptIDFor(t *testing.T, store *fakeStore, userID string) int64 {
	t.Helper()
	a, err := store.GetAttempt(context.Background(), "q1", userID)
	if err != nil {
		t.Fatalf("attempt for %s: %v", userID, err)
	}
	return a.ID
}
