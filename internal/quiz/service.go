package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"
)

// Clock supplies the current instant. Injectable for tests; every lifecycle
// decision is made relative to it.
type Clock func() time.Time

// UserDirectory resolves user identity for reports. The core treats the id
// as an opaque key everywhere else.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// Service drives the attempt lifecycle. All transitions are evaluated
// synchronously within the request that observes them; there is no
// background scheduler, so expiry is settled at request entry ("pull", not
// "push").
type Service struct {
	store    Store
	users    UserDirectory
	clock    Clock
	exporter Exporter
	notifier Notifier
	events   EventSink
	log      *slog.Logger
}

func NewService(store Store, users UserDirectory, clock Clock, exporter Exporter, notifier Notifier, events EventSink, log *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, users: users, clock: clock, exporter: exporter, notifier: notifier, events: events, log: log}
}

// EnterView is what a request entering the quiz surface gets back. Questions
// are redacted; Responses carry only the answer text for the active phases.
type EnterView struct {
	Phase          Phase      `json:"phase"`
	Quiz           Quiz       `json:"quiz"`
	Attempt        *Attempt   `json:"attempt,omitempty"`
	Questions      []Question `json:"questions,omitempty"`
	Responses      []Response `json:"responses,omitempty"`
	SuspicionCount int        `json:"suspicion_count,omitempty"`
	MaxReached     bool       `json:"max_reached,omitempty"`
	TimeRemaining  int64      `json:"time_remaining_sec,omitempty"`
}

// settle is the explicit lazy-expiry checkpoint: if the attempt's clock ran
// out, the completed instant is persisted as started+duration. Invoked at
// request entry, never hidden inside an accessor. Idempotent; concurrent
// settles converge on the identical instant and at most one write wins.
func (s *Service) settle(ctx context.Context, q Quiz, a Attempt) (Attempt, error) {
	if a.Completed != nil || a.Started == nil {
		return a, nil
	}
	deadline := a.Deadline(q)
	if s.clock().Before(deadline) {
		return a, nil
	}
	if _, err := s.store.CompleteAttempt(ctx, a.ID, deadline); err != nil {
		return a, fmt.Errorf("settle attempt %d: %w", a.ID, err)
	}
	return s.store.GetAttemptByID(ctx, a.ID)
}

func (s *Service) loadPair(ctx context.Context, quizID, userID string) (Quiz, *Attempt, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, nil, err
	}
	a, err := s.store.GetAttempt(ctx, q.ID, userID)
	if err == ErrNotFound {
		return q, nil, nil
	}
	if err != nil {
		return Quiz{}, nil, err
	}
	settled, err := s.settle(ctx, q, a)
	if err != nil {
		return Quiz{}, nil, err
	}
	return q, &settled, nil
}

// Peek resolves a quiz by access key and reports the caller's phase without
// any of the entry side effects (no started transition, no suspicion).
// Used by the join-by-key flow.
func (s *Service) Peek(ctx context.Context, key, userID string) (EnterView, error) {
	q, err := s.store.GetQuizByKey(ctx, key)
	if err != nil {
		return EnterView{}, err
	}
	var ap *Attempt
	if a, err := s.store.GetAttempt(ctx, q.ID, userID); err == nil {
		settled, err := s.settle(ctx, q, a)
		if err != nil {
			return EnterView{}, err
		}
		ap = &settled
	} else if err != ErrNotFound {
		return EnterView{}, err
	}
	return EnterView{Phase: ComputePhase(q, ap, s.clock()), Quiz: q, Attempt: ap}, nil
}

// Enter is the active-quiz entry point. On first entry it starts the
// attempt and materializes responses; on re-entry it counts a suspicious
// event and returns the previously materialized content unmodified.
func (s *Service) Enter(ctx context.Context, quizID, userID string) (EnterView, error) {
	q, a, err := s.loadPair(ctx, quizID, userID)
	if err != nil {
		return EnterView{}, err
	}
	now := s.clock()
	phase := ComputePhase(q, a, now)
	view := EnterView{Phase: phase, Quiz: q, Attempt: a}

	switch phase {
	case PhaseFirstEntry:
		return s.firstEntry(ctx, q, *a)
	case PhaseReentry:
		return s.reentry(ctx, q, *a)
	case PhaseStarted:
		// Window open but the caller holds no attempt; the quiz view
		// itself is off limits.
		return view, ErrNotAuthorized
	default:
		return view, nil
	}
}

func (s *Service) firstEntry(ctx context.Context, q Quiz, a Attempt) (EnterView, error) {
	now := s.clock()
	won, err := s.store.StartAttempt(ctx, a.ID, now)
	if err != nil {
		return EnterView{}, err
	}
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return EnterView{}, err
	}
	order := make([]int64, len(questions))
	for i, qu := range questions {
		order[i] = qu.ID
	}
	if q.Shuffle {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	// Conflict-ignoring: a racing first entry may already have rows; theirs
	// win and ours become no-ops per row.
	if err := s.store.MaterializeResponses(ctx, a.ID, order); err != nil {
		return EnterView{}, err
	}
	if won && s.events != nil {
		s.appendEvent(ctx, "attempt_started", a, map[string]any{"quiz_id": q.ID, "user_id": a.UserID})
	}
	a2, err := s.store.GetAttemptByID(ctx, a.ID)
	if err != nil {
		return EnterView{}, err
	}
	return s.activeView(ctx, q, a2, PhaseFirstEntry)
}

func (s *Service) reentry(ctx context.Context, q Quiz, a Attempt) (EnterView, error) {
	// Navigating back to a running quiz is the same signal as a
	// visibility-change event.
	count, err := s.store.IncrementSuspicion(ctx, a.ID)
	if err != nil {
		return EnterView{}, err
	}
	a.SuspicionCount = count
	if count == q.MaxSuspicion && q.MaxSuspicion > 0 && s.events != nil {
		s.appendEvent(ctx, "suspicion_max_reached", a, map[string]any{"count": count})
	}
	return s.activeView(ctx, q, a, PhaseReentry)
}

// activeView assembles the running-quiz payload: responses in their
// materialized display order, questions aligned to that order and redacted.
func (s *Service) activeView(ctx context.Context, q Quiz, a Attempt, phase Phase) (EnterView, error) {
	responses, err := s.store.ListResponsesDisplay(ctx, a.ID)
	if err != nil {
		return EnterView{}, err
	}
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return EnterView{}, err
	}
	byID := make(map[int64]Question, len(questions))
	for _, qu := range questions {
		byID[qu.ID] = qu
	}
	ordered := make([]Question, 0, len(responses))
	shown := make([]Response, 0, len(responses))
	for _, r := range responses {
		qu, ok := byID[r.QuestionID]
		if !ok {
			continue // question removed from the quiz after start
		}
		ordered = append(ordered, qu.Redacted())
		r.IsCorrect, r.Marks = false, 0 // never leak grading mid-attempt
		shown = append(shown, r)
	}
	return EnterView{
		Phase:          phase,
		Quiz:           q,
		Attempt:        &a,
		Questions:      ordered,
		Responses:      shown,
		SuspicionCount: a.SuspicionCount,
		MaxReached:     MaxReached(q, a),
		TimeRemaining:  TimeRemaining(q, a, s.clock()),
	}, nil
}

// SaveExtra captures the pre-start info blob. Rejected once the attempt has
// started; the value is part of the attempt's identity on the report.
func (s *Service) SaveExtra(ctx context.Context, quizID, userID, extra string) error {
	_, a, err := s.loadPair(ctx, quizID, userID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrNotAuthorized
	}
	if a.Started != nil {
		return ErrInvalidState
	}
	return s.store.SetExtra(ctx, a.ID, extra)
}

// SaveAnswer grades and persists one answer. The attempt must be running:
// answers after completion or expiry are rejected, not silently accepted.
func (s *Service) SaveAnswer(ctx context.Context, quizID, userID string, questionID int64, answer string) (Response, error) {
	q, a, err := s.loadPair(ctx, quizID, userID)
	if err != nil {
		return Response{}, err
	}
	if a == nil {
		return Response{}, ErrNotAuthorized
	}
	if a.Started == nil || HasEnded(q, *a, s.clock()) {
		return Response{}, ErrInvalidState
	}
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return Response{}, err
	}
	var target *Question
	for i := range questions {
		if questions[i].ID == questionID {
			target = &questions[i]
			break
		}
	}
	if target == nil {
		return Response{}, ErrNotFound
	}
	isCorrect, marks := Grade(*target, answer)
	return s.store.UpsertAnswer(ctx, a.ID, questionID, answer, isCorrect, marks)
}

// RecordSuspiciousEvent handles the explicit client signal (tab switch,
// visibility change). Atomic increment; both racing callers observe
// consistent snapshots.
func (s *Service) RecordSuspiciousEvent(ctx context.Context, quizID, userID string) (count int, maxReached bool, err error) {
	q, a, err := s.loadPair(ctx, quizID, userID)
	if err != nil {
		return 0, false, err
	}
	if a == nil {
		return 0, false, ErrNotAuthorized
	}
	count, err = s.store.IncrementSuspicion(ctx, a.ID)
	if err != nil {
		return 0, false, err
	}
	a.SuspicionCount = count
	if count == q.MaxSuspicion && q.MaxSuspicion > 0 && s.events != nil {
		s.appendEvent(ctx, "suspicion_max_reached", *a, map[string]any{"count": count})
	}
	return count, MaxReached(q, *a), nil
}

// Submit records explicit completion. Export and notification fire only
// when this call is the one that flips the completed timestamp: a lazy
// expiry that already settled the attempt, or a concurrent duplicate
// submit, produces no second side effect. Collaborator failures are logged
// and never roll back completion.
func (s *Service) Submit(ctx context.Context, quizID, userID string) (ResultReport, error) {
	// Load without settling: a submit that arrives past the deadline is
	// still this caller's submission, it just completes at the deadline
	// instant so concurrent settles converge on the same row.
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return ResultReport{}, err
	}
	a, err := s.store.GetAttempt(ctx, q.ID, userID)
	if err == ErrNotFound {
		return ResultReport{}, ErrNotAuthorized
	}
	if err != nil {
		return ResultReport{}, err
	}
	if a.Started == nil {
		return ResultReport{}, ErrInvalidState
	}
	first := false
	if a.Completed == nil {
		at := s.clock()
		if deadline := a.Deadline(q); at.After(deadline) {
			at = deadline
		}
		first, err = s.store.CompleteAttempt(ctx, a.ID, at)
		if err != nil {
			return ResultReport{}, err
		}
		a, err = s.store.GetAttemptByID(ctx, a.ID)
		if err != nil {
			return ResultReport{}, err
		}
	}
	rep, err := s.buildReport(ctx, q, a)
	if err != nil {
		return ResultReport{}, err
	}
	if first {
		s.appendEvent(ctx, "attempt_submitted", a, map[string]any{
			"quiz_id": q.ID, "user_id": a.UserID, "obtained": rep.Totals.Obtained,
		})
		artifact := ""
		if s.exporter != nil {
			artifact, err = s.exporter.Export(ctx, rep)
			if err != nil {
				s.log.Error("result export failed", "attempt", a.ID, "err", err)
				artifact = ""
			}
		}
		if s.notifier != nil {
			if err := s.notifier.AttemptSubmitted(ctx, rep, artifact); err != nil {
				s.log.Error("submit notification failed", "attempt", a.ID, "err", err)
			}
		}
	}
	return rep, nil
}

// Result returns the finalized report. Rejected while the attempt is still
// running.
func (s *Service) Result(ctx context.Context, quizID, userID string) (ResultReport, error) {
	q, a, err := s.loadPair(ctx, quizID, userID)
	if err != nil {
		return ResultReport{}, err
	}
	if a == nil {
		return ResultReport{}, ErrNotAuthorized
	}
	if !HasEnded(q, *a, s.clock()) {
		return ResultReport{}, ErrInvalidState
	}
	return s.buildReport(ctx, q, *a)
}

// ResultArtifact exports the caller's finalized report and returns the
// artifact key. Exporting is idempotent, so an attempt settled by expiry
// without an export still gets its artifact here. Withheld results stay
// withheld.
func (s *Service) ResultArtifact(ctx context.Context, quizID, userID string) (string, error) {
	rep, err := s.Result(ctx, quizID, userID)
	if err != nil {
		return "", err
	}
	if !rep.Quiz.ShowResults {
		return "", ErrInvalidState
	}
	if s.exporter == nil {
		return "", ErrNotFound
	}
	return s.exporter.Export(ctx, rep)
}

func (s *Service) buildReport(ctx context.Context, q Quiz, a Attempt) (ResultReport, error) {
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return ResultReport{}, err
	}
	responses, err := s.store.ListResponses(ctx, a.ID)
	if err != nil {
		return ResultReport{}, err
	}
	u := User{ID: a.UserID}
	if s.users != nil {
		if got, err := s.users.GetUser(ctx, a.UserID); err == nil {
			u = got
		}
	}
	return ResultReport{
		User:      u,
		Quiz:      q,
		Attempt:   a,
		Questions: questions,
		Responses: responses,
		Totals:    AggregateTotals(questions, responses),
	}, nil
}

// ProfileEntry pairs an attempt with its quiz and bucket for the profile
// listing.
type ProfileEntry struct {
	Quiz    Quiz    `json:"quiz"`
	Attempt Attempt `json:"attempt"`
	Phase   Phase   `json:"phase"`
}

// Profile buckets a user's attempts into past / current / upcoming, each
// sorted by distance from now to the quiz start.
func (s *Service) Profile(ctx context.Context, userID string) (past, current, upcoming []ProfileEntry, err error) {
	attempts, err := s.store.ListUserAttempts(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	now := s.clock()
	for _, a := range attempts {
		q, err := s.store.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return nil, nil, nil, err
		}
		settled, err := s.settle(ctx, q, a)
		if err != nil {
			return nil, nil, nil, err
		}
		entry := ProfileEntry{Quiz: q, Attempt: settled, Phase: ComputePhase(q, &settled, now)}
		switch entry.Phase {
		case PhaseMissed, PhaseResultReady:
			past = append(past, entry)
		case PhaseUpcoming:
			upcoming = append(upcoming, entry)
		default:
			current = append(current, entry)
		}
	}
	byStartDistance := func(entries []ProfileEntry) {
		sort.Slice(entries, func(i, j int) bool {
			di := absDuration(now.Sub(entries[i].Quiz.StartAt))
			dj := absDuration(now.Sub(entries[j].Quiz.StartAt))
			return di < dj
		})
	}
	byStartDistance(past)
	byStartDistance(current)
	byStartDistance(upcoming)
	return past, current, upcoming, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// QuizReport is the invigilator's score distribution: how many attempts
// obtained each total.
type QuizReport struct {
	Quiz         Quiz        `json:"quiz"`
	TotalMarks   int         `json:"total_marks"`
	Attempts     int         `json:"attempts"`
	Distribution map[int]int `json:"distribution"`
}

func (s *Service) Report(ctx context.Context, quizID string) (QuizReport, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizReport{}, err
	}
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return QuizReport{}, err
	}
	total := 0
	for _, qu := range questions {
		total += qu.Marks
	}
	attempts, err := s.store.ListQuizAttempts(ctx, q.ID)
	if err != nil {
		return QuizReport{}, err
	}
	dist := map[int]int{}
	for _, a := range attempts {
		responses, err := s.store.ListResponses(ctx, a.ID)
		if err != nil {
			return QuizReport{}, err
		}
		obtained := 0
		for _, r := range responses {
			obtained += r.Marks
		}
		dist[obtained]++
	}
	return QuizReport{Quiz: q, TotalMarks: total, Attempts: len(attempts), Distribution: dist}, nil
}

func (s *Service) appendEvent(ctx context.Context, typ string, a Attempt, data map[string]any) {
	if s.events == nil {
		return
	}
	buf, _ := json.Marshal(data)
	if err := s.events.Append(ctx, typ, fmt.Sprintf("attempt:%d", a.ID), string(buf)); err != nil {
		s.log.Warn("event append failed", "type", typ, "attempt", a.ID, "err", err)
	}
}
