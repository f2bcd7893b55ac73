package quiz

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound: the referenced quiz, attempt, question or response does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized: the caller holds no attempt for the referenced quiz.
	ErrNotAuthorized = errors.New("not authorized for this quiz")
	// ErrInvalidState: the operation is forbidden in the attempt's current
	// phase (e.g. answering after completion).
	ErrInvalidState = errors.New("invalid attempt state")
)

// Store is the durable persistence boundary for the quiz core. Conflict
// semantics the implementations must provide: attempt assignment and
// response materialization are conflict-ignoring bulk inserts, the
// suspicion increment is atomic at the storage layer, and StartAttempt /
// CompleteAttempt are first-writer-wins guarded updates.
type Store interface {
	// Quizzes and questions.
	PutQuiz(ctx context.Context, q Quiz, questions []Question) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	GetQuizByKey(ctx context.Context, key string) (Quiz, error)
	ListQuizzes(ctx context.Context, invigilatorID string) ([]Quiz, error)
	// ListQuestions returns a quiz's questions ordered by id ascending.
	ListQuestions(ctx context.Context, quizID string) ([]Question, error)
	AddQuestions(ctx context.Context, quizID string, questions []Question) (int, error)

	// Attempts.
	AssignAttempts(ctx context.Context, quizID string, userIDs []string) (int, error)
	GetAttempt(ctx context.Context, quizID, userID string) (Attempt, error)
	GetAttemptByID(ctx context.Context, id int64) (Attempt, error)
	ListQuizAttempts(ctx context.Context, quizID string) ([]Attempt, error)
	ListUserAttempts(ctx context.Context, userID string) ([]Attempt, error)
	SetExtra(ctx context.Context, attemptID int64, extra string) error
	// StartAttempt sets the started instant iff it is still unset and
	// reports whether this call was the one that set it.
	StartAttempt(ctx context.Context, attemptID int64, now time.Time) (bool, error)
	// CompleteAttempt sets the completed instant iff it is still unset and
	// reports whether this call won. Losing the race is not an error.
	CompleteAttempt(ctx context.Context, attemptID int64, at time.Time) (bool, error)
	// IncrementSuspicion atomically bumps the counter by one and returns
	// the new value. Storage-level increment; never read-modify-write.
	IncrementSuspicion(ctx context.Context, attemptID int64) (int, error)

	// Responses.
	// MaterializeResponses bulk-creates one empty response per question in
	// the given display order. Rows that already exist are left untouched.
	MaterializeResponses(ctx context.Context, attemptID int64, questionIDs []int64) error
	// UpsertAnswer overwrites the answer fields of the unique response for
	// (attempt, question). ErrNotFound if no such row was materialized.
	UpsertAnswer(ctx context.Context, attemptID, questionID int64, answer string, isCorrect bool, marks int) (Response, error)
	// ListResponses returns responses ordered by question id ascending
	// (the stable result/export order).
	ListResponses(ctx context.Context, attemptID int64) ([]Response, error)
	// ListResponsesDisplay returns responses in the materialized display
	// order (the shuffle chosen at first entry).
	ListResponsesDisplay(ctx context.Context, attemptID int64) ([]Response, error)

	// Question bank.
	AddBankQuestions(ctx context.Context, entries []BankQuestion) (int, error)
	ListBankQuestions(ctx context.Context, tag, level string) ([]BankQuestion, error)
	GetBankQuestions(ctx context.Context, ids []int64) ([]BankQuestion, error)
}

// ResultReport is the finalized view handed to the exporter and notifier.
// Questions and Responses are aligned: both ordered by question id
// ascending, one response per question as materialized at start.
type ResultReport struct {
	User      User
	Quiz      Quiz
	Attempt   Attempt
	Questions []Question
	Responses []Response
	Totals    Totals
}

// Exporter produces a durable report artifact from a completed attempt and
// returns a key it can be retrieved under.
type Exporter interface {
	Export(ctx context.Context, rep ResultReport) (artifactKey string, err error)
}

// Notifier informs the test-taker that their submission was recorded.
// Invoked only on explicit submission, never on lazy expiry, and only by
// the caller that actually flipped the completed timestamp.
type Notifier interface {
	AttemptSubmitted(ctx context.Context, rep ResultReport, artifactKey string) error
}

// EventSink records lifecycle events for audit (attempt started, submitted,
// suspicion threshold crossed).
type EventSink interface {
	Append(ctx context.Context, typ, key, dataJSON string) error
}
