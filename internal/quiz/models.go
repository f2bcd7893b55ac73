package quiz

import (
	"math/rand"
	"strings"
	"time"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Quiz is a scheduled, timed test. The access key is stored upper-cased;
// NormalizeKey must be applied to any caller-supplied key before lookup.
type Quiz struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Instructions  string    `json:"instructions,omitempty"`
	AccessKey     string    `json:"access_key"`
	ExtraLabel    string    `json:"extra_label,omitempty"` // e.g. "Roll No", captured before start
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	DurationMin   int       `json:"duration_min"`
	Shuffle       bool      `json:"shuffle"`
	AllowBack     bool      `json:"allow_backtracking"`
	Proctored     bool      `json:"proctored"`
	ShowResults   bool      `json:"show_results"`
	MaxSuspicion  int       `json:"max_suspicion"`
	InvigilatorID string    `json:"invigilator_id"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

func (q Quiz) HasStarted(now time.Time) bool { return now.After(q.StartAt) }
func (q Quiz) HasEnded(now time.Time) bool   { return now.After(q.EndAt) }

func (q Quiz) Duration() time.Duration { return time.Duration(q.DurationMin) * time.Minute }

// NormalizeKey upper-cases and trims an access key the way it is stored.
func NormalizeKey(key string) string { return strings.ToUpper(strings.TrimSpace(key)) }

// RandomKey returns a 6-char access key from A-Z0-9.
func RandomKey() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = keyAlphabet[rand.Intn(len(keyAlphabet))]
	}
	return string(b)
}

// Question belongs to exactly one quiz. Choices holds 2 to 5 option texts;
// Correct is the full text of the right choice, compared verbatim at grading.
type Question struct {
	ID        int64     `json:"id"`
	QuizID    string    `json:"quiz_id"`
	Title     string    `json:"title"`
	Choices   []string  `json:"choices"`
	Correct   string    `json:"correct,omitempty"`
	Marks     int       `json:"marks"`
	Shuffle   bool      `json:"shuffle"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Redacted returns a copy safe to serve to a test-taker.
func (q Question) Redacted() Question {
	q.Correct = ""
	return q
}

// BankQuestion is a reusable template question, independent of any quiz.
type BankQuestion struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Choices   []string  `json:"choices"`
	Correct   string    `json:"correct"`
	Marks     int       `json:"marks"`
	Shuffle   bool      `json:"shuffle"`
	Tag       string    `json:"tag"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ToQuestion clones a bank entry into a quiz question. Field mapping is
// explicit: identity, tag and level never carry over.
func (b BankQuestion) ToQuestion(quizID string) Question {
	return Question{
		QuizID:  quizID,
		Title:   b.Title,
		Choices: append([]string(nil), b.Choices...),
		Correct: b.Correct,
		Marks:   b.Marks,
		Shuffle: b.Shuffle,
	}
}

// Attempt is a user's single relationship to one quiz (unique per pair).
// Started and Completed are nil until the corresponding transition happens.
type Attempt struct {
	ID             int64      `json:"id"`
	QuizID         string     `json:"quiz_id"`
	UserID         string     `json:"user_id"`
	Extra          string     `json:"extra,omitempty"`
	Started        *time.Time `json:"started,omitempty"`
	Completed      *time.Time `json:"completed,omitempty"`
	SuspicionCount int        `json:"suspicion_count"`
}

// Deadline is the instant the attempt's own clock runs out. Only meaningful
// once Started is set.
func (a Attempt) Deadline(q Quiz) time.Time {
	if a.Started == nil {
		return time.Time{}
	}
	return a.Started.Add(q.Duration())
}

// Response is the single answer slot for one (attempt, question) pair.
// Ord preserves the display order chosen when the attempt started.
type Response struct {
	ID         int64  `json:"id"`
	AttemptID  int64  `json:"attempt_id"`
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"is_correct"`
	Marks      int    `json:"marks"`
	Ord        int    `json:"ord"`
}

// User mirrors the users table. Password hashes never leave the store layer.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	TimeZone  string    `json:"time_zone,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
