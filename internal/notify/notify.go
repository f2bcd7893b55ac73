package notify

import (
	"context"
	"log/slog"

	"github.com/bits-mayank/quizmasters/internal/quiz"
)

// LogNotifier records submission confirmations on the process log. It stands
// where a mail sender would go; the service contract (fire once, only on the
// winning explicit submit) is identical for any other implementation.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) AttemptSubmitted(_ context.Context, rep quiz.ResultReport, artifactKey string) error {
	n.log.Info("attempt submitted",
		"quiz", rep.Quiz.Title,
		"user", rep.User.Username,
		"attempt", rep.Attempt.ID,
		"obtained", rep.Totals.Obtained,
		"possible", rep.Totals.Possible,
		"passed", rep.Totals.Passed,
		"artifact", artifactKey,
	)
	return nil
}
