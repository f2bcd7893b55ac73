package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bits-mayank/quizmasters/internal/quiz"
	"github.com/bits-mayank/quizmasters/internal/storage"
)

// CSVExporter renders a completed attempt into a CSV artifact and stores it
// under reports/<quiz>/attempt-<id>.csv. Timestamps are rendered in the
// test-taker's timezone; UTC when unset or unknown.
type CSVExporter struct {
	blobs storage.BlobStore
}

func NewCSVExporter(blobs storage.BlobStore) *CSVExporter {
	return &CSVExporter{blobs: blobs}
}

func (e *CSVExporter) Export(ctx context.Context, rep quiz.ResultReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	loc := userLocation(rep.User.TimeZone)
	write := func(rec ...string) { w.Write(rec) }

	write("Quiz", rep.Quiz.Title)
	write("Candidate", displayName(rep.User))
	for _, kv := range extraPairs(rep.Quiz.ExtraLabel, rep.Attempt.Extra) {
		write(kv[0], kv[1])
	}
	write("Started", formatInstant(rep.Attempt.Started, loc))
	write("Submitted", formatInstant(rep.Attempt.Completed, loc))
	write("Suspicious events", strconv.Itoa(rep.Attempt.SuspicionCount))
	write("Marks obtained", strconv.Itoa(rep.Totals.Obtained))
	write("Marks possible", strconv.Itoa(rep.Totals.Possible))
	write("Result", passLabel(rep.Totals.Passed))
	write()

	write("#", "Question", "Answer given", "Correct answer", "Correct", "Marks")
	byQuestion := make(map[int64]quiz.Response, len(rep.Responses))
	for _, r := range rep.Responses {
		byQuestion[r.QuestionID] = r
	}
	for i, q := range rep.Questions {
		r := byQuestion[q.ID]
		write(
			strconv.Itoa(i+1),
			q.Title,
			r.Answer,
			q.Correct,
			yesNo(r.IsCorrect),
			strconv.Itoa(r.Marks),
		)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("render report csv: %w", err)
	}

	key := fmt.Sprintf("reports/%s/attempt-%d.csv", rep.Quiz.ID, rep.Attempt.ID)
	if _, err := e.blobs.Put(key, &buf); err != nil {
		return "", fmt.Errorf("store report %s: %w", key, err)
	}
	return key, nil
}

func displayName(u quiz.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

func userLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func formatInstant(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// extraPairs flattens the pre-start extra blob. A JSON object renders as one
// row per field; anything else renders as a single row under the quiz's
// configured label.
func extraPairs(label, extra string) [][2]string {
	if extra == "" {
		return nil
	}
	if label == "" {
		label = "Extra"
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(extra), &m); err == nil && len(m) > 0 {
		out := make([][2]string, 0, len(m))
		for k, v := range m {
			out = append(out, [2]string{k, v})
		}
		sortPairs(out)
		return out
	}
	return [][2]string{{label, extra}}
}

func sortPairs(pairs [][2]string) {
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j][0] < pairs[j-1][0]; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
