package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	auth "github.com/bits-mayank/quizmasters/internal/auth/middleware"
	"github.com/bits-mayank/quizmasters/internal/quiz"
	"github.com/bits-mayank/quizmasters/internal/storage"
)

// POST /api/quizzes/lookup  { "key": "AB12CD" }
// Resolves the access key and reports the caller's phase without entering.
func LookupQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.Key == "" {
			http.Error(w, "key required", 400)
			return
		}
		view, err := svc.Peek(r.Context(), req.Key, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, view)
	}
}

// POST /api/quizzes/{quizID}/enter
// First entry starts the attempt; re-entry counts against the caller.
func EnterQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		view, err := svc.Enter(r.Context(), quizID, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, view)
	}
}

// PUT /api/quizzes/{quizID}/extra  { "extra": "..." }
func SaveExtraHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Extra string `json:"extra"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		quizID := chi.URLParam(r, "quizID")
		if err := svc.SaveExtra(r.Context(), quizID, auth.SubjectFromContext(r.Context()), req.Extra); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "saved"})
	}
}

// PUT /api/quizzes/{quizID}/answers/{questionID}  { "answer": "..." }
func SaveAnswerHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
		if err != nil {
			http.Error(w, "bad question id", 400)
			return
		}
		var req struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		quizID := chi.URLParam(r, "quizID")
		resp, err := svc.SaveAnswer(r.Context(), quizID, auth.SubjectFromContext(r.Context()), questionID, req.Answer)
		if err != nil {
			httpError(w, err)
			return
		}
		// Grading stays server-side until the attempt ends.
		resp.IsCorrect, resp.Marks = false, 0
		writeJSON(w, resp)
	}
}

// POST /api/quizzes/{quizID}/suspicion
// Client-side proctoring signal (tab switch, visibility change).
func RecordSuspicionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		count, maxed, err := svc.RecordSuspiciousEvent(r.Context(), quizID, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"suspicion_count": count, "max_reached": maxed})
	}
}

// POST /api/quizzes/{quizID}/submit
func SubmitQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		rep, err := svc.Submit(r.Context(), quizID, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, resultPayload(rep))
	}
}

// GET /api/quizzes/{quizID}/result
func ResultHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		rep, err := svc.Result(r.Context(), quizID, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		if !rep.Quiz.ShowResults {
			writeJSON(w, map[string]any{"status": "submitted", "results_withheld": true})
			return
		}
		writeJSON(w, resultPayload(rep))
	}
}

// GET /api/quizzes/{quizID}/result/download
// Streams the caller's own report artifact, exporting it on demand.
func DownloadResultHandler(svc *quiz.Service, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		key, err := svc.ResultArtifact(r.Context(), quizID, auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		rc, err := blobs.Get(key)
		if err != nil {
			http.Error(w, "not found", 404)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment")
		_, _ = io.Copy(w, rc)
	}
}

// GET /api/profile
func ProfileHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		past, current, upcoming, err := svc.Profile(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"past":     emptyIfNil(past),
			"current":  emptyIfNil(current),
			"upcoming": emptyIfNil(upcoming),
		})
	}
}

func emptyIfNil(entries []quiz.ProfileEntry) []quiz.ProfileEntry {
	if entries == nil {
		return []quiz.ProfileEntry{}
	}
	return entries
}

// resultPayload strips the correct answers when the quiz withholds results,
// and never includes question internals beyond what the report shows.
func resultPayload(rep quiz.ResultReport) map[string]any {
	questions := make([]map[string]any, 0, len(rep.Questions))
	byQuestion := make(map[int64]quiz.Response, len(rep.Responses))
	for _, r := range rep.Responses {
		byQuestion[r.QuestionID] = r
	}
	for _, q := range rep.Questions {
		resp := byQuestion[q.ID]
		questions = append(questions, map[string]any{
			"id":         q.ID,
			"title":      q.Title,
			"choices":    q.Choices,
			"correct":    q.Correct,
			"answer":     resp.Answer,
			"is_correct": resp.IsCorrect,
			"marks":      resp.Marks,
			"possible":   q.Marks,
		})
	}
	return map[string]any{
		"quiz":      map[string]any{"id": rep.Quiz.ID, "title": rep.Quiz.Title},
		"attempt":   rep.Attempt,
		"questions": questions,
		"obtained":  rep.Totals.Obtained,
		"possible":  rep.Totals.Possible,
		"passed":    rep.Totals.Passed,
	}
}
