package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	auth "github.com/bits-mayank/quizmasters/internal/auth/middleware"
	"github.com/bits-mayank/quizmasters/internal/quiz"
	"github.com/bits-mayank/quizmasters/internal/rbac"
	"github.com/bits-mayank/quizmasters/internal/storage"
)

type quizPayload struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Instructions string            `json:"instructions"`
	AccessKey    string            `json:"access_key"`
	ExtraLabel   string            `json:"extra_label"`
	StartAt      time.Time         `json:"start_at"`
	EndAt        time.Time         `json:"end_at"`
	DurationMin  int               `json:"duration_min"`
	Shuffle      bool              `json:"shuffle"`
	AllowBack    bool              `json:"allow_backtracking"`
	Proctored    bool              `json:"proctored"`
	ShowResults  bool              `json:"show_results"`
	MaxSuspicion int               `json:"max_suspicion"`
	Questions    []questionPayload `json:"questions"`
}

type questionPayload struct {
	Title   string   `json:"title"`
	Choices []string `json:"choices"`
	Correct string   `json:"correct"`
	Marks   int      `json:"marks"`
	Shuffle bool     `json:"shuffle"`
}

func (p questionPayload) toQuestion(quizID string) quiz.Question {
	marks := p.Marks
	if marks <= 0 {
		marks = 1
	}
	return quiz.Question{
		QuizID:  quizID,
		Title:   p.Title,
		Choices: p.Choices,
		Correct: p.Correct,
		Marks:   marks,
		Shuffle: p.Shuffle,
	}
}

// POST /api/admin/quizzes
func CreateQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.Title == "" || req.DurationMin <= 0 || !req.EndAt.After(req.StartAt) {
			http.Error(w, "title, duration_min and a valid window required", 400)
			return
		}
		key := quiz.NormalizeKey(req.AccessKey)
		if key == "" {
			key = quiz.RandomKey()
		} else if len(key) < 6 || len(key) > 8 {
			http.Error(w, "access_key must be 6 to 8 characters", 400)
			return
		}
		q := quiz.Quiz{
			ID:            uuid.NewString(),
			Title:         req.Title,
			Description:   req.Description,
			Instructions:  req.Instructions,
			AccessKey:     key,
			ExtraLabel:    req.ExtraLabel,
			StartAt:       req.StartAt,
			EndAt:         req.EndAt,
			DurationMin:   req.DurationMin,
			Shuffle:       req.Shuffle,
			AllowBack:     req.AllowBack,
			Proctored:     req.Proctored,
			ShowResults:   req.ShowResults,
			MaxSuspicion:  req.MaxSuspicion,
			InvigilatorID: auth.SubjectFromContext(r.Context()),
		}
		questions := make([]quiz.Question, 0, len(req.Questions))
		for _, qp := range req.Questions {
			if len(qp.Choices) < 2 || len(qp.Choices) > 5 {
				http.Error(w, "each question needs 2 to 5 choices", 400)
				return
			}
			questions = append(questions, qp.toQuestion(q.ID))
		}
		if err := store.PutQuiz(r.Context(), q, questions); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, q)
	}
}

// GET /api/admin/quizzes
// Staff see their own quizzes; admin sees everything.
func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invigilator := auth.SubjectFromContext(r.Context())
		if rbac.RoleFromContext(r.Context()) == "admin" {
			invigilator = ""
		}
		list, err := store.ListQuizzes(r.Context(), invigilator)
		if err != nil {
			httpError(w, err)
			return
		}
		if list == nil {
			list = []quiz.Quiz{}
		}
		writeJSON(w, list)
	}
}

// GET /api/admin/quizzes/{quizID}
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			httpError(w, err)
			return
		}
		questions, err := store.ListQuestions(r.Context(), q.ID)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"quiz": q, "questions": questions})
	}
}

// POST /api/admin/quizzes/{quizID}/questions
func AddQuestionsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		if _, err := store.GetQuiz(r.Context(), quizID); err != nil {
			httpError(w, err)
			return
		}
		var req []questionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		questions := make([]quiz.Question, 0, len(req))
		for _, qp := range req {
			if len(qp.Choices) < 2 || len(qp.Choices) > 5 {
				http.Error(w, "each question needs 2 to 5 choices", 400)
				return
			}
			questions = append(questions, qp.toQuestion(quizID))
		}
		n, err := store.AddQuestions(r.Context(), quizID, questions)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]int{"added": n})
	}
}

// POST /api/admin/quizzes/{quizID}/assign  { "user_ids": [...] }
// Re-assigning an already assigned user is a no-op, not an error.
func AssignAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserIDs []string `json:"user_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		quizID := chi.URLParam(r, "quizID")
		if _, err := store.GetQuiz(r.Context(), quizID); err != nil {
			httpError(w, err)
			return
		}
		created, err := store.AssignAttempts(r.Context(), quizID, req.UserIDs)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]int{"assigned": created, "skipped": len(req.UserIDs) - created})
	}
}

// GET /api/admin/quizzes/{quizID}/attempts
func ListQuizAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListQuizAttempts(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			httpError(w, err)
			return
		}
		if list == nil {
			list = []quiz.Attempt{}
		}
		writeJSON(w, list)
	}
}

// GET /api/admin/quizzes/{quizID}/report
func QuizReportHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Report(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, rep)
	}
}

// GET /api/admin/artifacts/*
// Streams a stored result artifact (reports/<quiz>/attempt-<id>.csv).
func ArtifactHandler(blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
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
