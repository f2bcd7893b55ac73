package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bits-mayank/quizmasters/internal/quiz"
)

// POST /api/admin/bank
// Accepts either multipart file= (CSV) or a raw JSON array in the body.
func ImportBankHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entries []quiz.BankQuestion
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", 400)
				return
			}
			defer f.Close()
			entries, err = parseBankCSV(f)
			if err != nil {
				http.Error(w, "bad csv: "+err.Error(), 400)
				return
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
				http.Error(w, "expected JSON array or multipart file", 400)
				return
			}
		}
		for i := range entries {
			if len(entries[i].Choices) < 2 || len(entries[i].Choices) > 5 {
				http.Error(w, "each question needs 2 to 5 choices", 400)
				return
			}
			if entries[i].Marks <= 0 {
				entries[i].Marks = 1
			}
		}
		n, err := store.AddBankQuestions(r.Context(), entries)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]int{"imported": n})
	}
}

// GET /api/admin/bank?tag=...&level=...
func ListBankHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListBankQuestions(r.Context(),
			r.URL.Query().Get("tag"), r.URL.Query().Get("level"))
		if err != nil {
			httpError(w, err)
			return
		}
		if list == nil {
			list = []quiz.BankQuestion{}
		}
		writeJSON(w, list)
	}
}

// POST /api/admin/quizzes/{quizID}/bank-clone  { "ids": [1,2,3] }
// Copies bank entries into the quiz as fresh questions; the bank rows are
// untouched and tag/level stay behind in the bank.
func CloneBankHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if len(req.IDs) == 0 {
			http.Error(w, "ids required", 400)
			return
		}
		quizID := chi.URLParam(r, "quizID")
		if _, err := store.GetQuiz(r.Context(), quizID); err != nil {
			httpError(w, err)
			return
		}
		entries, err := store.GetBankQuestions(r.Context(), req.IDs)
		if err != nil {
			httpError(w, err)
			return
		}
		questions := make([]quiz.Question, 0, len(entries))
		for _, e := range entries {
			questions = append(questions, e.ToQuestion(quizID))
		}
		n, err := store.AddQuestions(r.Context(), quizID, questions)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]int{"cloned": n})
	}
}

func parseBankCSV(r io.Reader) ([]quiz.BankQuestion, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"title", "choice_1", "choice_2", "correct"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var entries []quiz.BankQuestion
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		e := quiz.BankQuestion{
			Title:   field(rec, "title"),
			Correct: field(rec, "correct"),
			Tag:     field(rec, "tag"),
			Level:   field(rec, "level"),
			Marks:   1,
		}
		for _, c := range []string{"choice_1", "choice_2", "choice_3", "choice_4", "choice_5"} {
			if v := field(rec, c); v != "" {
				e.Choices = append(e.Choices, v)
			}
		}
		if v := field(rec, "marks"); v != "" {
			if m, err := strconv.Atoi(v); err == nil && m > 0 {
				e.Marks = m
			}
		}
		if v := field(rec, "shuffle"); v == "1" || strings.EqualFold(v, "true") {
			e.Shuffle = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}
