package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store over database/sql. It works against both the
// sqlite and postgres schemas in internal/db; all uniqueness and conflict
// semantics are enforced by the schema's constraints, not by app locking.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const quizCols = `id,title,description,instructions,access_key,extra_label,start_at,end_at,duration_min,shuffle,allow_backtracking,proctored,show_results,max_suspicion,invigilator_id,created_at`

func scanQuiz(row interface{ Scan(...any) error }) (Quiz, error) {
	var (
		q                          Quiz
		startAt, endAt, createdAt  int64
		shuffle, back, proct, show int
	)
	err := row.Scan(&q.ID, &q.Title, &q.Description, &q.Instructions, &q.AccessKey, &q.ExtraLabel,
		&startAt, &endAt, &q.DurationMin, &shuffle, &back, &proct, &show, &q.MaxSuspicion,
		&q.InvigilatorID, &createdAt)
	if err != nil {
		return Quiz{}, err
	}
	q.StartAt = time.Unix(startAt, 0).UTC()
	q.EndAt = time.Unix(endAt, 0).UTC()
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	q.Shuffle = shuffle != 0
	q.AllowBack = back != 0
	q.Proctored = proct != 0
	q.ShowResults = show != 0
	return q, nil
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz, questions []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO quizzes (`+quizCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description,
		  instructions=EXCLUDED.instructions, access_key=EXCLUDED.access_key,
		  extra_label=EXCLUDED.extra_label, start_at=EXCLUDED.start_at,
		  end_at=EXCLUDED.end_at, duration_min=EXCLUDED.duration_min,
		  shuffle=EXCLUDED.shuffle, allow_backtracking=EXCLUDED.allow_backtracking,
		  proctored=EXCLUDED.proctored, show_results=EXCLUDED.show_results,
		  max_suspicion=EXCLUDED.max_suspicion`,
		q.ID, q.Title, q.Description, q.Instructions, NormalizeKey(q.AccessKey), q.ExtraLabel,
		q.StartAt.Unix(), q.EndAt.Unix(), q.DurationMin,
		b2i(q.Shuffle), b2i(q.AllowBack), b2i(q.Proctored), b2i(q.ShowResults),
		q.MaxSuspicion, q.InvigilatorID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put quiz: %w", err)
	}
	if err := insertQuestions(ctx, tx, q.ID, questions); err != nil {
		return err
	}
	return tx.Commit()
}

func insertQuestions(ctx context.Context, tx *sql.Tx, quizID string, questions []Question) error {
	for _, qu := range questions {
		c := padChoices(qu.Choices)
		_, err := tx.ExecContext(ctx, `INSERT INTO questions
			(quiz_id,title,choice_1,choice_2,choice_3,choice_4,choice_5,correct,marks,shuffle,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			quizID, qu.Title, c[0], c[1], c[2], c[3], c[4], qu.Correct, qu.Marks, b2i(qu.Shuffle), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) AddQuestions(ctx context.Context, quizID string, questions []Question) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := insertQuestions(ctx, tx, quizID, questions); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(questions), nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) GetQuizByKey(ctx context.Context, key string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx,
		`SELECT `+quizCols+` FROM quizzes WHERE access_key=$1`, NormalizeKey(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context, invigilatorID string) ([]Quiz, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if invigilatorID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+quizCols+` FROM quizzes ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+quizCols+` FROM quizzes WHERE invigilator_id=$1 ORDER BY created_at`, invigilatorID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListQuestions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,quiz_id,title,choice_1,choice_2,choice_3,choice_4,choice_5,correct,marks,shuffle,created_at
		FROM questions WHERE quiz_id=$1 ORDER BY id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuestion(rows *sql.Rows) (Question, error) {
	var (
		q          Question
		c1, c2     string
		c3, c4, c5 sql.NullString
		shuffle    int
		createdAt  int64
	)
	if err := rows.Scan(&q.ID, &q.QuizID, &q.Title, &c1, &c2, &c3, &c4, &c5, &q.Correct, &q.Marks, &shuffle, &createdAt); err != nil {
		return Question{}, err
	}
	q.Choices = []string{c1, c2}
	for _, c := range []sql.NullString{c3, c4, c5} {
		if c.Valid && c.String != "" {
			q.Choices = append(q.Choices, c.String)
		}
	}
	q.Shuffle = shuffle != 0
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	return q, nil
}

func padChoices(choices []string) [5]any {
	var out [5]any
	for i := 0; i < 5; i++ {
		if i < len(choices) && choices[i] != "" {
			out[i] = choices[i]
		} else if i < 2 {
			out[i] = "" // first two choices are mandatory, never NULL
		}
	}
	return out
}

// ---- attempts ----

const attemptCols = `id,quiz_id,user_id,extra,started_at,completed_at,suspicion_count`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var (
		a                  Attempt
		started, completed sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Extra, &started, &completed, &a.SuspicionCount); err != nil {
		return Attempt{}, err
	}
	if started.Valid {
		t := time.Unix(started.Int64, 0).UTC()
		a.Started = &t
	}
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		a.Completed = &t
	}
	return a, nil
}

// AssignAttempts creates one attempt per user, skipping pairs that already
// exist. Duplicate assignment is a no-op per row, not an error.
func (s *SQLStore) AssignAttempts(ctx context.Context, quizID string, userIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	created := 0
	for _, uid := range userIDs {
		res, err := tx.ExecContext(ctx, `INSERT INTO attempts (quiz_id,user_id)
			VALUES ($1,$2) ON CONFLICT (quiz_id,user_id) DO NOTHING`, quizID, uid)
		if err != nil {
			return created, fmt.Errorf("assign %s: %w", uid, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	if err := tx.Commit(); err != nil {
		return created, err
	}
	return created, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, quizID, userID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE quiz_id=$1 AND user_id=$2`, quizID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) GetAttemptByID(ctx context.Context, id int64) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) listAttempts(ctx context.Context, where string, arg any) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListQuizAttempts(ctx context.Context, quizID string) ([]Attempt, error) {
	return s.listAttempts(ctx, `quiz_id=$1`, quizID)
}

func (s *SQLStore) ListUserAttempts(ctx context.Context, userID string) ([]Attempt, error) {
	return s.listAttempts(ctx, `user_id=$1`, userID)
}

func (s *SQLStore) SetExtra(ctx context.Context, attemptID int64, extra string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET extra=$1 WHERE id=$2`, extra, attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// StartAttempt is first-writer-wins: the started instant is written at most
// once, concurrent first entries resolve through the IS NULL guard.
func (s *SQLStore) StartAttempt(ctx context.Context, attemptID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET started_at=$1 WHERE id=$2 AND started_at IS NULL`,
		now.Unix(), attemptID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteAttempt sets the completed instant once. Callers racing on lazy
// expiry pass the same computed instant, so losing the race converges to an
// identical row. The returned bool is the single trigger for submit side
// effects.
func (s *SQLStore) CompleteAttempt(ctx context.Context, attemptID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET completed_at=$1 WHERE id=$2 AND completed_at IS NULL`,
		at.Unix(), attemptID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IncrementSuspicion is a storage-level atomic increment; concurrent calls
// never lose updates. No upper clamp.
func (s *SQLStore) IncrementSuspicion(ctx context.Context, attemptID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE attempts SET suspicion_count = suspicion_count + 1 WHERE id=$1 RETURNING suspicion_count`,
		attemptID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

// ---- responses ----

func (s *SQLStore) MaterializeResponses(ctx context.Context, attemptID int64, questionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for ord, qid := range questionIDs {
		_, err := tx.ExecContext(ctx, `INSERT INTO responses (attempt_id,question_id,answer,ord)
			VALUES ($1,$2,'',$3) ON CONFLICT (attempt_id,question_id) DO NOTHING`,
			attemptID, qid, ord)
		if err != nil {
			return fmt.Errorf("materialize response for question %d: %w", qid, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, attemptID, questionID int64, answer string, isCorrect bool, marks int) (Response, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE responses SET answer=$1, is_correct=$2, marks=$3 WHERE attempt_id=$4 AND question_id=$5`,
		answer, b2i(isCorrect), marks, attemptID, questionID)
	if err != nil {
		return Response{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Response{}, ErrNotFound
	}
	return s.getResponse(ctx, attemptID, questionID)
}

func (s *SQLStore) getResponse(ctx context.Context, attemptID, questionID int64) (Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx,
		`SELECT id,attempt_id,question_id,answer,is_correct,marks,ord
		 FROM responses WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, ErrNotFound
	}
	return r, err
}

func scanResponse(row interface{ Scan(...any) error }) (Response, error) {
	var (
		r       Response
		correct int
	)
	if err := row.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &r.Answer, &correct, &r.Marks, &r.Ord); err != nil {
		return Response{}, err
	}
	r.IsCorrect = correct != 0
	return r, nil
}

func (s *SQLStore) listResponses(ctx context.Context, attemptID int64, order string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,attempt_id,question_id,answer,is_correct,marks,ord
		 FROM responses WHERE attempt_id=$1 ORDER BY `+order, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListResponses(ctx context.Context, attemptID int64) ([]Response, error) {
	return s.listResponses(ctx, attemptID, `question_id`)
}

func (s *SQLStore) ListResponsesDisplay(ctx context.Context, attemptID int64) ([]Response, error) {
	return s.listResponses(ctx, attemptID, `ord, question_id`)
}

// ---- question bank ----

func (s *SQLStore) AddBankQuestions(ctx context.Context, entries []BankQuestion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, e := range entries {
		c := padChoices(e.Choices)
		_, err := tx.ExecContext(ctx, `INSERT INTO question_bank
			(title,choice_1,choice_2,choice_3,choice_4,choice_5,correct,marks,shuffle,tag,level,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			e.Title, c[0], c[1], c[2], c[3], c[4], e.Correct, e.Marks, b2i(e.Shuffle), e.Tag, e.Level, time.Now().Unix())
		if err != nil {
			return 0, fmt.Errorf("insert bank question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *SQLStore) ListBankQuestions(ctx context.Context, tag, level string) ([]BankQuestion, error) {
	q := `SELECT id,title,choice_1,choice_2,choice_3,choice_4,choice_5,correct,marks,shuffle,tag,level,created_at
		FROM question_bank WHERE ($1='' OR tag=$1) AND ($2='' OR level=$2) ORDER BY created_at, tag, level`
	rows, err := s.db.QueryContext(ctx, q, tag, level)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBank(rows)
}

func (s *SQLStore) GetBankQuestions(ctx context.Context, ids []int64) ([]BankQuestion, error) {
	// Per-id lookups keep the query portable across both drivers; bank
	// clone batches are admin-sized.
	out := make([]BankQuestion, 0, len(ids))
	for _, id := range ids {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id,title,choice_1,choice_2,choice_3,choice_4,choice_5,correct,marks,shuffle,tag,level,created_at
			 FROM question_bank WHERE id=$1`, id)
		if err != nil {
			return nil, err
		}
		got, err := collectBank(rows)
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			return nil, fmt.Errorf("bank question %d: %w", id, ErrNotFound)
		}
		out = append(out, got[0])
	}
	return out, nil
}

func collectBank(rows *sql.Rows) ([]BankQuestion, error) {
	defer rows.Close()
	var out []BankQuestion
	for rows.Next() {
		var (
			e          BankQuestion
			c1, c2     string
			c3, c4, c5 sql.NullString
			shuffle    int
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &c1, &c2, &c3, &c4, &c5, &e.Correct, &e.Marks, &shuffle, &e.Tag, &e.Level, &createdAt); err != nil {
			return nil, err
		}
		e.Choices = []string{c1, c2}
		for _, c := range []sql.NullString{c3, c4, c5} {
			if c.Valid && c.String != "" {
				e.Choices = append(e.Choices, c.String)
			}
		}
		e.Shuffle = shuffle != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
