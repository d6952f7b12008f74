// Package postgres implements store.Store on top of a pgx pool.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// convertErr maps constraint violations and missing rows to coded errors.
func convertErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("%s not found", msg), errors.WithCause(err))
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("%s already exists", msg), errors.WithCause(err))
		case codeForeignKeyViolation:
			return errors.New(errors.CodeNotFound, errors.WithMessagef("%s references a missing row", msg), errors.WithCause(err))
		}
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func (s *Store) InsertQuizSet(ctx context.Context, qs *domain.QuizSet) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insQuizSetStmt  = `INSERT INTO quiz_sets (id, name, created_at) VALUES ($1, $2, $3);`
		insQuestionStmt = `INSERT INTO questions (id, quiz_set_id, body, image_url, "order") VALUES ($1, $2, $3, NULLIF($4, ''), $5);`
		insChoiceStmt   = `INSERT INTO choices (id, question_id, body, is_correct, position) VALUES ($1, $2, $3, $4, $5);`
	)

	if _, err = tx.Exec(ctx, insQuizSetStmt, qs.QuizSetID, qs.Name, qs.CreateTime); err != nil {
		return convertErr(err, "quiz set %s", qs.QuizSetID)
	}

	var batch pgx.Batch
	for _, q := range qs.Questions {
		batch.Queue(insQuestionStmt, q.QuestionID, qs.QuizSetID, q.Body, q.ImageURL, q.Order)
		for i, c := range q.Choices {
			batch.Queue(insChoiceStmt, c.ChoiceID, q.QuestionID, c.Body, c.IsCorrect, i)
		}
	}

	if err = tx.SendBatch(ctx, &batch).Close(); err != nil {
		return convertErr(err, "questions of quiz set %s", qs.QuizSetID)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetQuizSet(ctx context.Context, quizSetID string) (*domain.QuizSet, error) {
	const stmt = `SELECT id, name, created_at FROM quiz_sets WHERE id = $1;`

	var qs domain.QuizSet
	err := s.db.QueryRow(ctx, stmt, quizSetID).Scan(&qs.QuizSetID, &qs.Name, &qs.CreateTime)
	if err != nil {
		return nil, convertErr(err, "quiz set %s", quizSetID)
	}

	return &qs, nil
}

func (s *Store) ListQuizSets(ctx context.Context) ([]domain.QuizSet, error) {
	const stmt = `SELECT id, name, created_at FROM quiz_sets ORDER BY created_at DESC, id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list quiz sets: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuizSet, error) {
		var qs domain.QuizSet
		err := r.Scan(&qs.QuizSetID, &qs.Name, &qs.CreateTime)
		return qs, err
	})
}

func (s *Store) ListQuestions(ctx context.Context, quizSetID string) ([]domain.Question, error) {
	if _, err := s.GetQuizSet(ctx, quizSetID); err != nil {
		return nil, err
	}

	const (
		questionsStmt = `
SELECT id, quiz_set_id, body, COALESCE(image_url, ''), "order"
FROM questions
WHERE quiz_set_id = $1
ORDER BY "order";`

		choicesStmt = `
SELECT c.id, c.question_id, c.body, c.is_correct
FROM choices c
JOIN questions q ON q.id = c.question_id
WHERE q.quiz_set_id = $1
ORDER BY q."order", c.position, c.id;`
	)

	rows, err := s.db.Query(ctx, questionsStmt, quizSetID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := r.Scan(&q.QuestionID, &q.QuizSetID, &q.Body, &q.ImageURL, &q.Order)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	rows, err = s.db.Query(ctx, choicesStmt, quizSetID)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}

	choices, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Choice, error) {
		var c domain.Choice
		err := r.Scan(&c.ChoiceID, &c.QuestionID, &c.Body, &c.IsCorrect)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect choices: %w", err)
	}

	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.QuestionID] = i
	}
	for _, c := range choices {
		i := index[c.QuestionID]
		questions[i].Choices = append(questions[i].Choices, c)
	}

	return questions, nil
}

const gameColumns = `id, quiz_set_id, phase, current_question_sequence, is_answer_revealed, question_started_at, created_at`

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		g       domain.Game
		phase   string
		started *time.Time
	)

	err := row.Scan(&g.GameID, &g.QuizSetID, &phase, &g.CurrentQuestionSequence, &g.IsAnswerRevealed, &started, &g.CreateTime)
	g.Phase = domain.Phase(phase)
	if started != nil {
		g.QuestionStartTime = *started
	}

	return g, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func (s *Store) InsertGame(ctx context.Context, g *domain.Game) error {
	const stmt = `
INSERT INTO games (id, quiz_set_id, phase, current_question_sequence, is_answer_revealed, question_started_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.db.Exec(ctx, stmt, g.GameID, g.QuizSetID, string(g.Phase), g.CurrentQuestionSequence, g.IsAnswerRevealed, nullTime(g.QuestionStartTime), g.CreateTime)
	return convertErr(err, "game %s", g.GameID)
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	g, err := scanGame(s.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1;`, gameID))
	if err != nil {
		return nil, convertErr(err, "game %s", gameID)
	}

	return &g, nil
}

func (s *Store) UpdateGame(ctx context.Context, prev, next domain.Game) error {
	const stmt = `
UPDATE games
SET phase = $2, current_question_sequence = $3, is_answer_revealed = $4, question_started_at = $5
WHERE id = $1 AND phase = $6 AND current_question_sequence = $7 AND is_answer_revealed = $8;`

	tag, err := s.db.Exec(ctx, stmt,
		prev.GameID,
		string(next.Phase), next.CurrentQuestionSequence, next.IsAnswerRevealed, nullTime(next.QuestionStartTime),
		string(prev.Phase), prev.CurrentQuestionSequence, prev.IsAnswerRevealed,
	)
	if err != nil {
		return fmt.Errorf("update game %s: %w", prev.GameID, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetGame(ctx, prev.GameID); err != nil {
		return err
	}

	return errors.New(errors.CodeAborted, errors.WithMessagef("game %s was changed concurrently", prev.GameID))
}

func (s *Store) ListOpenGames(ctx context.Context) ([]domain.Game, error) {
	stmt := `SELECT ` + gameColumns + ` FROM games WHERE phase = $1 AND NOT is_answer_revealed ORDER BY id;`

	rows, err := s.db.Query(ctx, stmt, string(domain.PhaseQuiz))
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Game, error) {
		return scanGame(r)
	})
}

func (s *Store) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	const stmt = `INSERT INTO participants (id, game_id, nickname, created_at) VALUES ($1, $2, $3, $4);`

	_, err := s.db.Exec(ctx, stmt, p.ParticipantID, p.GameID, p.Nickname, p.CreateTime)
	return convertErr(err, "participant %q in game %s", p.Nickname, p.GameID)
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error) {
	const stmt = `SELECT id, game_id, nickname, created_at FROM participants WHERE id = $1;`

	var p domain.Participant
	err := s.db.QueryRow(ctx, stmt, participantID).Scan(&p.ParticipantID, &p.GameID, &p.Nickname, &p.CreateTime)
	if err != nil {
		return nil, convertErr(err, "participant %s", participantID)
	}

	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error) {
	const stmt = `
SELECT id, game_id, nickname, created_at
FROM participants
WHERE game_id = $1
ORDER BY created_at, id;`

	rows, err := s.db.Query(ctx, stmt, gameID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Participant, error) {
		var p domain.Participant
		err := r.Scan(&p.ParticipantID, &p.GameID, &p.Nickname, &p.CreateTime)
		return p, err
	})
}

func (s *Store) CountParticipants(ctx context.Context, gameID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE game_id = $1;`, gameID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}

	return n, nil
}

func (s *Store) InsertAnswer(ctx context.Context, a *domain.Answer) error {
	const stmt = `
INSERT INTO answers (id, participant_id, question_id, choice_id, score, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := s.db.Exec(ctx, stmt, a.AnswerID, a.ParticipantID, a.QuestionID, a.ChoiceID, a.Score, a.CreateTime)
	return convertErr(err, "answer of participant %s to question %s", a.ParticipantID, a.QuestionID)
}

func (s *Store) ListAnswers(ctx context.Context, gameID, questionID string) ([]domain.Answer, error) {
	const stmt = `
SELECT a.id, a.participant_id, a.question_id, a.choice_id, a.score, a.created_at
FROM answers a
JOIN participants p ON p.id = a.participant_id
WHERE p.game_id = $1 AND a.question_id = $2
ORDER BY a.created_at, a.id;`

	rows, err := s.db.Query(ctx, stmt, gameID, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		err := r.Scan(&a.AnswerID, &a.ParticipantID, &a.QuestionID, &a.ChoiceID, &a.Score, &a.CreateTime)
		return a, err
	})
}

func (s *Store) GameResults(ctx context.Context, gameID string) ([]domain.LeaderboardRow, error) {
	const stmt = `
SELECT participant_id, nickname, total_score, created_at
FROM game_results
WHERE game_id = $1
ORDER BY total_score DESC, created_at, participant_id;`

	rows, err := s.db.Query(ctx, stmt, gameID)
	if err != nil {
		return nil, fmt.Errorf("game results: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardRow, error) {
		var row domain.LeaderboardRow
		err := r.Scan(&row.ParticipantID, &row.Nickname, &row.TotalScore, &row.JoinTime)
		return row, err
	})
}
