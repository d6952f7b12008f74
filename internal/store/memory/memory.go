// Package memory is an in-process implementation of store.Store, used for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

var _ store.Store = (*Store)(nil)

type nicknameKey struct {
	gameID   string
	nickname string
}

type answerKey struct {
	participantID string
	questionID    string
}

type Store struct {
	mu sync.RWMutex

	quizSets     map[string]domain.QuizSet
	questions    map[string][]domain.Question // by quiz set
	games        map[string]domain.Game
	participants map[string]domain.Participant
	nicknames    map[nicknameKey]string
	answers      []domain.Answer
	answered     map[answerKey]struct{}
}

func New() *Store {
	return &Store{
		quizSets:     make(map[string]domain.QuizSet),
		questions:    make(map[string][]domain.Question),
		games:        make(map[string]domain.Game),
		participants: make(map[string]domain.Participant),
		nicknames:    make(map[nicknameKey]string),
		answered:     make(map[answerKey]struct{}),
	}
}

func (s *Store) InsertQuizSet(_ context.Context, qs *domain.QuizSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizSets[qs.QuizSetID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("quiz set %s already exists", qs.QuizSetID))
	}

	questions := make([]domain.Question, len(qs.Questions))
	for i, q := range qs.Questions {
		q.Choices = slices.Clone(q.Choices)
		questions[i] = q
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	head := *qs
	head.Questions = nil
	s.quizSets[qs.QuizSetID] = head
	s.questions[qs.QuizSetID] = questions

	return nil
}

func (s *Store) GetQuizSet(_ context.Context, quizSetID string) (*domain.QuizSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs, ok := s.quizSets[quizSetID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz set not found: %s", quizSetID))
	}

	return &qs, nil
}

func (s *Store) ListQuizSets(_ context.Context) ([]domain.QuizSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QuizSet, 0, len(s.quizSets))
	for _, qs := range s.quizSets {
		out = append(out, qs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.After(out[j].CreateTime)
		}
		return out[i].QuizSetID < out[j].QuizSetID
	})

	return out, nil
}

func (s *Store) ListQuestions(_ context.Context, quizSetID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.quizSets[quizSetID]; !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz set not found: %s", quizSetID))
	}

	src := s.questions[quizSetID]
	out := make([]domain.Question, len(src))
	for i, q := range src {
		q.Choices = slices.Clone(q.Choices)
		out[i] = q
	}

	return out, nil
}

func (s *Store) InsertGame(_ context.Context, g *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizSets[g.QuizSetID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz set not found: %s", g.QuizSetID))
	}

	if _, ok := s.games[g.GameID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("game %s already exists", g.GameID))
	}

	s.games[g.GameID] = *g
	return nil
}

func (s *Store) GetGame(_ context.Context, gameID string) (*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[gameID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("game not found: %s", gameID))
	}

	return &g, nil
}

func (s *Store) UpdateGame(_ context.Context, prev, next domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.games[prev.GameID]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("game not found: %s", prev.GameID))
	}

	if cur.Phase != prev.Phase ||
		cur.CurrentQuestionSequence != prev.CurrentQuestionSequence ||
		cur.IsAnswerRevealed != prev.IsAnswerRevealed {
		return errors.New(errors.CodeAborted, errors.WithMessagef("game %s was changed concurrently", prev.GameID))
	}

	cur.Phase = next.Phase
	cur.CurrentQuestionSequence = next.CurrentQuestionSequence
	cur.IsAnswerRevealed = next.IsAnswerRevealed
	cur.QuestionStartTime = next.QuestionStartTime
	s.games[prev.GameID] = cur

	return nil
}

func (s *Store) ListOpenGames(_ context.Context) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Game
	for _, g := range s.games {
		if g.Phase == domain.PhaseQuiz && !g.IsAnswerRevealed {
			out = append(out, g)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

func (s *Store) InsertParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[p.GameID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("game not found: %s", p.GameID))
	}

	k := nicknameKey{gameID: p.GameID, nickname: p.Nickname}
	if _, ok := s.nicknames[k]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("duplicate nickname %q in game %s", p.Nickname, p.GameID))
	}

	s.nicknames[k] = p.ParticipantID
	s.participants[p.ParticipantID] = *p

	return nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: %s", participantID))
	}

	return &p, nil
}

func (s *Store) ListParticipants(_ context.Context, gameID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.participantsOf(gameID), nil
}

func (s *Store) CountParticipants(_ context.Context, gameID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.participantsOf(gameID)), nil
}

// participantsOf must be called with s.mu held.
func (s *Store) participantsOf(gameID string) []domain.Participant {
	var out []domain.Participant
	for _, p := range s.participants {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.Before(out[j].CreateTime)
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})

	return out
}

func (s *Store) InsertAnswer(_ context.Context, a *domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[a.ParticipantID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: %s", a.ParticipantID))
	}

	k := answerKey{participantID: a.ParticipantID, questionID: a.QuestionID}
	if _, ok := s.answered[k]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("participant %s already answered question %s", a.ParticipantID, a.QuestionID))
	}

	s.answered[k] = struct{}{}
	s.answers = append(s.answers, *a)

	return nil
}

func (s *Store) ListAnswers(_ context.Context, gameID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Answer
	for _, a := range s.answers {
		if a.QuestionID == questionID && s.participants[a.ParticipantID].GameID == gameID {
			out = append(out, a)
		}
	}

	return out, nil
}

func (s *Store) GameResults(_ context.Context, gameID string) ([]domain.LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int)
	for _, a := range s.answers {
		totals[a.ParticipantID] += a.Score
	}

	ps := s.participantsOf(gameID)
	rows := make([]domain.LeaderboardRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, domain.LeaderboardRow{
			ParticipantID: p.ParticipantID,
			Nickname:      p.Nickname,
			TotalScore:    totals[p.ParticipantID],
			JoinTime:      p.CreateTime,
		})
	}

	return rows, nil
}
