package repository

import (
	"context"
	"sort"
	"sync"

	"screenflow/internal/model"
)

// MemoryQuestionRepo serves a questionnaire loaded from a file
type MemoryQuestionRepo struct {
	mu       sync.RWMutex
	byID     map[string]model.Question
	byScreen map[string][]string
}

// NewMemoryQuestionRepo indexes questions by id and screen
func NewMemoryQuestionRepo(questions []model.Question) *MemoryQuestionRepo {
	r := &MemoryQuestionRepo{
		byID:     make(map[string]model.Question),
		byScreen: make(map[string][]string),
	}
	for i := range questions {
		_ = r.Upsert(context.Background(), &questions[i])
	}
	return r
}

func (r *MemoryQuestionRepo) ListQuestionsForScreen(_ context.Context, screenKey string) ([]model.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byScreen[screenKey]
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *MemoryQuestionRepo) GetVisibilityRulesForScreen(ctx context.Context, screenKey string) (map[string]model.VisibilityRule, error) {
	questions, _ := r.ListQuestionsForScreen(ctx, screenKey)
	return rulesFor(questions), nil
}

func (r *MemoryQuestionRepo) GetQuestion(_ context.Context, questionID string) (*model.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.byID[questionID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *MemoryQuestionRepo) GetScreenKeyFor(ctx context.Context, questionID string) (string, error) {
	q, _ := r.GetQuestion(ctx, questionID)
	if q == nil {
		return "", nil
	}
	return q.ScreenKey, nil
}

func (r *MemoryQuestionRepo) GetAnswerKindFor(ctx context.Context, questionID string) (model.AnswerKind, error) {
	q, _ := r.GetQuestion(ctx, questionID)
	if q == nil {
		return "", nil
	}
	return q.Kind, nil
}

func (r *MemoryQuestionRepo) Upsert(_ context.Context, question *model.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byID[question.ID]; ok {
		r.removeFromScreen(prev.ScreenKey, prev.ID)
	}
	r.byID[question.ID] = *question
	ids := append(r.byScreen[question.ScreenKey], question.ID)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := r.byID[ids[i]], r.byID[ids[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	r.byScreen[question.ScreenKey] = ids
	return nil
}

func (r *MemoryQuestionRepo) DeleteScreen(_ context.Context, screenKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byScreen[screenKey] {
		delete(r.byID, id)
	}
	delete(r.byScreen, screenKey)
	return nil
}

func (r *MemoryQuestionRepo) removeFromScreen(screen, id string) {
	ids := r.byScreen[screen]
	for i, v := range ids {
		if v == id {
			r.byScreen[screen] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}
