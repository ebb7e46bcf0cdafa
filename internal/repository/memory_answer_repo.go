package repository

import (
	"context"
	"sync"
	"time"

	"screenflow/internal/model"
)

type answerKey struct {
	responseSetID string
	questionID    string
}

type screenKey struct {
	responseSetID string
	screenKey     string
}

// MemoryAnswerRepo is the volatile in-process store. It is keyed exactly like
// the persistent store and keeps the same version semantics.
type MemoryAnswerRepo struct {
	mu       sync.RWMutex
	answers  map[answerKey]model.Answer
	versions map[screenKey]int64
}

// NewMemoryAnswerRepo creates an empty volatile store
func NewMemoryAnswerRepo() *MemoryAnswerRepo {
	return &MemoryAnswerRepo{
		answers:  make(map[answerKey]model.Answer),
		versions: make(map[screenKey]int64),
	}
}

func (r *MemoryAnswerRepo) GetExisting(_ context.Context, responseSetID, questionID string) (*model.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.answers[answerKey{responseSetID, questionID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *MemoryAnswerRepo) Upsert(_ context.Context, responseSetID, questionID string, value model.AnswerValue) (*model.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey{responseSetID, questionID}
	prev := r.answers[key]
	a := model.Answer{
		ResponseSetID: responseSetID,
		QuestionID:    questionID,
		OptionID:      copyString(value.OptionID),
		Text:          copyString(value.Text),
		Number:        copyFloat(value.Number),
		Bool:          copyBool(value.Bool),
		Version:       prev.Version + 1,
		UpdatedAt:     time.Now().UTC(),
	}
	r.answers[key] = a
	return &a, nil
}

func (r *MemoryAnswerRepo) Delete(_ context.Context, responseSetID, questionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.answers, answerKey{responseSetID, questionID})
	return nil
}

func (r *MemoryAnswerRepo) ScreenVersion(_ context.Context, responseSetID, screen string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[screenKey{responseSetID, screen}], nil
}

func (r *MemoryAnswerRepo) BumpScreenVersion(_ context.Context, responseSetID, screen string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := screenKey{responseSetID, screen}
	r.versions[key]++
	return r.versions[key], nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
