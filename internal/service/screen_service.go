package service

import (
	"context"
	"time"

	"screenflow/internal/apierr"
	"screenflow/internal/logger"
	"screenflow/internal/metrics"
	"screenflow/internal/model"
	"screenflow/internal/repository"
	"screenflow/internal/visibility"
)

// DefaultHydrationAttempts bounds the read-your-writes re-probes per parent
const DefaultHydrationAttempts = 3

// ScreenImage is one assembled screen plus the data a write needs to diff it
type ScreenImage struct {
	View         model.ScreenView
	VisibleIDs   []string // sorted
	ParentValues map[string]string
	Answered     map[string]bool // visible questions that hold a stored answer
	Rules        map[string]model.VisibilityRule
}

// ScreenAssembler builds screen views. It never writes.
type ScreenAssembler struct {
	catalog  repository.QuestionCatalog
	store    repository.AnswerStore
	etags    *ETagCalculator
	log      *logger.Logger
	attempts int
}

// NewScreenAssembler creates a new screen assembler
func NewScreenAssembler(catalog repository.QuestionCatalog, store repository.AnswerStore, etags *ETagCalculator, log *logger.Logger, hydrationAttempts int) *ScreenAssembler {
	if hydrationAttempts < 1 {
		hydrationAttempts = DefaultHydrationAttempts
	}
	return &ScreenAssembler{
		catalog:  catalog,
		store:    store,
		etags:    etags,
		log:      log.With("component", "screen_assembler"),
		attempts: hydrationAttempts,
	}
}

// Assemble evaluates visibility for the screen, hydrates answers and computes the etag.
// Answer store failures degrade to "no answer"; only catalog failures are returned.
func (a *ScreenAssembler) Assemble(ctx context.Context, responseSetID, screenKey string) (*ScreenImage, error) {
	start := time.Now()
	defer func() { metrics.AssemblyDuration.Observe(time.Since(start).Seconds()) }()

	questions, err := a.catalog.ListQuestionsForScreen(ctx, screenKey)
	if err != nil {
		return nil, apierr.Repository(err)
	}
	if len(questions) == 0 {
		return nil, apierr.NotFound(apierr.CodeScreenNotFound, "Screen not found").
			WithDetail("screen %q has no questions", screenKey)
	}
	rules, err := a.catalog.GetVisibilityRulesForScreen(ctx, screenKey)
	if err != nil {
		return nil, apierr.Repository(err)
	}

	parentIDs := visibility.ParentIDs(rules)
	parents := make(map[string]string, len(parentIDs))
	a.hydrate(ctx, responseSetID, parentIDs, parents, a.attempts)

	visible := visibility.ComputeVisibleSet(rules, parents)
	list, answered := a.build(ctx, responseSetID, questions, visible)

	// A write earlier in this request may only now be readable.
	a.hydrate(ctx, responseSetID, parentIDs, parents, 1)
	if final := visibility.ComputeVisibleSet(rules, parents); !sameSet(final, visible) {
		visible = final
		list, answered = a.build(ctx, responseSetID, questions, visible)
	}

	ids := visibility.SortedIDs(visible)
	return &ScreenImage{
		View: model.ScreenView{
			ScreenKey: screenKey,
			Questions: list,
			ETag:      a.etags.Compute(ctx, responseSetID, screenKey, ids),
		},
		VisibleIDs:   ids,
		ParentValues: parents,
		Answered:     answered,
		Rules:        rules,
	}, nil
}

// hydrate probes each parent up to attempts times, stopping at the first known value.
func (a *ScreenAssembler) hydrate(ctx context.Context, responseSetID string, parentIDs []string, snapshot map[string]string, attempts int) {
	for _, pid := range parentIDs {
		for i := 0; i < attempts; i++ {
			v, ok := a.probe(ctx, responseSetID, pid)
			observe(snapshot, pid, v, ok)
			if ok {
				break
			}
		}
	}
}

// observe records a probe. Known -> unknown is rejected; null -> known and
// known -> different known are accepted.
func observe(snapshot map[string]string, id, value string, known bool) {
	if !known {
		return
	}
	snapshot[id] = value
}

func (a *ScreenAssembler) probe(ctx context.Context, responseSetID, questionID string) (string, bool) {
	ans, err := a.store.GetExisting(ctx, responseSetID, questionID)
	if err != nil {
		a.log.Debug("parent read failed", "response_set_id", responseSetID, "question_id", questionID, "error", err)
		return "", false
	}
	return visibility.CanonicalizeAnswer(ans)
}

func (a *ScreenAssembler) build(ctx context.Context, responseSetID string, questions []model.Question, visible map[string]bool) ([]model.ScreenQuestion, map[string]bool) {
	list := make([]model.ScreenQuestion, 0, len(visible))
	answered := make(map[string]bool, len(visible))
	for _, q := range questions {
		if !visible[q.ID] {
			continue
		}
		sq := model.ScreenQuestion{
			QuestionID: q.ID,
			Kind:       q.Kind,
			Prompt:     q.Prompt,
			Mandatory:  q.Mandatory,
			Options:    q.Options,
		}
		ans, err := a.store.GetExisting(ctx, responseSetID, q.ID)
		if err != nil {
			a.log.Warn("answer hydration failed", "response_set_id", responseSetID, "question_id", q.ID, "error", err)
		} else if ans.HasValue() {
			sq.Answer = ans.View()
			answered[q.ID] = true
		}
		list = append(list, sq)
	}
	return list, answered
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
