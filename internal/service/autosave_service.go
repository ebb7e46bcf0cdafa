package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"

	"screenflow/internal/apierr"
	"screenflow/internal/cache"
	"screenflow/internal/logger"
	"screenflow/internal/metrics"
	"screenflow/internal/model"
	"screenflow/internal/repository"
	"screenflow/internal/visibility"
)

// AutosaveService runs the per-answer write protocol: precondition, replay,
// validation, write, re-assembly and visibility delta.
type AutosaveService struct {
	catalog      repository.QuestionCatalog
	store        repository.AnswerStore
	screens      *ScreenAssembler
	replays      cache.ReplayCache
	responseSets *ResponseSetService
	broadcaster  Broadcaster
	log          *logger.Logger
}

// NewAutosaveService creates a new autosave service
func NewAutosaveService(
	catalog repository.QuestionCatalog,
	store repository.AnswerStore,
	screens *ScreenAssembler,
	replays cache.ReplayCache,
	responseSets *ResponseSetService,
	log *logger.Logger,
) *AutosaveService {
	return &AutosaveService{
		catalog:      catalog,
		store:        store,
		screens:      screens,
		replays:      replays,
		responseSets: responseSets,
		log:          log.With("component", "autosave"),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *AutosaveService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// GetScreen assembles a screen for a known response set
func (s *AutosaveService) GetScreen(ctx context.Context, responseSetID, screenKey string) (*model.ScreenView, error) {
	if !s.responseSets.Exists(ctx, responseSetID) {
		return nil, responseSetNotFound(responseSetID)
	}
	img, err := s.screens.Assemble(ctx, responseSetID, screenKey)
	if err != nil {
		return nil, err
	}
	return &img.View, nil
}

// SaveAnswer writes one answer guarded by If-Match
func (s *AutosaveService) SaveAnswer(ctx context.Context, responseSetID, questionID, ifMatch string, patch *model.AnswerPatch) (*model.SaveResult, error) {
	if !s.responseSets.Exists(ctx, responseSetID) {
		return nil, responseSetNotFound(responseSetID)
	}
	return s.save(ctx, responseSetID, questionID, ifMatch, patch, precondition{code: apierr.CodeIfMatchMismatch})
}

// ClearAnswer removes one answer guarded by If-Match
func (s *AutosaveService) ClearAnswer(ctx context.Context, responseSetID, questionID, ifMatch string) (*model.SaveResult, error) {
	return s.SaveAnswer(ctx, responseSetID, questionID, ifMatch, &model.AnswerPatch{Clear: true})
}

// SaveBatch applies items in order. Every item is checked against the etag its
// screen had before the batch started; failures are reported per item.
func (s *AutosaveService) SaveBatch(ctx context.Context, responseSetID string, req *model.BatchRequest) (*model.BatchResult, error) {
	if err := validateEnvelope(req); err != nil {
		return nil, err
	}
	if !s.responseSets.Exists(ctx, responseSetID) {
		return nil, responseSetNotFound(responseSetID)
	}

	baselines := make(map[string]string)
	screenOf := make([]string, len(req.Items))
	for i, item := range req.Items {
		screen, err := s.catalog.GetScreenKeyFor(ctx, item.QuestionID)
		if err != nil || screen == "" {
			continue
		}
		screenOf[i] = screen
		if _, ok := baselines[screen]; ok {
			continue
		}
		img, err := s.screens.Assemble(ctx, responseSetID, screen)
		if err != nil {
			continue
		}
		baselines[screen] = img.View.ETag
	}

	result := &model.BatchResult{Items: make([]model.BatchItemResult, 0, len(req.Items))}
	for i := range req.Items {
		item := &req.Items[i]
		pre := precondition{code: apierr.CodeBatchItemMismatch}
		if b, ok := baselines[screenOf[i]]; ok {
			pre.baseline = b
		}
		res, err := s.save(ctx, responseSetID, item.QuestionID, item.ETag, &item.Body, pre)
		if err != nil {
			e := apierr.As(err)
			result.Items = append(result.Items, model.BatchItemResult{
				QuestionID: item.QuestionID,
				Outcome:    model.OutcomeError,
				ETag:       e.ETag,
				Error: &model.BatchItemError{
					Status: e.Status,
					Code:   e.Code,
					Title:  e.Title,
					Detail: e.Detail,
				},
			})
			continue
		}
		result.Items = append(result.Items, model.BatchItemResult{
			QuestionID: item.QuestionID,
			Outcome:    model.OutcomeSuccess,
			ETag:       res.ETag,
		})
	}
	return result, nil
}

// precondition selects what If-Match is compared against.
// An empty baseline means the live pre-write etag.
type precondition struct {
	baseline string
	code     string
}

func (s *AutosaveService) save(ctx context.Context, responseSetID, questionID, ifMatch string, patch *model.AnswerPatch, pc precondition) (*model.SaveResult, error) {
	q, err := s.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, apierr.Repository(fmt.Errorf("get question: %w", err))
	}
	if q == nil {
		return nil, s.reject(apierr.NotFound(apierr.CodeQuestionNotFound, "Question not found").
			WithDetail("question %s does not exist", questionID))
	}

	pre, err := s.screens.Assemble(ctx, responseSetID, q.ScreenKey)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(ifMatch) == "" {
		return nil, s.reject(apierr.IfMatchMissing())
	}
	against := pre.View.ETag
	if pc.baseline != "" {
		against = pc.baseline
	}
	if !CompareETag(against, ifMatch) {
		return nil, s.reject(apierr.Mismatch(pc.code, pre.View.ETag))
	}

	key := replayKey(responseSetID, questionID, patch)
	if hit := s.lookupReplay(ctx, key, pre.View.ETag); hit != nil {
		return hit, nil
	}

	value, err := resolveValue(q, patch)
	if err != nil {
		return nil, s.reject(err)
	}

	var stateVersion int64
	if value == nil {
		if err := s.store.Delete(ctx, responseSetID, questionID); err != nil {
			return nil, apierr.Repository(err)
		}
		metrics.AnswerWrites.WithLabelValues("delete").Inc()
	} else {
		row, err := s.store.Upsert(ctx, responseSetID, questionID, *value)
		if err != nil {
			return nil, apierr.Repository(err)
		}
		stateVersion = row.Version
		metrics.AnswerWrites.WithLabelValues("upsert").Inc()
	}
	if _, err := s.store.BumpScreenVersion(ctx, responseSetID, q.ScreenKey); err != nil {
		s.log.Error("screen version bump failed", "response_set_id", responseSetID, "screen_key", q.ScreenKey, "error", err)
		return nil, apierr.Repository(fmt.Errorf("bump screen version: %w", err))
	}

	post, err := s.screens.Assemble(ctx, responseSetID, q.ScreenKey)
	if err != nil {
		return nil, err
	}

	probe := s.answerProbe(ctx, responseSetID, pre)
	delta, err := visibility.ComputeDelta(pre.VisibleIDs, post.VisibleIDs, probe)
	if err != nil {
		return nil, apierr.Repository(err)
	}
	if err := backfill(&delta, pre, post, questionID, value, probe); err != nil {
		return nil, apierr.Repository(err)
	}

	resp := &model.SaveResponse{
		Saved:             model.SavedAnswer{QuestionID: questionID, StateVersion: stateVersion},
		ETag:              post.View.ETag,
		ScreenView:        post.View,
		VisibilityDelta:   model.VisibilityDelta{NowVisible: pick(post.View.Questions, delta.NowVisible), NowHidden: delta.NowHidden},
		SuppressedAnswers: delta.Suppressed,
		Events:            buildEvents(questionID, value == nil, delta),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, apierr.CodeInternal, "Internal error", err)
	}

	if err := s.replays.Put(ctx, key, &cache.ReplayEntry{ETag: post.View.ETag, ScreenKey: q.ScreenKey, Body: body}); err != nil {
		s.log.Warn("replay cache put failed", "response_set_id", responseSetID, "question_id", questionID, "error", err)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToResponseSet(responseSetID, MsgScreenChanged, ScreenChanged{
			ResponseSetID: responseSetID,
			ScreenKey:     q.ScreenKey,
			ETag:          post.View.ETag,
		})
	}

	s.log.Debug("answer written",
		"response_set_id", responseSetID,
		"question_id", questionID,
		"cleared", value == nil,
		"etag", post.View.ETag,
	)
	return &model.SaveResult{
		Body:      body,
		ETag:      post.View.ETag,
		ScreenKey: q.ScreenKey,
		Response:  resp,
	}, nil
}

// lookupReplay returns a stored response only while the screen still carries
// the etag that write produced.
func (s *AutosaveService) lookupReplay(ctx context.Context, key, currentETag string) *model.SaveResult {
	entry, err := s.replays.Get(ctx, key)
	if err != nil {
		s.log.Warn("replay cache get failed", "error", err)
		return nil
	}
	if entry == nil || entry.ETag != currentETag {
		return nil
	}
	metrics.Replays.Inc()
	return &model.SaveResult{
		Body:      entry.Body,
		ETag:      entry.ETag,
		ScreenKey: entry.ScreenKey,
		Replayed:  true,
	}
}

func (s *AutosaveService) reject(err error) error {
	metrics.Rejections.WithLabelValues(apierr.As(err).Code).Inc()
	return err
}

// answerProbe reads the live store and falls back to the pre-image on error
func (s *AutosaveService) answerProbe(ctx context.Context, responseSetID string, pre *ScreenImage) func(string) (bool, error) {
	return func(questionID string) (bool, error) {
		a, err := s.store.GetExisting(ctx, responseSetID, questionID)
		if err != nil {
			return pre.Answered[questionID], nil
		}
		return a.HasValue(), nil
	}
}

// backfill adds children of the written question whose visibility flipped but
// which the image diff missed. When the old parent value is unknown and the
// new one is boolean, the old value is assumed to be its opposite. Additions
// must agree with the post-write visible set.
func backfill(d *visibility.Delta, pre, post *ScreenImage, parentID string, value *model.AnswerValue, probe func(string) (bool, error)) error {
	children := visibility.ChildrenOf(post.Rules, parentID)
	if len(children) == 0 {
		return nil
	}

	var newCanon *string
	if value != nil {
		if v, ok := visibility.CanonicalizeValue(*value); ok {
			newCanon = &v
		}
	}
	var oldCanon *string
	if v, ok := pre.ParentValues[parentID]; ok {
		oldCanon = &v
	} else if value != nil && value.Bool != nil {
		inferred := fmt.Sprint(!*value.Bool)
		oldCanon = &inferred
	}

	postVisible := setOf(post.VisibleIDs)
	shown, hidden := setOf(d.NowVisible), setOf(d.NowHidden)
	suppressed := setOf(d.Suppressed)
	changed := false
	for _, child := range children {
		rule := post.Rules[child]
		was := visibility.IsChildVisible(oldCanon, rule.VisibleIfValues)
		now := visibility.IsChildVisible(newCanon, rule.VisibleIfValues)
		switch {
		case was && !now && !postVisible[child] && !hidden[child]:
			hidden[child] = true
			ok, err := probe(child)
			if err != nil {
				return err
			}
			if ok {
				suppressed[child] = true
			}
			changed = true
		case !was && now && postVisible[child] && !shown[child]:
			shown[child] = true
			changed = true
		}
	}
	if changed {
		d.NowVisible = visibility.SortedIDs(shown)
		d.NowHidden = visibility.SortedIDs(hidden)
		d.Suppressed = visibility.SortedIDs(suppressed)
	}
	return nil
}

func buildEvents(questionID string, cleared bool, d visibility.Delta) []model.Event {
	events := make([]model.Event, 0, 1+len(d.NowVisible)+len(d.NowHidden)+len(d.Suppressed))
	if cleared {
		events = append(events, model.Event{Type: model.EventAnswerCleared, QuestionID: questionID})
	} else {
		events = append(events, model.Event{Type: model.EventAnswerSaved, QuestionID: questionID})
	}
	for _, id := range d.NowVisible {
		events = append(events, model.Event{Type: model.EventQuestionShown, QuestionID: id})
	}
	for _, id := range d.NowHidden {
		events = append(events, model.Event{Type: model.EventQuestionHidden, QuestionID: id})
	}
	for _, id := range d.Suppressed {
		events = append(events, model.Event{Type: model.EventAnswerSuppressed, QuestionID: id})
	}
	return events
}

// pick returns the screen questions named by ids, in screen order
func pick(questions []model.ScreenQuestion, ids []string) []model.ScreenQuestion {
	want := setOf(ids)
	out := make([]model.ScreenQuestion, 0, len(ids))
	for _, q := range questions {
		if want[q.QuestionID] {
			out = append(out, q)
		}
	}
	return out
}

func setOf(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// replayKey identifies a write by response set, question and normalized payload
func replayKey(responseSetID, questionID string, p *model.AnswerPatch) string {
	var norm bytes.Buffer
	if p.Clear {
		norm.WriteString("clear")
	} else {
		if p.HasValue() {
			if err := json.Compact(&norm, p.Value); err != nil {
				norm.Reset()
				norm.Write(p.Value)
			}
		}
		if p.OptionID != nil {
			norm.WriteString("|option:")
			norm.WriteString(strings.ToLower(strings.TrimSpace(*p.OptionID)))
		}
	}
	return fmt.Sprintf("%s:%s:%016x", responseSetID, questionID, xxhash.Sum64(norm.Bytes()))
}
