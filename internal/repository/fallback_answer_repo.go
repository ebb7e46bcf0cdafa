package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"screenflow/internal/logger"
	"screenflow/internal/metrics"
	"screenflow/internal/model"
)

// StorePolicy selects which AnswerStore backs the service
type StorePolicy string

const (
	// PolicyFallback uses the persistent store and degrades to the volatile one on failure
	PolicyFallback StorePolicy = "fallback"
	// PolicyPrimary surfaces every persistent store failure
	PolicyPrimary StorePolicy = "primary"
	// PolicyVolatile keeps everything in process memory
	PolicyVolatile StorePolicy = "volatile"
)

// ParseStorePolicy validates a configured policy name
func ParseStorePolicy(s string) (StorePolicy, error) {
	switch p := StorePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFallback, PolicyPrimary, PolicyVolatile:
		return p, nil
	case "":
		return PolicyFallback, nil
	}
	return "", fmt.Errorf("unknown store policy %q", s)
}

// NewAnswerStore picks the store for a policy. primary may be nil for PolicyVolatile.
func NewAnswerStore(policy StorePolicy, primary AnswerStore, volatile *MemoryAnswerRepo, log *logger.Logger) AnswerStore {
	switch policy {
	case PolicyVolatile:
		return volatile
	case PolicyPrimary:
		return primary
	}
	return &fallbackAnswerStore{
		primary:     primary,
		volatile:    volatile,
		log:         log.With("store", "fallback"),
		lastPrimary: make(map[screenKey]int64),
		tombstones:  make(map[answerKey]bool),
	}
}

// fallbackAnswerStore serves from primary and degrades to volatile.
// Rows written during an outage are authoritative over primary until the same
// key is written to primary again; outage deletes leave a tombstone that hides
// the primary row for as long. Screen versions are the sum of the primary
// counter and the outage counter, so they never move backwards in-process.
type fallbackAnswerStore struct {
	primary  AnswerStore
	volatile *MemoryAnswerRepo
	log      *logger.Logger

	mu          sync.Mutex
	lastPrimary map[screenKey]int64
	tombstones  map[answerKey]bool
}

func (s *fallbackAnswerStore) degrade(op, responseSetID, key string, err error) {
	metrics.StoreFallbacks.WithLabelValues(op).Inc()
	s.log.Warn("primary store failed, using volatile store",
		"operation", op, "response_set_id", responseSetID, "key", key, "error", err)
}

func (s *fallbackAnswerStore) GetExisting(ctx context.Context, responseSetID, questionID string) (*model.Answer, error) {
	if s.tombstoned(responseSetID, questionID) {
		return nil, nil
	}
	shadow, _ := s.volatile.GetExisting(ctx, responseSetID, questionID)
	if shadow != nil {
		return shadow, nil
	}
	a, err := s.primary.GetExisting(ctx, responseSetID, questionID)
	if err != nil {
		s.degrade("get", responseSetID, questionID, err)
		return nil, nil
	}
	return a, nil
}

func (s *fallbackAnswerStore) Upsert(ctx context.Context, responseSetID, questionID string, value model.AnswerValue) (*model.Answer, error) {
	a, err := s.primary.Upsert(ctx, responseSetID, questionID, value)
	if err != nil {
		s.degrade("upsert", responseSetID, questionID, err)
		s.setTombstone(responseSetID, questionID, false)
		return s.volatile.Upsert(ctx, responseSetID, questionID, value)
	}
	s.settle(ctx, responseSetID, questionID)
	return a, nil
}

func (s *fallbackAnswerStore) Delete(ctx context.Context, responseSetID, questionID string) error {
	if err := s.primary.Delete(ctx, responseSetID, questionID); err != nil {
		s.degrade("delete", responseSetID, questionID, err)
		s.setTombstone(responseSetID, questionID, true)
		return s.volatile.Delete(ctx, responseSetID, questionID)
	}
	s.settle(ctx, responseSetID, questionID)
	return nil
}

// settle drops outage state for a key primary now holds
func (s *fallbackAnswerStore) settle(ctx context.Context, responseSetID, questionID string) {
	s.setTombstone(responseSetID, questionID, false)
	_ = s.volatile.Delete(ctx, responseSetID, questionID)
}

func (s *fallbackAnswerStore) tombstoned(responseSetID, questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tombstones[answerKey{responseSetID, questionID}]
}

func (s *fallbackAnswerStore) setTombstone(responseSetID, questionID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.tombstones[answerKey{responseSetID, questionID}] = true
		return
	}
	delete(s.tombstones, answerKey{responseSetID, questionID})
}

func (s *fallbackAnswerStore) ScreenVersion(ctx context.Context, responseSetID, screen string) (int64, error) {
	outage, _ := s.volatile.ScreenVersion(ctx, responseSetID, screen)
	p, err := s.primary.ScreenVersion(ctx, responseSetID, screen)
	if err != nil {
		s.degrade("version", responseSetID, screen, err)
		return s.last(responseSetID, screen) + outage, nil
	}
	s.remember(responseSetID, screen, p)
	return p + outage, nil
}

func (s *fallbackAnswerStore) BumpScreenVersion(ctx context.Context, responseSetID, screen string) (int64, error) {
	p, err := s.primary.BumpScreenVersion(ctx, responseSetID, screen)
	if err != nil {
		s.degrade("version_bump", responseSetID, screen, err)
		outage, _ := s.volatile.BumpScreenVersion(ctx, responseSetID, screen)
		return s.last(responseSetID, screen) + outage, nil
	}
	s.remember(responseSetID, screen, p)
	outage, _ := s.volatile.ScreenVersion(ctx, responseSetID, screen)
	return p + outage, nil
}

func (s *fallbackAnswerStore) last(responseSetID, screen string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrimary[screenKey{responseSetID, screen}]
}

func (s *fallbackAnswerStore) remember(responseSetID, screen string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.lastPrimary[screenKey{responseSetID, screen}] {
		s.lastPrimary[screenKey{responseSetID, screen}] = v
	}
}
