package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"screenflow/internal/apierr"
	"screenflow/internal/logger"
	"screenflow/internal/model"
	"screenflow/internal/repository"
)

// ResponseSetService handles response set CRUD operations
type ResponseSetService struct {
	repo        repository.ResponseSetRepo
	broadcaster Broadcaster
	log         *logger.Logger
}

// NewResponseSetService creates a new response set service
func NewResponseSetService(repo repository.ResponseSetRepo, log *logger.Logger) *ResponseSetService {
	return &ResponseSetService{
		repo: repo,
		log:  log.With("component", "response_sets"),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *ResponseSetService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Create creates a new response set
func (s *ResponseSetService) Create(ctx context.Context, name string) (*model.ResponseSet, error) {
	now := time.Now().UTC()
	rs := &model.ResponseSet{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, rs); err != nil {
		return nil, apierr.Repository(fmt.Errorf("create response set: %w", err))
	}
	s.log.Info("response set created", "response_set_id", rs.ID)
	return rs, nil
}

// Get retrieves a response set by ID
func (s *ResponseSetService) Get(ctx context.Context, id string) (*model.ResponseSet, error) {
	rs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apierr.Repository(fmt.Errorf("get response set: %w", err))
	}
	if rs == nil {
		return nil, responseSetNotFound(id)
	}
	return rs, nil
}

// Delete deletes a response set. Stored answers are left in place.
func (s *ResponseSetService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apierr.Repository(fmt.Errorf("delete response set: %w", err))
	}
	if s.broadcaster != nil {
		s.broadcaster.DisconnectResponseSet(id)
	}
	s.log.Info("response set deleted", "response_set_id", id)
	return nil
}

// Exists reports whether the response set is known.
// A failing lookup is logged and treated as existing so writes keep flowing.
func (s *ResponseSetService) Exists(ctx context.Context, id string) bool {
	rs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Warn("response set lookup failed", "response_set_id", id, "error", err)
		return true
	}
	return rs != nil
}

func responseSetNotFound(id string) error {
	return apierr.NotFound(apierr.CodeResponseSetNotFound, "Response set not found").
		WithDetail("response set %s does not exist", id)
}
