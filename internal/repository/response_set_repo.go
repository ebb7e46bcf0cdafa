package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"screenflow/internal/model"
)

// ResponseSetRepo handles persistence of response sets
type ResponseSetRepo interface {
	Create(ctx context.Context, rs *model.ResponseSet) error
	// GetByID returns nil, nil for unknown ids
	GetByID(ctx context.Context, id string) (*model.ResponseSet, error)
	Delete(ctx context.Context, id string) error
}

type responseSetRepo struct {
	collection *mongo.Collection
}

// NewResponseSetRepo creates a new response set repository
func NewResponseSetRepo(db *mongo.Database) ResponseSetRepo {
	return &responseSetRepo{
		collection: db.Collection("response_sets"),
	}
}

func (r *responseSetRepo) Create(ctx context.Context, rs *model.ResponseSet) error {
	rs.CreatedAt = time.Now().UTC()
	rs.UpdatedAt = rs.CreatedAt
	_, err := r.collection.InsertOne(ctx, rs)
	return err
}

func (r *responseSetRepo) GetByID(ctx context.Context, id string) (*model.ResponseSet, error) {
	var rs model.ResponseSet
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rs)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *responseSetRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// MemoryResponseSetRepo keeps response sets in process memory
type MemoryResponseSetRepo struct {
	mu   sync.RWMutex
	sets map[string]model.ResponseSet
}

func NewMemoryResponseSetRepo() *MemoryResponseSetRepo {
	return &MemoryResponseSetRepo{sets: make(map[string]model.ResponseSet)}
}

func (r *MemoryResponseSetRepo) Create(_ context.Context, rs *model.ResponseSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs.CreatedAt = time.Now().UTC()
	rs.UpdatedAt = rs.CreatedAt
	r.sets[rs.ID] = *rs
	return nil
}

func (r *MemoryResponseSetRepo) GetByID(_ context.Context, id string) (*model.ResponseSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[id]
	if !ok {
		return nil, nil
	}
	return &rs, nil
}

func (r *MemoryResponseSetRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, id)
	return nil
}
