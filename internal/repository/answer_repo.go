package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"screenflow/internal/logger"
	"screenflow/internal/model"
)

// ErrUnavailable marks an I/O failure of the backing store
var ErrUnavailable = errors.New("answer store unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// AnswerStore holds at most one answer row per (response set, question) and
// the per-(response set, screen) version counters.
type AnswerStore interface {
	// GetExisting returns nil, nil when no row exists
	GetExisting(ctx context.Context, responseSetID, questionID string) (*model.Answer, error)
	Upsert(ctx context.Context, responseSetID, questionID string, value model.AnswerValue) (*model.Answer, error)
	Delete(ctx context.Context, responseSetID, questionID string) error

	ScreenVersion(ctx context.Context, responseSetID, screenKey string) (int64, error)
	BumpScreenVersion(ctx context.Context, responseSetID, screenKey string) (int64, error)
}

type answerRepo struct {
	answers  *mongo.Collection
	versions *mongo.Collection
	log      *logger.Logger
}

// NewAnswerRepo creates the Mongo-backed persistent store
func NewAnswerRepo(db *mongo.Database, log *logger.Logger) AnswerStore {
	repo := &answerRepo{
		answers:  db.Collection("answers"),
		versions: db.Collection("screen_versions"),
		log:      log.With("repo", "answers"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *answerRepo) ensureIndexes(ctx context.Context) {
	r.createIndex(ctx, r.answers, bson.D{
		{Key: "response_set_id", Value: 1},
		{Key: "question_id", Value: 1},
	})
	r.createIndex(ctx, r.versions, bson.D{
		{Key: "response_set_id", Value: 1},
		{Key: "screen_key", Value: 1},
	})
}

func (r *answerRepo) createIndex(ctx context.Context, coll *mongo.Collection, keys bson.D) {
	opts := options.Index().SetUnique(true)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts}); err != nil {
		r.log.Warn("failed to create index", "collection", coll.Name(), "error", err)
	}
}

func answerFilter(responseSetID, questionID string) bson.M {
	return bson.M{"response_set_id": responseSetID, "question_id": questionID}
}

func (r *answerRepo) GetExisting(ctx context.Context, responseSetID, questionID string) (*model.Answer, error) {
	var answer model.Answer
	err := r.answers.FindOne(ctx, answerFilter(responseSetID, questionID)).Decode(&answer)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("answers get", err)
	}
	return &answer, nil
}

func (r *answerRepo) Upsert(ctx context.Context, responseSetID, questionID string, value model.AnswerValue) (*model.Answer, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}
	setOrUnset := func(field string, present bool, v interface{}) {
		if present {
			set[field] = v
		} else {
			unset[field] = ""
		}
	}
	setOrUnset("option_id", value.OptionID != nil, value.OptionID)
	setOrUnset("text", value.Text != nil, value.Text)
	setOrUnset("number", value.Number != nil, value.Number)
	setOrUnset("bool", value.Bool != nil, value.Bool)

	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var answer model.Answer
	err := r.answers.FindOneAndUpdate(ctx, answerFilter(responseSetID, questionID), update, opts).Decode(&answer)
	if err != nil {
		return nil, unavailable("answers upsert", err)
	}
	return &answer, nil
}

func (r *answerRepo) Delete(ctx context.Context, responseSetID, questionID string) error {
	if _, err := r.answers.DeleteOne(ctx, answerFilter(responseSetID, questionID)); err != nil {
		return unavailable("answers delete", err)
	}
	return nil
}

type screenVersionDoc struct {
	ResponseSetID string `bson:"response_set_id"`
	ScreenKey     string `bson:"screen_key"`
	Version       int64  `bson:"version"`
}

func (r *answerRepo) ScreenVersion(ctx context.Context, responseSetID, screenKey string) (int64, error) {
	var doc screenVersionDoc
	err := r.versions.FindOne(ctx, bson.M{"response_set_id": responseSetID, "screen_key": screenKey}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("screen version get", err)
	}
	return doc.Version, nil
}

func (r *answerRepo) BumpScreenVersion(ctx context.Context, responseSetID, screenKey string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc screenVersionDoc
	err := r.versions.FindOneAndUpdate(ctx,
		bson.M{"response_set_id": responseSetID, "screen_key": screenKey},
		bson.M{"$inc": bson.M{"version": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, unavailable("screen version bump", err)
	}
	return doc.Version, nil
}
