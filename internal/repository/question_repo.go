package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"screenflow/internal/logger"
	"screenflow/internal/model"
)

// QuestionCatalog is the read side of the questionnaire definition
type QuestionCatalog interface {
	// ListQuestionsForScreen returns questions ordered by position; empty for unknown screens
	ListQuestionsForScreen(ctx context.Context, screenKey string) ([]model.Question, error)
	GetVisibilityRulesForScreen(ctx context.Context, screenKey string) (map[string]model.VisibilityRule, error)

	// GetQuestion returns nil, nil for unknown ids
	GetQuestion(ctx context.Context, questionID string) (*model.Question, error)
	GetScreenKeyFor(ctx context.Context, questionID string) (string, error)
	GetAnswerKindFor(ctx context.Context, questionID string) (model.AnswerKind, error)
}

// QuestionRepo is the Mongo catalog; Upsert is used by seeding
type QuestionRepo interface {
	QuestionCatalog
	Upsert(ctx context.Context, question *model.Question) error
	DeleteScreen(ctx context.Context, screenKey string) error
}

type questionRepo struct {
	collection *mongo.Collection
	log        *logger.Logger
}

// NewQuestionRepo creates the Mongo question catalog
func NewQuestionRepo(db *mongo.Database, log *logger.Logger) QuestionRepo {
	repo := &questionRepo{
		collection: db.Collection("questions"),
		log:        log.With("repo", "questions"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *questionRepo) ensureIndexes(ctx context.Context) {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "screen_key", Value: 1}, {Key: "position", Value: 1}},
	})
	if err != nil {
		r.log.Warn("failed to create index", "collection", r.collection.Name(), "error", err)
	}
}

func (r *questionRepo) ListQuestionsForScreen(ctx context.Context, screenKey string) ([]model.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"screen_key": screenKey}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []model.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepo) GetVisibilityRulesForScreen(ctx context.Context, screenKey string) (map[string]model.VisibilityRule, error) {
	questions, err := r.ListQuestionsForScreen(ctx, screenKey)
	if err != nil {
		return nil, err
	}
	return rulesFor(questions), nil
}

func (r *questionRepo) GetQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	var question model.Question
	err := r.collection.FindOne(ctx, bson.M{"_id": questionID}).Decode(&question)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *questionRepo) GetScreenKeyFor(ctx context.Context, questionID string) (string, error) {
	q, err := r.GetQuestion(ctx, questionID)
	if err != nil || q == nil {
		return "", err
	}
	return q.ScreenKey, nil
}

func (r *questionRepo) GetAnswerKindFor(ctx context.Context, questionID string) (model.AnswerKind, error) {
	q, err := r.GetQuestion(ctx, questionID)
	if err != nil || q == nil {
		return "", err
	}
	return q.Kind, nil
}

func (r *questionRepo) Upsert(ctx context.Context, question *model.Question) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": question.ID}, question, opts)
	return err
}

func (r *questionRepo) DeleteScreen(ctx context.Context, screenKey string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"screen_key": screenKey})
	return err
}

func rulesFor(questions []model.Question) map[string]model.VisibilityRule {
	rules := make(map[string]model.VisibilityRule, len(questions))
	for i := range questions {
		rules[questions[i].ID] = questions[i].Rule()
	}
	return rules
}
