package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"screenflow/internal/config"
	"screenflow/internal/logger"
	"screenflow/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	file := flag.String("file", cfg.QuestionnaireFile, "questionnaire YAML file")
	replace := flag.Bool("replace", true, "drop existing questions of each seeded screen first")
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if *file == "" {
		log.Fatal("no questionnaire file; pass -file or set QUESTIONNAIRE_FILE")
	}
	q, err := config.LoadQuestionnaire(*file)
	if err != nil {
		log.Fatal("invalid questionnaire", "path", *file, "error", err)
	}
	questions, err := q.Questions()
	if err != nil {
		log.Fatal("invalid questionnaire", "path", *file, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("failed to connect to MongoDB", "error", err)
	}
	defer client.Disconnect(context.Background())

	repo := repository.NewQuestionRepo(client.Database(cfg.MongoDatabase), log)

	if *replace {
		for _, screen := range q.ScreenKeys() {
			if err := repo.DeleteScreen(ctx, screen); err != nil {
				log.Fatal("failed to clear screen", "screen_key", screen, "error", err)
			}
		}
	}
	for i := range questions {
		if err := repo.Upsert(ctx, &questions[i]); err != nil {
			log.Fatal("failed to upsert question", "question_id", questions[i].ID, "error", err)
		}
	}

	log.Info("questionnaire seeded",
		"path", *file,
		"database", cfg.MongoDatabase,
		"screens", len(q.Screens),
		"questions", len(questions),
	)
}
