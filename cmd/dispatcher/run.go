package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/config"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/dispatcher"
	"github.com/romariotrain/transcription-pipeline/internal/queue"
	pg "github.com/romariotrain/transcription-pipeline/internal/storage/postgres"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	publisher, err := queue.NewPublisher(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	files := pg.NewFileRepo(db)
	d := dispatcher.New(files, logger)

	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Queue:       cfg.UploadNotifyTopic,
		Handler:     d,
		DeadLetters: publisher,
		Logger:      logger,
		TimeLimit:   time.Minute,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx)
}
