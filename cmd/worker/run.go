package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/transcription-pipeline/internal/config"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/actors"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/queue"
	"github.com/romariotrain/transcription-pipeline/internal/storage/objectstore"
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

	store, err := objectstore.NewMinio(objectstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Secure:    cfg.MinioSecure,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		return err
	}

	publisher, err := queue.NewPublisher(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	processes := pg.NewProcessRepo(db)
	segments := pg.NewSegmentRepo(db)

	conversion := actors.NewConversion(processes, store, publisher, cfg.Bucket, logger)
	segmentation := actors.NewSegmentation(processes, segments, store, publisher, cfg.Bucket, logger)
	transcription := actors.NewTranscription(segments, store, publisher, cfg.Bucket, logger)
	finalization := actors.NewFinalization(processes, segments, logger)

	type stage struct {
		queue     string
		handler   queue.Handler
		timeLimit time.Duration
	}
	stages := []stage{
		{events.QueueConvert, conversion, 5 * time.Minute},
		{events.QueueSplit, segmentation, 10 * time.Minute},
		{events.QueueFinal, finalization, time.Minute},
	}
	for _, q := range events.TranscribeQueues() {
		stages = append(stages, stage{q, transcription, 15 * time.Minute})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, st := range stages {
		consumer, err := queue.NewConsumer(queue.ConsumerConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			Queue:       st.queue,
			Handler:     st.handler,
			DeadLetters: publisher,
			Logger:      logger,
			TimeLimit:   st.timeLimit,
		})
		if err != nil {
			return fmt.Errorf("consumer %s: %w", st.queue, err)
		}
		defer consumer.Close()

		g.Go(func() error { return consumer.Run(ctx) })
	}

	return g.Wait()
}
