// Command trigger starts a transcription pipeline run for an already
// uploaded file. It is a thin operational wrapper around the same entry
// point the HTTP API calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/config"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/trigger"
	"github.com/romariotrain/transcription-pipeline/internal/queue"
	pg "github.com/romariotrain/transcription-pipeline/internal/storage/postgres"
)

func main() {
	fileID := flag.String("file", "", "file id (uuid)")
	userID := flag.String("user", "", "user id (uuid)")
	hardware := flag.String("hardware", "cpu", "target hardware: cpu, gpu, cuda or rocm")
	flag.Parse()

	if err := run(*fileID, *userID, *hardware); err != nil {
		fmt.Fprintln(os.Stderr, "trigger:", err)
		os.Exit(1)
	}
}

func run(fileIDRaw, userIDRaw, hardware string) error {
	fileID, err := uuid.Parse(fileIDRaw)
	if err != nil {
		return fmt.Errorf("invalid -file: %w", err)
	}
	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		return fmt.Errorf("invalid -user: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := context.Background()

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

	t := trigger.New(pg.NewFileRepo(db), pg.NewProcessRepo(db), publisher, logger)
	proc, err := t.StartPipeline(ctx, fileID, userID, hardware)
	if err != nil {
		return err
	}

	fmt.Printf("process %s started for file %s\n", proc.ID, proc.FileID)
	return nil
}
