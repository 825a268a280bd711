package main

import (
	"os"

	"github.com/romariotrain/transcription-pipeline/internal/app"
)

func main() {
	os.Exit(app.Run("worker", run))
}
