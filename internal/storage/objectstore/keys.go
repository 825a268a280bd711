package objectstore

import (
	"fmt"

	"github.com/google/uuid"
)

// Object keys are derived deterministically per stage:
// {stage-prefix}/{file_id}/{scope}/{uuid}.{ext}. A fresh uuid per write
// means retries and concurrent runs never collide on a key.

func ConvertedKey(fileID, objectID uuid.UUID, format string) string {
	return fmt.Sprintf("converted/%s/%s.%s", fileID, objectID, format)
}

func SegmentKey(fileID, processID, segmentID uuid.UUID, format string) string {
	return fmt.Sprintf("segments/%s/%s/%s.%s", fileID, processID, segmentID, format)
}

func TranscriptKey(fileID, segmentID uuid.UUID) string {
	return fmt.Sprintf("transcriptions/%s/%s.txt", fileID, segmentID)
}
