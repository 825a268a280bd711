// Package events defines the typed envelopes exchanged between pipeline
// stages. Every event serializes to a flat JSON object; unknown fields are
// ignored on decode for forward compatibility, and a payload that fails to
// decode or validate is a permanent fault.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/fault"
)

const (
	KindFileReadyForConversion = "FileReadyForConversion"
	KindConversionCompleted    = "ConversionCompleted"
	KindSegmentCreated         = "SegmentCreated"
	KindTranscriptionCompleted = "TranscriptionCompleted"
)

// Base carries the fields common to every pipeline event. The trace id
// correlates one run end-to-end; target_hardware drives queue routing for
// the transcription stage and defaults to cpu.
type Base struct {
	TraceID        uuid.UUID `json:"trace_id"`
	FileID         uuid.UUID `json:"file_id"`
	UserID         uuid.UUID `json:"user_id"`
	TargetHardware string    `json:"target_hardware"`
}

func (b *Base) validate() error {
	if b.TraceID == uuid.Nil {
		return fmt.Errorf("trace_id is empty")
	}
	if b.FileID == uuid.Nil {
		return fmt.Errorf("file_id is empty")
	}
	if b.UserID == uuid.Nil {
		return fmt.Errorf("user_id is empty")
	}
	if b.TargetHardware == "" {
		b.TargetHardware = HardwareCPU
	}
	return nil
}

// FileReadyForConversion is the pipeline entry point, published by the
// trigger boundary once a File upload is complete.
type FileReadyForConversion struct {
	Base
	StorageKey       string `json:"storage_key"`
	OriginalFilename string `json:"original_filename"`
}

func (e *FileReadyForConversion) Kind() string { return KindFileReadyForConversion }

func (e *FileReadyForConversion) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.StorageKey == "" {
		return fmt.Errorf("storage_key is empty")
	}
	return nil
}

type ConversionCompleted struct {
	Base
	ConvertedStorageKey string `json:"converted_storage_key"`
	ConvertedFormat     string `json:"converted_format"`
}

func (e *ConversionCompleted) Kind() string { return KindConversionCompleted }

func (e *ConversionCompleted) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.ConvertedStorageKey == "" {
		return fmt.Errorf("converted_storage_key is empty")
	}
	if e.ConvertedFormat == "" {
		return fmt.Errorf("converted_format is empty")
	}
	return nil
}

// SegmentCreated is emitted once per chunk by the segmentation stage and
// routed to a hardware-specific transcription queue at publish time.
type SegmentCreated struct {
	Base
	ParentStorageKey  string    `json:"parent_storage_key"`
	SegmentID         uuid.UUID `json:"segment_id"`
	SegmentStorageKey string    `json:"segment_storage_key"`
	SegmentIndex      int       `json:"segment_index"`
	TotalSegments     int       `json:"total_segments"`
}

func (e *SegmentCreated) Kind() string { return KindSegmentCreated }

func (e *SegmentCreated) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.SegmentID == uuid.Nil {
		return fmt.Errorf("segment_id is empty")
	}
	if e.SegmentStorageKey == "" {
		return fmt.Errorf("segment_storage_key is empty")
	}
	if e.SegmentIndex < 0 {
		return fmt.Errorf("segment_index is negative")
	}
	if e.TotalSegments <= 0 {
		return fmt.Errorf("total_segments must be positive")
	}
	return nil
}

type TranscriptionCompleted struct {
	Base
	SegmentID            uuid.UUID `json:"segment_id"`
	TranscriptStorageKey string    `json:"transcript_storage_key"`
	Summary              string    `json:"summary"`
}

func (e *TranscriptionCompleted) Kind() string { return KindTranscriptionCompleted }

func (e *TranscriptionCompleted) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.SegmentID == uuid.Nil {
		return fmt.Errorf("segment_id is empty")
	}
	if e.TranscriptStorageKey == "" {
		return fmt.Errorf("transcript_storage_key is empty")
	}
	return nil
}

// Event is any of the four pipeline event kinds.
type Event interface {
	Kind() string
	Validate() error
}

func Encode(ev Event) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return b, nil
}

// Decode unmarshals a queue payload into ev and validates it. Any failure
// is a permanent fault: replaying a malformed payload can never succeed.
func Decode(payload []byte, ev Event) error {
	if err := json.Unmarshal(payload, ev); err != nil {
		return fault.Permanent(fmt.Errorf("decode %s: %w", ev.Kind(), err))
	}
	if err := ev.Validate(); err != nil {
		return fault.Permanent(fmt.Errorf("decode %s: %w", ev.Kind(), err))
	}
	return nil
}
