package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/domain"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

// Memory holds the shared in-memory state behind the three stores, used
// by tests and local runs without Postgres. The clock is a field so tests
// can pin time and assert durations exactly.
type Memory struct {
	Clock func() time.Time

	mu        sync.RWMutex
	files     map[uuid.UUID]*models.File
	processes map[uuid.UUID]*models.Process
	segments  map[uuid.UUID]*models.Segment
	locks     map[uuid.UUID]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		Clock:     time.Now,
		files:     make(map[uuid.UUID]*models.File),
		processes: make(map[uuid.UUID]*models.Process),
		segments:  make(map[uuid.UUID]*models.Segment),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *Memory) Files() *MemoryFiles         { return &MemoryFiles{m: m} }
func (m *Memory) Processes() *MemoryProcesses { return &MemoryProcesses{m: m} }
func (m *Memory) Segments() *MemorySegments   { return &MemorySegments{m: m} }

// MemoryFiles implements FileStore over the shared state.
type MemoryFiles struct {
	m *Memory
}

func (r *MemoryFiles) Create(ctx context.Context, f *models.File) error {
	if f == nil || f.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.files[f.ID]; exists {
		return models.ErrConflict
	}
	for _, other := range r.m.files {
		if other.StorageKey == f.StorageKey {
			return models.ErrConflict
		}
	}

	cp := *f
	r.m.files[f.ID] = &cp
	return nil
}

func (r *MemoryFiles) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	f, ok := r.m.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *MemoryFiles) GetByStorageKey(ctx context.Context, key string) (*models.File, error) {
	if key == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	for _, f := range r.m.files {
		if f.StorageKey == key {
			cp := *f
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryFiles) MarkUploadCompleted(ctx context.Context, id uuid.UUID, sizeBytes int64, etag string) (*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	f, ok := r.m.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	now := r.m.Clock()
	f.UploadStatus = models.StatusCompleted
	f.SizeBytes = sizeBytes
	f.ETag = etag
	f.UploadCompletedAt = &now

	cp := *f
	return &cp, nil
}

func (r *MemoryFiles) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.files[id]; !ok {
		return models.ErrNotFound
	}
	for pid, p := range r.m.processes {
		if p.FileID != id {
			continue
		}
		for sid, s := range r.m.segments {
			if s.ProcessID == pid {
				delete(r.m.segments, sid)
			}
		}
		delete(r.m.processes, pid)
	}
	delete(r.m.files, id)
	return nil
}

// MemoryProcesses implements ProcessStore over the shared state.
type MemoryProcesses struct {
	m *Memory
}

func (r *MemoryProcesses) Create(ctx context.Context, p *models.Process) error {
	if p == nil || p.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.processes[p.ID]; exists {
		return models.ErrConflict
	}
	cp := *p
	r.m.processes[p.ID] = &cp
	return nil
}

func (r *MemoryProcesses) GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	p, ok := r.m.processes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProcesses) LatestByFile(ctx context.Context, fileID uuid.UUID, kind models.ProcessKind) (*models.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var latest *models.Process
	for _, p := range r.m.processes {
		if p.FileID != fileID || p.Kind != kind {
			continue
		}
		if latest == nil || p.InitiatedAt.After(latest.InitiatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryProcesses) CreateOrGet(ctx context.Context, fileID, userID uuid.UUID, kind models.ProcessKind) (*models.Process, error) {
	if existing, err := r.LatestByFile(ctx, fileID, kind); err == nil {
		return existing, nil
	} else if err != models.ErrNotFound {
		return nil, err
	}

	p := &models.Process{
		ID:          uuid.New(),
		FileID:      fileID,
		UserID:      userID,
		Kind:        kind,
		Status:      models.StatusProcessing,
		InitiatedAt: r.m.Clock(),
	}
	if err := r.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *MemoryProcesses) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []models.Process
	for _, p := range r.m.processes {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.After(out[j].InitiatedAt) })
	return out, nil
}

func (r *MemoryProcesses) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, message string) (*models.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.processes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := domain.ValidateTransition(p.Status, status); err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		// Same terminal value replayed: keep the frozen record.
		cp := *p
		return &cp, nil
	}

	p.Status = status
	if message != "" {
		p.ErrorMessage = message
	}
	if status.Terminal() {
		now := r.m.Clock()
		p.CompletedAt = &now
		d := now.Sub(p.InitiatedAt).Milliseconds()
		p.DurationMS = &d
	}

	cp := *p
	return &cp, nil
}

func (r *MemoryProcesses) UpdateResult(ctx context.Context, id uuid.UUID, result json.RawMessage) (*models.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.processes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	p.Result = append(json.RawMessage(nil), result...)

	cp := *p
	return &cp, nil
}

func (r *MemoryProcesses) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	r.m.mu.Lock()
	lock, ok := r.m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.m.locks[id] = lock
	}
	r.m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// MemorySegments implements SegmentStore over the shared state.
type MemorySegments struct {
	m *Memory
}

func (r *MemorySegments) Create(ctx context.Context, s *models.Segment) error {
	if s == nil || s.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.segments[s.ID]; exists {
		return models.ErrConflict
	}
	for _, other := range r.m.segments {
		if other.StorageKey == s.StorageKey {
			return models.ErrConflict
		}
		if other.ProcessID == s.ProcessID && other.Index == s.Index {
			return models.ErrConflict
		}
	}

	cp := *s
	r.m.segments[s.ID] = &cp
	return nil
}

func (r *MemorySegments) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	s, ok := r.m.segments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySegments) ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []models.Segment
	for _, s := range r.m.segments {
		if s.ProcessID == processID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *MemorySegments) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, errMessage string) (*models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.apply(id, status, errMessage)
}

func (r *MemorySegments) UpdateTranscription(ctx context.Context, id uuid.UUID, status models.Status, transcriptKey, summary string) (*models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.segments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if transcriptKey != "" {
		s.TranscriptStorageKey = transcriptKey
	}
	if summary != "" {
		s.Summary = summary
	}
	return r.apply(id, status, "")
}

// apply expects m.mu to be held.
func (r *MemorySegments) apply(id uuid.UUID, status models.Status, errMessage string) (*models.Segment, error) {
	s, ok := r.m.segments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := domain.ValidateTransition(s.Status, status); err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		cp := *s
		return &cp, nil
	}

	s.Status = status
	if errMessage != "" {
		s.ErrorMessage = errMessage
	}
	switch {
	case status == models.StatusProcessing && s.StartedAt == nil:
		now := r.m.Clock()
		s.StartedAt = &now
	case status.Terminal():
		now := r.m.Clock()
		s.CompletedAt = &now
		if s.StartedAt != nil {
			d := now.Sub(*s.StartedAt).Milliseconds()
			s.DurationMS = &d
		}
	}

	cp := *s
	return &cp, nil
}
