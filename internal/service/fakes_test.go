package service

import (
	"context"
	"sync"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/repository/contract"
	"agent-memory-be/internal/repository/specification"
	"agent-memory-be/internal/repository/unitofwork"
	"agent-memory-be/pkg/embedding"
	"agent-memory-be/pkg/events"

	"github.com/google/uuid"
)

type fakeChunkRepo struct {
	mu        sync.Mutex
	chunks    []*entity.Chunk
	scored    []*contract.ScoredChunk
	created   []*entity.Chunk
	lastSpecs []specification.Specification
	vectorHit bool
	err       error
}

func (r *fakeChunkRepo) Create(ctx context.Context, chunk *entity.Chunk) error {
	return r.CreateBulk(ctx, []*entity.Chunk{chunk})
}

func (r *fakeChunkRepo) CreateBulk(_ context.Context, chunks []*entity.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, chunks...)
	return nil
}

func (r *fakeChunkRepo) Delete(context.Context, uuid.UUID) error { return r.err }

func (r *fakeChunkRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSpecs = specs
	return r.chunks, r.err
}

func (r *fakeChunkRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return int64(len(r.chunks)), r.err
}

func (r *fakeChunkRepo) SearchSimilar(_ context.Context, _ []float32, specs ...specification.Specification) ([]*contract.ScoredChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSpecs = specs
	r.vectorHit = true
	return r.scored, r.err
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	audits []*entity.BundleAudit
	specs  []specification.Specification
	err    error
}

func (r *fakeAuditRepo) Create(_ context.Context, audit *entity.BundleAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.audits = append(r.audits, audit)
	return nil
}

func (r *fakeAuditRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.BundleAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = specs
	if r.err != nil || len(r.audits) == 0 {
		return nil, r.err
	}
	return r.audits[0], nil
}

func (r *fakeAuditRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.BundleAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = specs
	return r.audits, r.err
}

func (r *fakeAuditRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return int64(len(r.audits)), r.err
}

type fakeUow struct {
	chunks    *fakeChunkRepo
	audits    *fakeAuditRepo
	begun     bool
	committed bool
}

func (u *fakeUow) Begin(context.Context) error { u.begun = true; return nil }
func (u *fakeUow) Commit() error               { u.committed = true; return nil }
func (u *fakeUow) Rollback() error             { return nil }

func (u *fakeUow) ChunkRepository() contract.ChunkRepository             { return u.chunks }
func (u *fakeUow) BundleAuditRepository() contract.BundleAuditRepository { return u.audits }

type fakeFactory struct {
	uow *fakeUow
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{uow: &fakeUow{chunks: &fakeChunkRepo{}, audits: &fakeAuditRepo{}}}
}

func (f *fakeFactory) NewUnitOfWork(context.Context) unitofwork.UnitOfWork { return f.uow }

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
	tasks []embedding.Task
}

func (e *fakeEmbedder) Name() string { return "fake" }

func (e *fakeEmbedder) Embed(_ context.Context, _ string, task embedding.Task) ([]float32, error) {
	e.calls++
	e.tasks = append(e.tasks, task)
	return e.vec, e.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type logEntry struct {
	Level   string
	Module  string
	Message string
	Details map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, module, message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Module: module, Message: message, Details: details})
}

func (l *recordingLogger) Debug(m, msg string, d map[string]interface{}) { l.add("debug", m, msg, d) }
func (l *recordingLogger) Info(m, msg string, d map[string]interface{})  { l.add("info", m, msg, d) }
func (l *recordingLogger) Warn(m, msg string, d map[string]interface{})  { l.add("warn", m, msg, d) }
func (l *recordingLogger) Error(m, msg string, d map[string]interface{}) { l.add("error", m, msg, d) }
func (l *recordingLogger) Sync() error                                   { return nil }

func (l *recordingLogger) Entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}
