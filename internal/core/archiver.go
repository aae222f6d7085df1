package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
)

// Scheduler runs units of work off the request path. Schedule never blocks the
// caller, has no return value and offers no cancellation.
type Scheduler interface {
	Schedule(name string, unit func(ctx context.Context))
}

// BackgroundScheduler is a fixed worker pool. When the queue is full the unit
// runs on its own goroutine instead of blocking the caller.
type BackgroundScheduler struct {
	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

type job struct {
	name string
	unit func(ctx context.Context)
}

func NewBackgroundScheduler(workers, queueSize int, logger *zap.Logger) *BackgroundScheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	s := &BackgroundScheduler{queue: make(chan job, queueSize), logger: logger}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *BackgroundScheduler) worker() {
	for j := range s.queue {
		s.run(j)
	}
}

func (s *BackgroundScheduler) run(j job) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background unit panicked", zap.String("unit", j.name), zap.Any("panic", r))
		}
	}()
	// Units are not cancellable once scheduled.
	j.unit(context.Background())
}

func (s *BackgroundScheduler) Schedule(name string, unit func(ctx context.Context)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("scheduler closed, dropping unit", zap.String("unit", name))
		return
	}

	s.wg.Add(1)
	j := job{name: name, unit: unit}
	select {
	case s.queue <- j:
	default:
		s.logger.Debug("scheduler queue full, running unit on its own goroutine", zap.String("unit", name))
		go s.run(j)
	}
}

// Close stops accepting units and waits for scheduled ones to finish.
func (s *BackgroundScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

type MessageReader interface {
	GetMessages(ctx context.Context, sessionID string, limit, skip int, desc bool) ([]store.ChatMessage, error)
}

// MemoryArchiver moves a session's older messages into the chat history index
// in fixed windows of threshold messages.
type MemoryArchiver struct {
	messages  MessageReader
	memory    *RAGService
	scheduler Scheduler
	threshold int
	logger    *zap.Logger
}

func NewMemoryArchiver(messages MessageReader, memory *RAGService, scheduler Scheduler, threshold int, logger *zap.Logger) *MemoryArchiver {
	return &MemoryArchiver{
		messages:  messages,
		memory:    memory,
		scheduler: scheduler,
		threshold: threshold,
		logger:    logger,
	}
}

// MaybeArchive schedules the window [messageCount-threshold, messageCount)
// when messageCount is a positive multiple of the threshold. It reports
// whether a unit was scheduled.
func (a *MemoryArchiver) MaybeArchive(sessionID string, messageCount int) bool {
	if messageCount <= 0 || messageCount%a.threshold != 0 {
		return false
	}
	skip := messageCount - a.threshold
	a.scheduler.Schedule(fmt.Sprintf("archive:%s:%d", sessionID, skip), func(ctx context.Context) {
		n, err := a.ArchiveWindow(ctx, sessionID, skip, a.threshold)
		if err != nil {
			archiveUnitsTotal.WithLabelValues("error").Inc()
			a.logger.Error("archival failed",
				zap.String("session_id", sessionID), zap.Int("skip", skip), zap.Int("archived", n), zap.Error(err))
			return
		}
		archiveUnitsTotal.WithLabelValues("success").Inc()
		a.logger.Info("archived message window",
			zap.String("session_id", sessionID), zap.Int("skip", skip), zap.Int("archived", n))
	})
	return true
}

// ArchiveWindow indexes up to limit messages of the session starting at skip,
// oldest first. Entries are keyed by message id, so repeating a window is safe.
func (a *MemoryArchiver) ArchiveWindow(ctx context.Context, sessionID string, skip, limit int) (int, error) {
	msgs, err := a.messages.GetMessages(ctx, sessionID, limit, skip, false)
	if err != nil {
		return 0, err
	}
	for i, msg := range msgs {
		if err := a.memory.IndexMessage(ctx, msg); err != nil {
			return i, err
		}
		archivedMessagesTotal.Inc()
	}
	return len(msgs), nil
}
