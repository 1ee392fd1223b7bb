package llm

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

// Recorder persists LLM call records off the critical path. Records flow
// through a bounded channel into a single writer goroutine; when the buffer
// is full the record is dropped with a warning rather than blocking a
// pipeline stage on history bookkeeping.
type Recorder struct {
	storage interfaces.LLMCallStorage
	logger  arbor.ILogger
	ch      chan *models.LLMCallRecord
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder creates a call recorder with the given buffer size and starts
// its writer goroutine.
func NewRecorder(storage interfaces.LLMCallStorage, bufferSize int, logger arbor.ILogger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &Recorder{
		storage: storage,
		logger:  logger,
		ch:      make(chan *models.LLMCallRecord, bufferSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

var _ interfaces.CallRecorder = (*Recorder)(nil)

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.ch {
		if err := r.storage.Append(context.Background(), rec); err != nil {
			r.logger.Warn().Err(err).
				Str("task_type", rec.TaskType).
				Msg("Failed to persist LLM call record")
		}
	}
}

// Record queues a call record for persistence. Never blocks.
func (r *Recorder) Record(rec *models.LLMCallRecord) {
	if rec == nil {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.logger.Warn().
			Str("task_type", rec.TaskType).
			Msg("LLM call history buffer full, dropping record")
	}
}

// Close drains pending records and stops the writer goroutine.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
}
