package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/shared/metrics"
	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// Store is the slice of the durable store the recorder writes to.
type Store interface {
	InsertUsageLog(ctx context.Context, log *models.UsageLog) error
	IncrementUsage(ctx context.Context, keyID string, tokens int64) error
	MarkLastUsed(ctx context.Context, keyID string) error
}

// ErrAtomicUnavailable is returned by stores whose backend cannot
// provide the single-operation rollover increment. The recorder then
// degrades to a best-effort non-atomic increment instead of dropping
// the usage on the floor.
var ErrAtomicUnavailable = errors.New("atomic usage increment unavailable")

// BestEffortIncrementer is implemented by stores that offer a
// non-atomic fallback increment.
type BestEffortIncrementer interface {
	IncrementUsageBestEffort(ctx context.Context, keyID string, tokens int64) error
}

// Entry is one completed request's usage.
type Entry struct {
	KeyID            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Endpoint         string
	LatencyMs        float64
}

// Recorder commits usage to the store off the response path. Record
// never blocks: entries go into a bounded queue drained by worker
// goroutines, and when the queue is full the entry is dropped with a
// log line and a metric bump. Store failures are logged and swallowed;
// they must never surface to the request that already completed.
type Recorder struct {
	store  Store
	logger *logrus.Logger
	queue  chan Entry
	wg     sync.WaitGroup

	// mu serializes intake against Close so a submit can never hit a
	// closed channel.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

const opTimeout = 10 * time.Second

// NewRecorder starts workers goroutines draining a queue of queueSize.
func NewRecorder(store Store, logger *logrus.Logger, workers, queueSize int) *Recorder {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan Entry, queueSize),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Record submits an entry and returns immediately. After Close it is a
// no-op.
func (r *Recorder) Record(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		metrics.UsageQueueDropped.Inc()
		r.logger.WithField("key_id", e.KeyID).Warn("usage queue full, dropping record")
	}
}

// Close stops intake and waits for queued entries to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for e := range r.queue {
		r.process(e)
	}
}

// process runs the three accounting steps in order. A later step
// failing never rolls back an earlier one: if the log write lands but
// the increment fails the request under-counts, which is the accepted
// tradeoff.
func (r *Recorder) process(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	log := &models.UsageLog{
		APIKeyID:         e.KeyID,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		Endpoint:         e.Endpoint,
		ResponseTimeMs:   e.LatencyMs,
	}
	if err := r.store.InsertUsageLog(ctx, log); err != nil {
		r.logger.WithError(err).WithField("key_id", e.KeyID).Error("usage log write failed")
	}

	if err := r.store.IncrementUsage(ctx, e.KeyID, int64(e.TotalTokens)); err != nil {
		if errors.Is(err, ErrAtomicUnavailable) {
			r.incrementBestEffort(ctx, e)
		} else {
			r.logger.WithError(err).WithField("key_id", e.KeyID).Error("usage increment failed")
		}
	} else {
		metrics.UsageTokensRecorded.Add(float64(e.TotalTokens))
	}

	if err := r.store.MarkLastUsed(ctx, e.KeyID); err != nil {
		r.logger.WithError(err).WithField("key_id", e.KeyID).Error("last-used update failed")
	}
}

func (r *Recorder) incrementBestEffort(ctx context.Context, e Entry) {
	be, ok := r.store.(BestEffortIncrementer)
	if !ok {
		r.logger.WithField("key_id", e.KeyID).Error("atomic increment unavailable and no fallback, usage lost")
		return
	}
	r.logger.WithField("key_id", e.KeyID).Warn("atomic increment unavailable, falling back to non-atomic update")
	if err := be.IncrementUsageBestEffort(ctx, e.KeyID, int64(e.TotalTokens)); err != nil {
		r.logger.WithError(err).WithField("key_id", e.KeyID).Error("best-effort usage increment failed")
		return
	}
	metrics.UsageTokensRecorded.Add(float64(e.TotalTokens))
}
