package services

import (
	"context"
	"sync"
	"time"

	"consult_gateway_go_backend/internal/metrics"

	"github.com/rs/zerolog"
)

type SummaryResult struct {
	ConversationID string
	Summary        string
	Err            error
	Duration       time.Duration
}

// SummaryWorker generates post-session summaries off the request path.
// Workers read conversation ids from a job channel and report over a result
// channel; a collector persists successful summaries. Nothing here can undo a
// settlement.
type SummaryWorker struct {
	conversations ConversationServiceDB
	store         BillingServiceDB
	summarizer    Summarizer
	timeout       time.Duration
	workers       int
	logger        zerolog.Logger

	jobs      chan string
	results   chan SummaryResult
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	collector sync.WaitGroup
	onResult  func(SummaryResult)
}

func NewSummaryWorker(
	conversations ConversationServiceDB,
	store BillingServiceDB,
	summarizer Summarizer,
	workers int,
	queueSize int,
	timeout time.Duration,
	logger zerolog.Logger,
) *SummaryWorker {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &SummaryWorker{
		conversations: conversations,
		store:         store,
		summarizer:    summarizer,
		timeout:       timeout,
		workers:       workers,
		logger:        logger.With().Str("component", "summary_worker").Logger(),
		jobs:          make(chan string, queueSize),
		results:       make(chan SummaryResult, queueSize),
	}
}

// OnResult registers a hook called by the collector after each job. Set it before Start.
func (w *SummaryWorker) OnResult(fn func(SummaryResult)) {
	w.onResult = fn
}

func (w *SummaryWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.work(ctx)
	}
	w.collector.Add(1)
	go w.collect(ctx)
}

// Enqueue schedules a conversation without blocking. It reports false when
// the queue is full or the worker has stopped.
func (w *SummaryWorker) Enqueue(conversationID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- conversationID:
		return true
	default:
		return false
	}
}

// Stop drains queued jobs and waits for the collector to finish.
func (w *SummaryWorker) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.results)
	w.collector.Wait()
}

func (w *SummaryWorker) work(ctx context.Context) {
	defer w.wg.Done()
	for id := range w.jobs {
		w.results <- w.summarize(ctx, id)
	}
}

func (w *SummaryWorker) summarize(ctx context.Context, conversationID string) SummaryResult {
	start := time.Now()
	result := SummaryResult{ConversationID: conversationID}

	jobCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	transcript, err := w.conversations.ConversationTranscript(jobCtx, conversationID)
	if err != nil {
		result.Err = err
	} else {
		result.Summary, result.Err = w.summarizer.Summarize(jobCtx, transcript)
	}
	result.Duration = time.Since(start)
	return result
}

func (w *SummaryWorker) collect(ctx context.Context) {
	defer w.collector.Done()
	for result := range w.results {
		metrics.SummaryDuration.Observe(result.Duration.Seconds())
		if result.Err != nil {
			metrics.SummaryFailures.Inc()
			w.logger.Warn().Err(result.Err).Str("conversation_id", result.ConversationID).Msg("Summary generation failed")
		} else if err := w.store.AttachSummary(ctx, result.ConversationID, result.Summary); err != nil {
			result.Err = err
			metrics.SummaryFailures.Inc()
			w.logger.Error().Err(err).Str("conversation_id", result.ConversationID).Msg("Failed to store summary")
		} else {
			w.logger.Info().Str("conversation_id", result.ConversationID).Dur("took", result.Duration).Msg("Summary stored")
		}
		if w.onResult != nil {
			w.onResult(result)
		}
	}
}
