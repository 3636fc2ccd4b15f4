package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

// ErrIngesterClosed is returned for jobs submitted after Close.
var ErrIngesterClosed = errors.New("ingester closed")

// IngestFunc indexes one document. (*Assistant).Ingest is the usual one.
type IngestFunc func(ctx context.Context, req IngestRequest) (models.IngestResult, error)

type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Backoff:    200 * time.Millisecond,
	MaxBackoff: 2 * time.Second,
}

type ingestJob struct {
	ctx    context.Context
	req    IngestRequest
	result chan models.IngestResult
}

// Ingester runs ingestion on a fixed pool of background workers so a long
// document never blocks the goroutine answering questions.
type Ingester struct {
	ingest IngestFunc
	retry  RetryPolicy
	jobs   chan ingestJob
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewIngester(ingest IngestFunc, workers int, retry RetryPolicy) *Ingester {
	if workers <= 0 {
		workers = 1
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}

	in := &Ingester{
		ingest: ingest,
		retry:  retry,
		jobs:   make(chan ingestJob, workers*4),
	}
	for w := 0; w < workers; w++ {
		in.wg.Add(1)
		go in.worker(w)
	}
	return in
}

func (in *Ingester) worker(id int) {
	defer in.wg.Done()
	for job := range in.jobs {
		logger.Debug("ingest worker %d: %s", id, job.req.Filename)
		res, err := in.run(job.ctx, job.req)
		if err != nil {
			res.Err = err
		}
		job.result <- res
	}
}

// run calls ingest, retrying while the index reports itself unavailable.
func (in *Ingester) run(ctx context.Context, req IngestRequest) (models.IngestResult, error) {
	backoff := in.retry.Backoff
	for attempt := 1; ; attempt++ {
		res, err := in.ingest(ctx, req)
		if err == nil || !types.IsRetryable(err) || attempt >= in.retry.Attempts {
			return res, err
		}

		logger.Warn("ingest %s: attempt %d failed, retrying in %s: %v", req.Filename, attempt, backoff, err)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if in.retry.MaxBackoff > 0 && backoff > in.retry.MaxBackoff {
			backoff = in.retry.MaxBackoff
		}
	}
}

// Submit queues a document and returns a channel that receives exactly one
// result when ingestion finishes or fails.
func (in *Ingester) Submit(ctx context.Context, req IngestRequest) <-chan models.IngestResult {
	result := make(chan models.IngestResult, 1)
	fail := func(err error) <-chan models.IngestResult {
		result <- models.IngestResult{DocumentID: req.DocumentID, Filename: req.Filename, Err: err}
		return result
	}

	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return fail(ErrIngesterClosed)
	}

	select {
	case in.jobs <- ingestJob{ctx: ctx, req: req, result: result}:
		return result
	case <-ctx.Done():
		return fail(ctx.Err())
	}
}

// IngestWait submits req and waits at most wait for the result. The job keeps
// running in the background when the wait expires.
func (in *Ingester) IngestWait(ctx context.Context, req IngestRequest, wait time.Duration) (models.IngestResult, error) {
	result := in.Submit(ctx, req)

	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-result:
		return res, res.Err
	case <-timeout:
		return models.IngestResult{Filename: req.Filename}, fmt.Errorf("ingest %s: still running after %s", req.Filename, wait)
	case <-ctx.Done():
		return models.IngestResult{Filename: req.Filename}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (in *Ingester) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	close(in.jobs)
	in.mu.Unlock()

	in.wg.Wait()
}
