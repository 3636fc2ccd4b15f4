package assistant_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/pdftest"
	"github.com/xhad/pdfchat/internal/types"
	"github.com/xhad/pdfchat/pkg/assistant"
)

var fastRetry = assistant.RetryPolicy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}

func TestIngester_Submit(t *testing.T) {
	a := newAssistant(t, new(mockResponder), assistant.Config{})
	in := assistant.NewIngester(a.Ingest, 2, fastRetry)
	defer in.Close()

	results := []<-chan models.IngestResult{
		in.Submit(context.Background(), assistant.IngestRequest{Data: pdftest.Build("One."), Filename: "one.pdf"}),
		in.Submit(context.Background(), assistant.IngestRequest{Data: pdftest.Build("Two.", "Three."), Filename: "two.pdf"}),
		in.Submit(context.Background(), assistant.IngestRequest{Data: []byte("junk"), Filename: "junk.pdf"}),
	}

	one := <-results[0]
	require.NoError(t, one.Err)
	assert.Equal(t, 1, one.ChunksIndexed)

	two := <-results[1]
	require.NoError(t, two.Err)
	assert.Equal(t, 2, two.ChunksIndexed)

	junk := <-results[2]
	assert.ErrorIs(t, junk.Err, types.ErrExtraction)
	assert.Equal(t, "junk.pdf", junk.Filename)
}

func TestIngester_RetriesUnavailableIndex(t *testing.T) {
	var calls atomic.Int32
	ingest := func(_ context.Context, req assistant.IngestRequest) (models.IngestResult, error) {
		if calls.Add(1) < 3 {
			return models.IngestResult{}, types.Unavailable("commit", errors.New("connection reset"))
		}
		return models.IngestResult{Filename: req.Filename, ChunksIndexed: 4}, nil
	}

	in := assistant.NewIngester(ingest, 1, fastRetry)
	defer in.Close()

	res, err := in.IngestWait(context.Background(), assistant.IngestRequest{Filename: "a.pdf"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, res.ChunksIndexed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIngester_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	ingest := func(context.Context, assistant.IngestRequest) (models.IngestResult, error) {
		calls.Add(1)
		return models.IngestResult{}, types.Unavailable("connect", errors.New("no route to host"))
	}

	in := assistant.NewIngester(ingest, 1, fastRetry)
	defer in.Close()

	_, err := in.IngestWait(context.Background(), assistant.IngestRequest{Filename: "a.pdf"}, time.Second)
	assert.ErrorIs(t, err, types.ErrIndexUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIngester_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	ingest := func(context.Context, assistant.IngestRequest) (models.IngestResult, error) {
		calls.Add(1)
		return models.IngestResult{}, &types.ExtractionError{Filename: "a.pdf", Err: errors.New("bad xref")}
	}

	in := assistant.NewIngester(ingest, 1, fastRetry)
	defer in.Close()

	_, err := in.IngestWait(context.Background(), assistant.IngestRequest{Filename: "a.pdf"}, time.Second)
	assert.ErrorIs(t, err, types.ErrExtraction)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIngester_WaitExpires(t *testing.T) {
	release := make(chan struct{})
	ingest := func(context.Context, assistant.IngestRequest) (models.IngestResult, error) {
		<-release
		return models.IngestResult{ChunksIndexed: 1}, nil
	}

	in := assistant.NewIngester(ingest, 1, fastRetry)
	_, err := in.IngestWait(context.Background(), assistant.IngestRequest{Filename: "slow.pdf"}, 20*time.Millisecond)
	assert.ErrorContains(t, err, "still running")

	close(release)
	in.Close()
}

func TestIngester_Closed(t *testing.T) {
	in := assistant.NewIngester(func(context.Context, assistant.IngestRequest) (models.IngestResult, error) {
		return models.IngestResult{}, nil
	}, 1, fastRetry)
	in.Close()
	in.Close()

	res := <-in.Submit(context.Background(), assistant.IngestRequest{Filename: "late.pdf"})
	assert.ErrorIs(t, res.Err, assistant.ErrIngesterClosed)
}
