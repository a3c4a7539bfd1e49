// Package processing signs batches of messages on a fixed set of goroutines
// that share one signer.
package processing

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SignFunc signs one message and returns its hex signature.
type SignFunc func(message string) (string, error)

type job struct {
	index   int
	message string
}

// Result is the outcome for one input message. Results keep input order.
type Result struct {
	Message   string
	Signature string
	Err       error
}

// Pool fans signing work out to a bounded number of workers.
type Pool struct {
	sign    SignFunc
	workers int
	logger  *zap.Logger
}

// New builds a Pool with the given worker count; values below one mean one.
func New(sign SignFunc, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{sign: sign, workers: workers, logger: logger.Named("pool")}
}

// Workers returns the number of goroutines used per batch.
func (p *Pool) Workers() int { return p.workers }

// SignAll signs every message and returns results in input order. A failed
// message carries its error in Result.Err and does not stop the batch. When
// ctx is cancelled no further messages are started and ctx.Err() is returned.
func (p *Pool) SignAll(ctx context.Context, messages []string) ([]Result, error) {
	results := make([]Result, len(messages))
	if len(messages) == 0 {
		return results, nil
	}
	workers := p.workers
	if workers > len(messages) {
		workers = len(messages)
	}

	jobs := make(chan job)
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := range jobs {
				sig, err := p.sign(j.message)
				if err != nil {
					err = fmt.Errorf("message %d: %w", j.index, err)
				}
				// Each index is written by exactly one worker.
				results[j.index] = Result{Message: j.message, Signature: sig, Err: err}
			}
		}()
	}

	var cancelled error
feed:
	for i, msg := range messages {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- job{index: i, message: msg}:
		}
	}
	close(jobs)
	for i := 0; i < workers; i++ {
		<-done
	}
	if cancelled != nil {
		p.logger.Warn("batch cancelled", zap.Int("messages", len(messages)), zap.Error(cancelled))
		return nil, cancelled
	}
	p.logger.Debug("batch signed", zap.Int("messages", len(messages)), zap.Int("workers", workers))
	return results, nil
}
