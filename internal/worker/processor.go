package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/authenticator"
	"github.com/dharsanguruparan/songauth/internal/queue"
)

// ErrRecordConflict is returned when a task reuses a record id that already
// holds a different message.
var ErrRecordConflict = errors.New("record id holds a different message")

// Processor is plugged into the asynq worker loop.
type Processor struct {
	auth   *authenticator.Authenticator
	logger *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(auth *authenticator.Authenticator, logger *zap.Logger) *Processor {
	return &Processor{auth: auth, logger: logger.Named("worker")}
}

// Handler registers the sign job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SignTask, p.handleSign)
	return mux
}

func (p *Processor) handleSign(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseSignPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(zap.String("record_id", payload.RecordID))

	rec, err := p.auth.AuthenticateWithID(ctx, payload.RecordID, payload.Message)
	switch {
	case err == nil:
		log.Info("song signed", zap.String("fingerprint", rec.KeyFingerprint))
		return nil
	case errors.Is(err, authenticator.ErrDuplicate):
		return p.checkExisting(ctx, log, payload)
	case errors.As(err, new(*authenticator.LedgerError)):
		log.Warn("saving signature failed, will retry", zap.Error(err))
		return err
	default:
		// Signing is deterministic; retrying cannot help.
		log.Error("signing failed", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

// checkExisting accepts a redelivered task only when the stored record holds
// the same message. A reused id with another message is a permanent failure.
func (p *Processor) checkExisting(ctx context.Context, log *zap.Logger, payload queue.SignPayload) error {
	existing, err := p.auth.Lookup(ctx, payload.RecordID)
	if err != nil {
		log.Warn("reading existing record failed, will retry", zap.Error(err))
		return fmt.Errorf("lookup record %s: %w", payload.RecordID, err)
	}
	if existing.Digest != authenticator.DigestHex(payload.Message) {
		log.Error("record id already used for another message")
		return fmt.Errorf("%w: %s: %w", ErrRecordConflict, payload.RecordID, asynq.SkipRetry)
	}
	log.Info("record already signed")
	return nil
}
