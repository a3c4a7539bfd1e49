// Package authenticator issues and checks song signatures. It joins a signer,
// a verifier and an optional ledger into the operations the CLI and the job
// worker expose.
package authenticator

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/keys"
	"github.com/dharsanguruparan/songauth/internal/model"
	"github.com/dharsanguruparan/songauth/internal/repository"
	"github.com/dharsanguruparan/songauth/internal/signing"
	"github.com/dharsanguruparan/songauth/internal/storage"
)

var (
	// ErrNotFound is returned by Lookup for unknown record ids.
	ErrNotFound = errors.New("signature record not found")
	// ErrDuplicate is returned when a record id was already issued.
	ErrDuplicate = errors.New("signature record already exists")
	// ErrNoLedger is returned by Lookup when no ledger is configured.
	ErrNoLedger = errors.New("no signature ledger configured")
)

// LedgerError reports a failure to store an issued signature. Signing itself
// succeeded, so callers may retry.
type LedgerError struct {
	ID  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("record signature %s: %v", e.ID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Ledger persists issued signatures. storage.MemoryStore and
// repository.SignatureRepository both satisfy it.
type Ledger interface {
	Save(ctx context.Context, rec *model.SignatureRecord) error
	Get(ctx context.Context, id string) (*model.SignatureRecord, error)
	FindBySignature(ctx context.Context, signature string) ([]*model.SignatureRecord, error)
}

// Authenticator signs song names and verifies their signatures.
type Authenticator struct {
	signer      *signing.Signer
	verifier    *signing.Verifier
	ledger      Ledger
	fingerprint string
	logger      *zap.Logger
	now         func() time.Time
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithLedger records every issued signature in l.
func WithLedger(l Ledger) Option {
	return func(a *Authenticator) { a.ledger = l }
}

// WithVerifier checks signatures with v instead of the signer's own public key.
func WithVerifier(v *signing.Verifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// New builds an Authenticator around signer.
func New(signer *signing.Signer, opts ...Option) (*Authenticator, error) {
	if signer == nil {
		return nil, signing.ErrNilKey
	}
	fp, err := keys.Fingerprint(signer.Public())
	if err != nil {
		return nil, err
	}
	a := &Authenticator{
		signer:      signer,
		verifier:    signer.Verifier(),
		fingerprint: fp,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("authenticator")
	return a, nil
}

// Fingerprint identifies the signing key.
func (a *Authenticator) Fingerprint() string { return a.fingerprint }

// Sign returns the hex signature of name without touching the ledger.
func (a *Authenticator) Sign(name string) (string, error) {
	return a.signer.Sign([]byte(name))
}

// Authenticate signs message under a fresh record id and stores the record.
func (a *Authenticator) Authenticate(ctx context.Context, message []byte) (*model.SignatureRecord, error) {
	return a.AuthenticateWithID(ctx, uuid.NewString(), message)
}

// AuthenticateWithID signs message and stores the record under id. Job
// handlers use it so the id handed out at enqueue time is the one persisted.
func (a *Authenticator) AuthenticateWithID(ctx context.Context, id string, message []byte) (*model.SignatureRecord, error) {
	sig, err := a.signer.Sign(message)
	if err != nil {
		return nil, err
	}
	rec := &model.SignatureRecord{
		ID:             id,
		Message:        bytes.Clone(message),
		Digest:         DigestHex(message),
		Signature:      sig,
		Scheme:         string(a.signer.Scheme()),
		KeyFingerprint: a.fingerprint,
		CreatedAt:      a.now(),
	}
	if a.ledger != nil {
		if err := a.ledger.Save(ctx, rec); err != nil {
			return nil, &LedgerError{ID: id, Err: ledgerErr(err)}
		}
	}
	a.logger.Debug("song signed", zap.String("id", id), zap.Int("message_bytes", len(message)))
	return rec, nil
}

// DigestHex is the hex SHA-256 of message as kept in SignatureRecord.Digest.
func DigestHex(message []byte) string {
	return hex.EncodeToString(signing.Digest(message))
}

// Check reports whether signature is valid for name.
func (a *Authenticator) Check(_ context.Context, name, signature string) bool {
	return a.verifier.Verify([]byte(name), signature)
}

// Lookup fetches a ledger record.
func (a *Authenticator) Lookup(ctx context.Context, id string) (*model.SignatureRecord, error) {
	if a.ledger == nil {
		return nil, ErrNoLedger
	}
	rec, err := a.ledger.Get(ctx, id)
	if err != nil {
		return nil, ledgerErr(err)
	}
	return rec, nil
}

// Issued returns the ledger records that carry signature, oldest first.
func (a *Authenticator) Issued(ctx context.Context, signature string) ([]*model.SignatureRecord, error) {
	if a.ledger == nil {
		return nil, ErrNoLedger
	}
	return a.ledger.FindBySignature(ctx, signature)
}

func ledgerErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicate
	}
	return err
}
