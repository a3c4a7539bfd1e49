package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dharsanguruparan/songauth/internal/authenticator"
	"github.com/dharsanguruparan/songauth/internal/keys"
	"github.com/dharsanguruparan/songauth/internal/model"
	"github.com/dharsanguruparan/songauth/internal/queue"
	"github.com/dharsanguruparan/songauth/internal/signing"
	"github.com/dharsanguruparan/songauth/internal/storage"
)

func newAuthenticator(t *testing.T, ledger authenticator.Ledger) *authenticator.Authenticator {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "song.pem"))
	require.NoError(t, err)
	key, err := keys.ParsePrivateKey(data, keys.DefaultBits)
	require.NoError(t, err)
	signer, err := signing.NewSigner(key, signing.SchemeRaw)
	require.NoError(t, err)
	auth, err := authenticator.New(signer, authenticator.WithLedger(ledger))
	require.NoError(t, err)
	return auth
}

func signTask(t *testing.T, id, message string) *asynq.Task {
	t.Helper()
	task, err := queue.NewSignTask(queue.SignPayload{RecordID: id, Message: []byte(message)})
	require.NoError(t, err)
	return task
}

func TestHandleSignStoresRecord(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryStore()
	auth := newAuthenticator(t, ledger)
	p := NewProcessor(auth, zaptest.NewLogger(t))

	require.NoError(t, p.handleSign(ctx, signTask(t, "rec-1", "Blue Moon")))

	rec, err := ledger.Get(ctx, "rec-1")
	require.NoError(t, err)
	require.Equal(t, []byte("Blue Moon"), rec.Message)
	require.True(t, auth.Check(ctx, "Blue Moon", rec.Signature))

	// Redelivery of a finished task is acknowledged.
	require.NoError(t, p.handleSign(ctx, signTask(t, "rec-1", "Blue Moon")))
}

func TestHandleSignRejectsReusedIDWithOtherMessage(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryStore()
	p := NewProcessor(newAuthenticator(t, ledger), zaptest.NewLogger(t))

	require.NoError(t, p.handleSign(ctx, signTask(t, "rec-4", "Blue Moon")))

	err := p.handleSign(ctx, signTask(t, "rec-4", "Red Moon"))
	require.ErrorIs(t, err, ErrRecordConflict)
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec, err := ledger.Get(ctx, "rec-4")
	require.NoError(t, err)
	require.Equal(t, []byte("Blue Moon"), rec.Message)
}

func TestHandleSignKeepsBinaryMessage(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryStore()
	p := NewProcessor(newAuthenticator(t, ledger), zaptest.NewLogger(t))

	message := "song\xff\xfe\x00end"
	require.NoError(t, p.handleSign(ctx, signTask(t, "rec-5", message)))

	rec, err := ledger.Get(ctx, "rec-5")
	require.NoError(t, err)
	require.Equal(t, []byte(message), rec.Message)
	require.Equal(t, authenticator.DigestHex([]byte(message)), rec.Digest)
	require.NoError(t, p.handleSign(ctx, signTask(t, "rec-5", message)))
}

func TestHandleSignSkipsRetryOnBadPayload(t *testing.T) {
	p := NewProcessor(newAuthenticator(t, storage.NewMemoryStore()), zaptest.NewLogger(t))
	err := p.handleSign(context.Background(), asynq.NewTask(queue.SignTask, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type brokenLedger struct{}

var errDown = errors.New("database down")

func (brokenLedger) Save(context.Context, *model.SignatureRecord) error { return errDown }
func (brokenLedger) Get(context.Context, string) (*model.SignatureRecord, error) {
	return nil, errDown
}
func (brokenLedger) FindBySignature(context.Context, string) ([]*model.SignatureRecord, error) {
	return nil, errDown
}

func TestHandleSignRetriesLedgerFailures(t *testing.T) {
	p := NewProcessor(newAuthenticator(t, brokenLedger{}), zaptest.NewLogger(t))
	err := p.handleSign(context.Background(), signTask(t, "rec-2", "song"))
	require.ErrorIs(t, err, errDown)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerRoutesSignTask(t *testing.T) {
	ledger := storage.NewMemoryStore()
	p := NewProcessor(newAuthenticator(t, ledger), zaptest.NewLogger(t))
	require.NoError(t, p.Handler().ProcessTask(context.Background(), signTask(t, "rec-3", "song")))
	_, err := ledger.Get(context.Background(), "rec-3")
	require.NoError(t, err)
}
