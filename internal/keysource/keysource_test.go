package keysource

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dharsanguruparan/songauth/internal/config"
	"github.com/dharsanguruparan/songauth/internal/keys"
	"github.com/dharsanguruparan/songauth/internal/signing"
)

const rainMessage = "The rain in Spain falls mainly on the Plain"

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", name)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	require.NoError(t, err)
	return data
}

func fileConfig() *config.Config {
	return &config.Config{
		Scheme:         string(signing.SchemeRaw),
		KeyBits:        keys.DefaultBits,
		KeySource:      config.KeySourceFile,
		PrivateKeyPath: fixturePath("song.pem"),
		PublicKeyPath:  fixturePath("song.pub.pem"),
	}
}

func TestFileSource(t *testing.T) {
	data, err := FileSource{Path: fixturePath("song.pem")}.Fetch(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(data), "BEGIN RSA PRIVATE KEY")

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.pem")}.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoKey)

	_, err = FileSource{}.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoKey)
}

func TestEnvSource(t *testing.T) {
	pemText := string(readFixture(t, "song.pem"))

	t.Setenv("TEST_SONG_KEY", pemText)
	data, err := EnvSource{Name: "TEST_SONG_KEY"}.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, pemText, string(data))

	t.Setenv("TEST_SONG_KEY", strings.ReplaceAll(pemText, "\n", `\n`))
	data, err = EnvSource{Name: "TEST_SONG_KEY"}.Fetch(context.Background())
	require.NoError(t, err)
	_, err = keys.ParsePrivateKey(data, keys.DefaultBits)
	require.NoError(t, err)

	t.Setenv("TEST_SONG_KEY", "  ")
	_, err = EnvSource{Name: "TEST_SONG_KEY"}.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoKey)
}

// fakeS3 serves objects over the path-style S3 API. PUT stores the raw
// request body, which the client may have chunk-encoded.
type fakeS3 struct {
	*httptest.Server
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool
}

func newFakeS3(t *testing.T, objects map[string][]byte) *fakeS3 {
	t.Helper()
	f := &fakeS3{objects: objects, buckets: map[string]bool{}}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := strings.Trim(r.URL.Path, "/")
	isBucket := !strings.Contains(bucket, "/")

	switch {
	case isBucket && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case isBucket && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	default:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(data)
		}
	}
}

func s3Config(endpoint string) *config.Config {
	return &config.Config{
		Scheme:           string(signing.SchemeRaw),
		KeyBits:          keys.DefaultBits,
		KeySource:        config.KeySourceS3,
		S3Endpoint:       strings.TrimPrefix(endpoint, "http://"),
		S3AccessKey:      "minio",
		S3SecretKey:      "minio123",
		S3Region:         "us-east-1",
		KeyBucket:        "songauth-keys",
		PrivateKeyObject: "signing/private.pem",
		PublicKeyObject:  "signing/public.pem",
	}
}

func TestObjectSource(t *testing.T) {
	srv := newFakeS3(t, map[string][]byte{
		"/songauth-keys/signing/private.pem": readFixture(t, "song.pem"),
	})
	cfg := s3Config(srv.URL)

	pair, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "s3://songauth-keys/signing/private.pem", pair.Private.String())

	key, err := LoadPrivateKey(context.Background(), pair.Private, keys.DefaultBits)
	require.NoError(t, err)
	require.Equal(t, 2048, key.N.BitLen())

	_, err = pair.Public.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoKey)
}

func TestLoadSignerFromS3(t *testing.T) {
	srv := newFakeS3(t, map[string][]byte{
		"/songauth-keys/signing/private.pem": readFixture(t, "song.pem"),
	})
	cfg := s3Config(srv.URL)
	logger := zaptest.NewLogger(t)

	signer, err := LoadSigner(context.Background(), cfg, logger)
	require.NoError(t, err)

	// No public object: the verifier falls back to the private key.
	verifier, err := LoadVerifier(context.Background(), cfg, logger)
	require.NoError(t, err)

	sig, err := signer.Sign([]byte(rainMessage))
	require.NoError(t, err)
	require.True(t, verifier.Verify([]byte(rainMessage), sig))
}

func TestLoadSignerAndVerifierFromFiles(t *testing.T) {
	cfg := fileConfig()
	logger := zaptest.NewLogger(t)

	signer, err := LoadSigner(context.Background(), cfg, logger)
	require.NoError(t, err)
	verifier, err := LoadVerifier(context.Background(), cfg, logger)
	require.NoError(t, err)

	sig, err := signer.Sign([]byte(rainMessage))
	require.NoError(t, err)
	require.Len(t, sig, 512)
	require.True(t, verifier.Verify([]byte(rainMessage), sig))
}

func TestLoadSignerErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := fileConfig()
	cfg.PrivateKeyPath = fixturePath("song.pub.pem")
	_, err := LoadSigner(context.Background(), cfg, logger)
	var loadErr *keys.KeyLoadError
	require.ErrorAs(t, err, &loadErr)

	cfg = fileConfig()
	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "absent.pem")
	_, err = LoadSigner(context.Background(), cfg, logger)
	require.ErrorIs(t, err, ErrNoKey)

	cfg = fileConfig()
	cfg.Scheme = "rsa-md5"
	_, err = LoadSigner(context.Background(), cfg, logger)
	require.ErrorIs(t, err, signing.ErrUnknownScheme)

	cfg = fileConfig()
	cfg.KeySource = "vault"
	_, err = LoadSigner(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "unknown key source")
}

func TestLoadVerifierWithoutAnyKey(t *testing.T) {
	cfg := fileConfig()
	dir := t.TempDir()
	cfg.PrivateKeyPath = filepath.Join(dir, "a.pem")
	cfg.PublicKeyPath = filepath.Join(dir, "b.pem")
	_, err := LoadVerifier(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrNoKey)
}

func TestObjectStoreUpload(t *testing.T) {
	srv := newFakeS3(t, nil)
	cfg := s3Config(srv.URL)
	ctx := context.Background()

	store, err := NewObjectStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))
	require.True(t, srv.buckets["songauth-keys"])
	// A second call finds the bucket.
	require.NoError(t, store.EnsureBucket(ctx))

	pemData := readFixture(t, "song.pub.pem")
	require.NoError(t, store.Object(cfg.PublicKeyObject).Put(ctx, pemData))
	stored := srv.objects["/songauth-keys/signing/public.pem"]
	require.Contains(t, string(stored), "BEGIN PUBLIC KEY")
}
