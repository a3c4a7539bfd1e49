// Package keysource fetches PEM key material from wherever a deployment keeps
// it: a file, an environment variable or an S3-compatible secrets bucket.
// Keys are read once at process start and handed to the signing package.
package keysource

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/config"
	"github.com/dharsanguruparan/songauth/internal/keys"
	"github.com/dharsanguruparan/songauth/internal/signing"
)

// ErrNoKey is returned when a source holds no key material.
var ErrNoKey = errors.New("no key material")

// Source returns raw PEM bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads a PEM file from disk.
type FileSource struct {
	Path string
}

// Fetch reads the file.
func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return data, nil
}

func (s FileSource) String() string { return "file:" + s.Path }

// EnvSource reads PEM text from an environment variable. Escaped newlines
// ("\n") are expanded because many secret injectors flatten values to a
// single line.
type EnvSource struct {
	Name string
}

// Fetch reads the variable.
func (s EnvSource) Fetch(_ context.Context) ([]byte, error) {
	v, ok := os.LookupEnv(s.Name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("%w: $%s is empty", ErrNoKey, s.Name)
	}
	if !strings.Contains(v, "\n") {
		v = strings.ReplaceAll(v, `\n`, "\n")
	}
	return []byte(v), nil
}

func (s EnvSource) String() string { return "env:" + s.Name }

// Pair names the sources of the private and public halves of a key.
type Pair struct {
	Private Source
	Public  Source
}

// FromConfig builds the sources selected by cfg.KeySource.
func FromConfig(cfg *config.Config) (Pair, error) {
	switch cfg.KeySource {
	case config.KeySourceFile:
		return Pair{
			Private: FileSource{Path: cfg.PrivateKeyPath},
			Public:  FileSource{Path: cfg.PublicKeyPath},
		}, nil
	case config.KeySourceEnv:
		return Pair{
			Private: EnvSource{Name: cfg.PrivateKeyEnv},
			Public:  EnvSource{Name: cfg.PublicKeyEnv},
		}, nil
	case config.KeySourceS3:
		store, err := NewObjectStore(cfg)
		if err != nil {
			return Pair{}, err
		}
		return Pair{
			Private: store.Object(cfg.PrivateKeyObject),
			Public:  store.Object(cfg.PublicKeyObject),
		}, nil
	default:
		return Pair{}, fmt.Errorf("unknown key source %q", cfg.KeySource)
	}
}

// LoadPrivateKey fetches and parses a private key.
func LoadPrivateKey(ctx context.Context, src Source, bits int) (*rsa.PrivateKey, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch private key from %s: %w", src, err)
	}
	return keys.ParsePrivateKey(data, bits)
}

// LoadPublicKey fetches and parses a public key.
func LoadPublicKey(ctx context.Context, src Source, bits int) (*rsa.PublicKey, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch public key from %s: %w", src, err)
	}
	return keys.ParsePublicKey(data, bits)
}

// LoadSigner loads the private key configured in cfg and returns a signer for
// it. The key fingerprint is logged so operators can tell which key is live.
func LoadSigner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*signing.Signer, error) {
	pair, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	scheme, err := signing.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	key, err := LoadPrivateKey(ctx, pair.Private, cfg.KeyBits)
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewSigner(key, scheme)
	if err != nil {
		return nil, err
	}
	fp, err := keys.Fingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	logger.Info("signing key loaded",
		zap.Stringer("source", pair.Private),
		zap.String("fingerprint", fp),
		zap.String("scheme", string(scheme)),
		zap.Int("signature_bytes", signer.Params().SignatureLength))
	return signer, nil
}

// LoadVerifier loads the public key configured in cfg. When the public source
// holds nothing it falls back to deriving the key from the private source, so
// a signing host needs only one secret.
func LoadVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*signing.Verifier, error) {
	pair, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	scheme, err := signing.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	pub, err := LoadPublicKey(ctx, pair.Public, cfg.KeyBits)
	if errors.Is(err, ErrNoKey) {
		logger.Debug("public key not found, deriving from private key", zap.Stringer("source", pair.Public))
		priv, privErr := LoadPrivateKey(ctx, pair.Private, cfg.KeyBits)
		if privErr != nil {
			return nil, fmt.Errorf("%w (fallback: %v)", err, privErr)
		}
		pub, err = &priv.PublicKey, nil
	}
	if err != nil {
		return nil, err
	}
	return signing.NewVerifier(pub, scheme)
}
