// Package keys decodes and encodes the RSA key material used by the signer.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// DefaultBits is the modulus size of song signing keys.
const DefaultBits = 2048

// MinBits is the smallest modulus accepted when no exact size is requested.
const MinBits = 2048

const (
	blockRSAPrivate = "RSA PRIVATE KEY"
	blockPrivate    = "PRIVATE KEY"
	blockPublic     = "PUBLIC KEY"
	blockRSAPublic  = "RSA PUBLIC KEY"
)

var (
	// ErrNoPEMBlock means the input held no PEM data at all.
	ErrNoPEMBlock = errors.New("no PEM block found")
	// ErrUnsupportedBlock means the PEM block type is not an RSA key type.
	ErrUnsupportedBlock = errors.New("unsupported PEM block type")
	// ErrNotRSA means the block decoded to a non-RSA key.
	ErrNotRSA = errors.New("key is not RSA")
	// ErrKeySize means the modulus has the wrong length.
	ErrKeySize = errors.New("unexpected key size")
)

// KeyLoadError reports malformed or unsupported key material. Op names the
// step that failed.
type KeyLoadError struct {
	Op  string
	Err error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("load key: %s: %v", e.Op, e.Err)
}

func (e *KeyLoadError) Unwrap() error { return e.Err }

func loadErr(op string, err error) error {
	return &KeyLoadError{Op: op, Err: err}
}

// ParsePrivateKey decodes a PEM "RSA PRIVATE KEY" (PKCS#1) or "PRIVATE KEY"
// (PKCS#8) block. When bits is non-zero the modulus must be exactly that size;
// otherwise it must be at least MinBits.
func ParsePrivateKey(pemData []byte, bits int) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, loadErr("decode private key", ErrNoPEMBlock)
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case blockRSAPrivate:
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, loadErr("parse PKCS#1 private key", err)
		}
		key = k
	case blockPrivate:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, loadErr("parse PKCS#8 private key", err)
		}
		k, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, loadErr("parse PKCS#8 private key", fmt.Errorf("%w: %T", ErrNotRSA, parsed))
		}
		key = k
	default:
		return nil, loadErr("decode private key", fmt.Errorf("%w: %q", ErrUnsupportedBlock, block.Type))
	}
	if err := key.Validate(); err != nil {
		return nil, loadErr("validate private key", err)
	}
	if err := checkSize(key.N.BitLen(), bits); err != nil {
		return nil, loadErr("check private key", err)
	}
	return key, nil
}

// ParsePublicKey decodes a PEM "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY" block.
// Some tools write PKIX content under the RSA label, so both encodings are
// tried for it.
func ParsePublicKey(pemData []byte, bits int) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, loadErr("decode public key", ErrNoPEMBlock)
	}
	var key *rsa.PublicKey
	switch block.Type {
	case blockPublic:
		k, err := parsePKIX(block.Bytes)
		if err != nil {
			return nil, loadErr("parse PKIX public key", err)
		}
		key = k
	case blockRSAPublic:
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			var pkixErr error
			if k, pkixErr = parsePKIX(block.Bytes); pkixErr != nil {
				return nil, loadErr("parse PKCS#1 public key", err)
			}
		}
		key = k
	default:
		return nil, loadErr("decode public key", fmt.Errorf("%w: %q", ErrUnsupportedBlock, block.Type))
	}
	if err := checkSize(key.N.BitLen(), bits); err != nil {
		return nil, loadErr("check public key", err)
	}
	return key, nil
}

func parsePKIX(der []byte) (*rsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotRSA, parsed)
	}
	return key, nil
}

func checkSize(got, want int) error {
	if want == 0 {
		if got < MinBits {
			return fmt.Errorf("%w: %d bits, minimum %d", ErrKeySize, got, MinBits)
		}
		return nil
	}
	if got != want {
		return fmt.Errorf("%w: %d bits, want %d", ErrKeySize, got, want)
	}
	return nil
}

// Generate creates a new RSA key of the given size.
func Generate(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultBits
	}
	if bits < MinBits {
		return nil, fmt.Errorf("%w: %d bits, minimum %d", ErrKeySize, bits, MinBits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return key, nil
}

// EncodePrivateKey returns key as a PKCS#1 "RSA PRIVATE KEY" PEM block.
func EncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  blockRSAPrivate,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicKey returns key as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKey(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: blockPublic, Bytes: der}), nil
}

// Fingerprint is the hex SHA-256 of the PKIX DER encoding of key. It names a
// key in logs and ledger records without revealing anything secret.
func Fingerprint(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}
