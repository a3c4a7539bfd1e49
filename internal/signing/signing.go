// Package signing implements the RSA signer used to authenticate songs. A
// signature is the SHA-256 digest of a message, padded PKCS#1 v1.5 style and
// raised to the private exponent; it travels as a fixed-width lowercase hex
// string.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Scheme selects the padding applied to the digest before the RSA operation.
type Scheme string

const (
	// SchemeRaw pads the bare digest (00 01 FF.. 00 digest) without an ASN.1
	// DigestInfo prefix. This is the format song players already verify.
	SchemeRaw Scheme = "pkcs1v15-raw"
	// SchemePKCS1v15 is RSASSA-PKCS1-v1_5 with a SHA-256 DigestInfo.
	SchemePKCS1v15 Scheme = "pkcs1v15-sha256"
	// SchemePSS is RSASSA-PSS with SHA-256 and a salt as long as the digest.
	// Signatures are randomized.
	SchemePSS Scheme = "pss-sha256"
)

// minPaddingBytes is the number of 0xFF bytes crypto/rsa insists on in a
// PKCS#1 v1.5 block.
const minPaddingBytes = 8

var (
	// ErrUnknownScheme is returned for a scheme name this package does not implement.
	ErrUnknownScheme = errors.New("unknown signature scheme")
	// ErrNilKey is returned when a signer or verifier is built without a key.
	ErrNilKey = errors.New("nil RSA key")
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// ParseScheme maps a wire name to a Scheme. The empty string selects SchemeRaw.
func ParseScheme(name string) (Scheme, error) {
	switch s := Scheme(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return SchemeRaw, nil
	case SchemeRaw, SchemePKCS1v15, SchemePSS:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// Deterministic reports whether signing the same message twice with the same
// key yields the same signature.
func (s Scheme) Deterministic() bool {
	return s == SchemeRaw || s == SchemePKCS1v15
}

// Params holds the byte lengths derived from the key in use.
type Params struct {
	HashLength      int
	SignatureLength int
}

// ParamsFor derives Params from an RSA public key: the signature is as long as
// the modulus and the digest is a SHA-256 sum.
func ParamsFor(pub *rsa.PublicKey) Params {
	return Params{
		HashLength:      sha256.Size,
		SignatureLength: pub.Size(),
	}
}

// HexLength is the number of characters in an encoded signature.
func (p Params) HexLength() int {
	return 2 * p.SignatureLength
}

func (p Params) check(scheme Scheme) error {
	if p.HashLength >= p.SignatureLength-3 {
		return fmt.Errorf("%w: %d byte digest, %d byte block", ErrPadding, p.HashLength, p.SignatureLength)
	}
	if scheme == SchemeRaw && p.SignatureLength < p.HashLength+3+minPaddingBytes {
		return fmt.Errorf("%w: %d byte block leaves fewer than %d padding bytes", ErrPadding, p.SignatureLength, minPaddingBytes)
	}
	return nil
}

// Digest returns the SHA-256 sum of message.
func Digest(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// Signer produces hex signatures with a fixed private key. It holds no
// mutable state and is safe for concurrent use.
type Signer struct {
	key    *rsa.PrivateKey
	scheme Scheme
	params Params
}

// NewSigner creates a Signer for key using scheme.
func NewSigner(key *rsa.PrivateKey, scheme Scheme) (*Signer, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	scheme, err := ParseScheme(string(scheme))
	if err != nil {
		return nil, err
	}
	params := ParamsFor(&key.PublicKey)
	if err := params.check(scheme); err != nil {
		return nil, err
	}
	return &Signer{key: key, scheme: scheme, params: params}, nil
}

// Scheme returns the padding scheme in use.
func (s *Signer) Scheme() Scheme { return s.scheme }

// Params returns the lengths derived from the signing key.
func (s *Signer) Params() Params { return s.params }

// Public returns the public half of the signing key.
func (s *Signer) Public() *rsa.PublicKey { return &s.key.PublicKey }

// Verifier returns a Verifier for the signer's own public key.
func (s *Signer) Verifier() *Verifier {
	return &Verifier{key: &s.key.PublicKey, scheme: s.scheme, params: s.params}
}

// Sign hashes message and returns its signature as lowercase hex of exactly
// Params().HexLength() characters. An empty message is valid.
func (s *Signer) Sign(message []byte) (string, error) {
	return s.SignDigest(Digest(message))
}

// SignDigest signs a precomputed SHA-256 digest.
func (s *Signer) SignDigest(digest []byte) (string, error) {
	if len(digest) != s.params.HashLength {
		return "", fmt.Errorf("%w: got %d byte digest, want %d", ErrPadding, len(digest), s.params.HashLength)
	}
	var (
		sig []byte
		err error
	)
	switch s.scheme {
	case SchemeRaw:
		// A zero hash makes crypto/rsa sign the digest as is, giving the
		// 00 01 FF.. 00 digest layout with no DigestInfo. Passing a nil
		// random source keeps the operation deterministic.
		sig, err = rsa.SignPKCS1v15(nil, s.key, crypto.Hash(0), digest)
	case SchemePKCS1v15:
		sig, err = rsa.SignPKCS1v15(nil, s.key, crypto.SHA256, digest)
	case SchemePSS:
		sig, err = rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest, pssOptions)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s.scheme)
	}
	if errors.Is(err, rsa.ErrMessageTooLong) {
		return "", fmt.Errorf("%w: %v", ErrPadding, err)
	}
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return s.encode(sig)
}

// encode renders sig at the fixed width. crypto/rsa already returns
// modulus-sized output; the left padding covers any shorter value so a
// leading zero byte is never dropped.
func (s *Signer) encode(sig []byte) (string, error) {
	if len(sig) > s.params.SignatureLength {
		return "", fmt.Errorf("signature is %d bytes, want %d", len(sig), s.params.SignatureLength)
	}
	if pad := s.params.SignatureLength - len(sig); pad > 0 {
		sig = append(make([]byte, pad, s.params.SignatureLength), sig...)
	}
	return hex.EncodeToString(sig), nil
}

// Verifier checks hex signatures against a public key.
type Verifier struct {
	key    *rsa.PublicKey
	scheme Scheme
	params Params
}

// NewVerifier creates a Verifier for key using scheme.
func NewVerifier(key *rsa.PublicKey, scheme Scheme) (*Verifier, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	scheme, err := ParseScheme(string(scheme))
	if err != nil {
		return nil, err
	}
	params := ParamsFor(key)
	if err := params.check(scheme); err != nil {
		return nil, err
	}
	return &Verifier{key: key, scheme: scheme, params: params}, nil
}

// Params returns the lengths derived from the verification key.
func (v *Verifier) Params() Params { return v.params }

// Verify reports whether signatureHex is a valid signature of message. Any
// malformed input yields false; the final block comparison inside crypto/rsa
// is constant time.
func (v *Verifier) Verify(message []byte, signatureHex string) bool {
	return v.VerifyDigest(Digest(message), signatureHex)
}

// VerifyDigest is Verify for a precomputed SHA-256 digest.
func (v *Verifier) VerifyDigest(digest []byte, signatureHex string) bool {
	signatureHex = strings.TrimSpace(signatureHex)
	if len(signatureHex) != v.params.HexLength() || len(digest) != v.params.HashLength {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	switch v.scheme {
	case SchemeRaw:
		return rsa.VerifyPKCS1v15(v.key, crypto.Hash(0), digest, sig) == nil
	case SchemePKCS1v15:
		return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest, sig) == nil
	case SchemePSS:
		return rsa.VerifyPSS(v.key, crypto.SHA256, digest, sig, pssOptions) == nil
	default:
		return false
	}
}
