package signing

import (
	"errors"
	"fmt"
)

// ErrPadding is returned when a digest cannot be embedded in a signature
// block of the configured length.
var ErrPadding = errors.New("digest does not fit in signature block")

// EncodeBlock builds the raw PKCS#1 v1.5 signature block used by SchemeRaw:
//
//	0x00 0x01 0xFF ... 0xFF 0x00 digest
//
// The result is exactly size bytes long. No DigestInfo prefix is written; the
// digest follows the separator directly.
func EncodeBlock(digest []byte, size int) ([]byte, error) {
	if len(digest) >= size-3 {
		return nil, fmt.Errorf("%w: %d byte digest, %d byte block", ErrPadding, len(digest), size)
	}
	block := make([]byte, size)
	block[0] = 0x00
	block[1] = 0x01
	sep := size - len(digest) - 1
	for i := 2; i < sep; i++ {
		block[i] = 0xff
	}
	block[sep] = 0x00
	copy(block[sep+1:], digest)
	return block, nil
}
