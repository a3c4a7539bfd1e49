// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// SignatureRecord is one issued song signature as kept in a ledger.
type SignatureRecord struct {
	ID string `json:"id"`
	// Message holds the signed bytes exactly; JSON renders it as base64.
	Message        []byte    `json:"message"`
	Digest         string    `json:"digest"`
	Signature      string    `json:"signature"`
	Scheme         string    `json:"scheme"`
	KeyFingerprint string    `json:"keyFingerprint"`
	CreatedAt      time.Time `json:"createdAt"`
}
