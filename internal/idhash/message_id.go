package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewTraceID returns a fresh identifier for an external request and every
// message it causes.
func NewTraceID() string {
	return uuid.NewString()
}

// ComputeMessageID computes a deterministic message_id using SHA256.
// Formula: SHA256(trace_id|created_lt|index)
// Returns hex-encoded hash (64 characters).
func ComputeMessageID(traceID string, createdLT uint64, index int) string {
	data := fmt.Sprintf("%s|%d|%d",
		traceID,
		createdLT,
		index,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
