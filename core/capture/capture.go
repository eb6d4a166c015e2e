// Package capture generates and carries capture_id/captured_at, the
// identity pair that every write in the execution substrate attaches to.
package capture

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"
)

// maxIDLength is the substrate-wide agreement: a capture_id fits within
// 128 characters so it is safe in primary keys and JSON across every
// supported dialect.
const maxIDLength = 128

// hashPrefixLen truncates the hex digest so domain:partition:hash stays
// well under maxIDLength even with a long partition key and timestamp
// suffix attached.
const hashPrefixLen = 32

// Identity is the (capture_id, captured_at) pair attached to a write.
type Identity struct {
	CaptureID string
	CapturedAt time.Time
}

// ContentHash returns a stable hex digest of payload. Rehashing identical
// bytes always yields the same hash; callers MUST normalize payload bytes
// (e.g. canonical JSON) before hashing so insignificant formatting
// differences don't produce different ids.
func ContentHash(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// New builds the capture_id for a fresh ingest: domain:partition:hash,
// optionally suffixed with a short timestamp when withTimestamp is true
// (used when a domain legitimately re-ingests the same partition multiple
// times per business period and must disambiguate captures).
func New(domain, partitionKey string, payload []byte, withTimestamp bool, now time.Time) Identity {
	hash := ContentHash(payload)
	id := fmt.Sprintf("%s:%s:%s", domain, partitionKey, hash)
	if withTimestamp {
		id = fmt.Sprintf("%s:%d", id, now.UnixMilli())
	}
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return Identity{CaptureID: id, CapturedAt: now.UTC()}
}

// Propagate1to1 returns the derived row's identity when it has exactly one
// exclusive source: the capture_id passes through unchanged, captured_at
// is the new wall-clock time of the derivation step.
func Propagate1to1(source Identity, now time.Time) Identity {
	return Identity{CaptureID: source.CaptureID, CapturedAt: now.UTC()}
}

// AggregateInput is one source row feeding a rollup: its capture_id and
// the captured_at used to order inputs for input_min/input_max_capture_id.
type AggregateInput struct {
	CaptureID  string
	CapturedAt time.Time
}

// Aggregated is the identity a rollup over multiple captures carries: a
// fresh deterministic capture_id derived from its inputs, plus the
// min/max source capture_id ordered by captured_at.
type Aggregated struct {
	Identity
	InputMinCaptureID string
	InputMaxCaptureID string
}

// PropagateAggregate derives a fresh capture_id for a rollup over inputs,
// deterministic in the sorted set of input capture_ids, and records the
// min/max input capture_id ordered by captured_at.
func PropagateAggregate(domain, partitionKey string, inputs []AggregateInput, now time.Time) Aggregated {
	if len(inputs) == 0 {
		return Aggregated{Identity: New(domain, partitionKey, nil, false, now)}
	}

	sorted := make([]AggregateInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CapturedAt.Equal(sorted[j].CapturedAt) {
			return sorted[i].CaptureID < sorted[j].CaptureID
		}
		return sorted[i].CapturedAt.Before(sorted[j].CapturedAt)
	})

	ids := make([]string, len(sorted))
	for i, in := range sorted {
		ids[i] = in.CaptureID
	}
	sortedForHash := append([]string(nil), ids...)
	sort.Strings(sortedForHash)

	payload := []byte(fmt.Sprintf("%v", sortedForHash))
	identity := New(domain, partitionKey, payload, false, now)

	return Aggregated{
		Identity:          identity,
		InputMinCaptureID: sorted[0].CaptureID,
		InputMaxCaptureID: sorted[len(sorted)-1].CaptureID,
	}
}
