package vlc

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainClockInfo is the domain prefix for snapshot hashes.
// The version suffix allows a future network-wide algorithm migration.
const DomainClockInfo = "chronod/clock/v1"

// GenesisHash is the hash of the empty clock with an empty message id.
// It anchors merges performed by a node that has not yet produced a snapshot
// and is the only hash a MergeLog may reference without a stored ClockInfo.
var GenesisHash = ComputeHash(Clock{}, "")

// hashWithDomain computes SHA256(domain || 0x00 || data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeHash returns the deterministic digest of (clock, messageID).
// Equal inputs produce byte-identical output on every node.
func ComputeHash(clock Clock, messageID string) string {
	return hashWithDomain(DomainClockInfo, MarshalCanonical(clock, messageID))
}

// VerifyHash recomputes the hash of info and returns a HashMismatch error if
// it differs from info.ClockHash.
func VerifyHash(info ClockInfo) error {
	computed := ComputeHash(info.Clock, info.MessageID)
	if computed != info.ClockHash {
		return NewHashMismatchError(info, computed)
	}
	return nil
}
