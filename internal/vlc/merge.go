package vlc

// Genesis returns the snapshot of a node that has not recorded any event:
// an empty clock, no message id, count 0 and GenesisHash.
func Genesis(nodeID string) ClockInfo {
	return ClockInfo{
		Clock:     NewClock(),
		NodeID:    nodeID,
		ClockHash: GenesisHash,
	}
}

// MergeInfos folds peer into local and returns the resulting snapshot plus
// its provenance record.
//
// The joined clock is the elementwise maximum of both clocks, after which the
// local node's counter is advanced one beyond the maximum observed for it: the
// merge is itself an event of the merging node. The result is bound to
// messageID, which callers set to the id of the message that carried peer.
//
// MergeInfos is pure; inputs must already have passed Validate and
// VerifyHash. It fails with ClockOverflow when the local counter is already
// at MaxCounter, and with MalformedClock when only the peer's view of the
// local counter is, since that claim cannot come from the local node.
func MergeInfos(local, peer ClockInfo, messageID string, now int64) (ClockInfo, MergeLog, error) {
	if own := local.Clock.Get(local.NodeID); own >= MaxCounter {
		return ClockInfo{}, MergeLog{}, NewOverflowError(local.NodeID, own)
	}
	if claimed := peer.Clock.Get(local.NodeID); claimed >= MaxCounter {
		err := NewMalformedError("clock", "peer counter for "+local.NodeID+" leaves no room to advance")
		err.NodeID = peer.NodeID
		err.MessageID = peer.MessageID
		return ClockInfo{}, MergeLog{}, err
	}

	joined := Join(local.Clock, peer.Clock)
	own := joined[local.NodeID]
	joined[local.NodeID] = own + 1

	merged := ClockInfo{
		Clock:     joined,
		NodeID:    local.NodeID,
		ClockHash: ComputeHash(joined, messageID),
		MessageID: messageID,
		Count:     own + 1,
		CreateAt:  now,
	}
	return merged, NewMergeLog(local, peer, now), nil
}

// NewMergeLog builds the provenance record for merging peer into local.
func NewMergeLog(local, peer ClockInfo, now int64) MergeLog {
	return MergeLog{
		FromID:     local.NodeID,
		ToID:       peer.NodeID,
		StartCount: local.Count,
		EndCount:   peer.Count,
		SClockHash: local.ClockHash,
		EClockHash: peer.ClockHash,
		MergeAt:    now,
	}
}
