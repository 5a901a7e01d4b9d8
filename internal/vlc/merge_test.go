package vlc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(nodeID, messageID string, clock Clock, createAt int64) ClockInfo {
	return ClockInfo{
		Clock:     clock,
		NodeID:    nodeID,
		ClockHash: ComputeHash(clock, messageID),
		MessageID: messageID,
		Count:     clock[nodeID],
		CreateAt:  createAt,
	}
}

func TestMergeInfos_TwoNodes(t *testing.T) {
	local := snapshot("A", "m1", Clock{"A": 2}, 100)
	peer := snapshot("B", "m2", Clock{"B": 3}, 90)

	require.Equal(t, Clock{"A": 2, "B": 3}, Join(local.Clock, peer.Clock), "join before local bump")

	merged, log, err := MergeInfos(local, peer, "m2", 200)
	require.NoError(t, err)

	assert.Equal(t, Clock{"A": 3, "B": 3}, merged.Clock)
	assert.Equal(t, "A", merged.NodeID)
	assert.Equal(t, uint64(3), merged.Count)
	assert.Equal(t, "m2", merged.MessageID)
	assert.Equal(t, int64(200), merged.CreateAt)
	assert.Equal(t, "a80727d798cfab23d062d50f346a35b5f438fe46f522a405e858f22f6a750fe5", merged.ClockHash)
	require.NoError(t, VerifyHash(merged))

	assert.Equal(t, MergeLog{
		FromID:     "A",
		ToID:       "B",
		StartCount: 2,
		EndCount:   3,
		SClockHash: local.ClockHash,
		EClockHash: peer.ClockHash,
		MergeAt:    200,
	}, log)
}

func TestMergeInfos_LocalBumpBeyondPeerView(t *testing.T) {
	// The peer has seen more of A than A's own snapshot claims; the bump must
	// go beyond the maximum observed.
	local := snapshot("A", "m1", Clock{"A": 1}, 0)
	peer := snapshot("B", "m2", Clock{"A": 4, "B": 1}, 0)

	merged, _, err := MergeInfos(local, peer, "m2", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), merged.Count)
	assert.Equal(t, Clock{"A": 5, "B": 1}, merged.Clock)
}

func TestMergeInfos_DoesNotMutateInputs(t *testing.T) {
	local := snapshot("A", "m1", Clock{"A": 2}, 0)
	peer := snapshot("B", "m2", Clock{"B": 3}, 0)

	_, _, err := MergeInfos(local, peer, "m2", 0)
	require.NoError(t, err)

	assert.Equal(t, Clock{"A": 2}, local.Clock)
	assert.Equal(t, Clock{"B": 3}, peer.Clock)
}

func TestMergeInfos_LogLinksInputHashes(t *testing.T) {
	cases := []struct {
		local, peer ClockInfo
	}{
		{snapshot("A", "x", Clock{"A": 1}, 0), snapshot("B", "y", Clock{"B": 1}, 0)},
		{Genesis("A"), snapshot("B", "y", Clock{"A": 3, "B": 7}, 0)},
		{snapshot("A", "x", Clock{"A": 9, "C": 2}, 0), snapshot("C", "z", Clock{"C": 2}, 0)},
	}
	for _, c := range cases {
		_, log, err := MergeInfos(c.local, c.peer, "trigger", 1)
		require.NoError(t, err)
		assert.Equal(t, c.local.ClockHash, log.SClockHash)
		assert.Equal(t, c.peer.ClockHash, log.EClockHash)
	}
}

func TestMergeInfos_DominatedPeerOnlyBumpsLocal(t *testing.T) {
	local := snapshot("A", "m3", Clock{"A": 3, "B": 3}, 0)
	peer := snapshot("B", "m2", Clock{"B": 3}, 0)

	merged, _, err := MergeInfos(local, peer, "m2", 0)
	require.NoError(t, err)

	want := Clock{"A": 4, "B": 3}
	if diff := cmp.Diff(want, merged.Clock); diff != "" {
		t.Errorf("merged clock mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeInfos_LocalOverflow(t *testing.T) {
	local := snapshot("A", "m1", Clock{"A": MaxCounter}, 0)
	peer := snapshot("B", "m2", Clock{"B": 1}, 0)

	_, _, err := MergeInfos(local, peer, "m2", 0)
	require.Error(t, err)
	assert.True(t, IsOverflow(err))
}

func TestMergeInfos_PeerClaimingMaxCounterIsMalformed(t *testing.T) {
	local := snapshot("A", "m1", Clock{"A": 1}, 0)
	peer := snapshot("B", "m2", Clock{"A": MaxCounter, "B": 1}, 0)

	_, _, err := MergeInfos(local, peer, "m2", 0)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.False(t, IsOverflow(err))
}

func TestGenesis(t *testing.T) {
	g := Genesis("A")
	assert.Equal(t, "A", g.NodeID)
	assert.Equal(t, uint64(0), g.Count)
	assert.Empty(t, g.Clock)
	assert.Equal(t, GenesisHash, g.ClockHash)
	require.NoError(t, VerifyHash(g))
}
