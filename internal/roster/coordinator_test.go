package roster

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akorh/huddle/internal/core"
	"github.com/akorh/huddle/internal/domain"
)

// fakeConn records every frame the coordinator tries to deliver.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// types returns the message type of every recorded frame, in order.
func (f *fakeConn) types(t *testing.T) []core.MsgType {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.MsgType, 0, len(f.frames))
	for _, fr := range f.frames {
		mt, err := core.TypeOf(fr)
		require.NoError(t, err)
		out = append(out, mt)
	}
	return out
}

func (f *fakeConn) lastAs(t *testing.T, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], v))
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestCoordinator() (*Coordinator, *Store) {
	store := NewStore()
	return NewCoordinator(store), store
}

func register(c *Coordinator, cid, user string) *fakeConn {
	conn := &fakeConn{}
	c.Register(domain.ConnectionID(cid), domain.Identity{UserID: domain.UserID(user), Username: user}, conn)
	return conn
}

func TestJoin_FirstParticipant_GetsEmptyRoster(t *testing.T) {
	req := require.New(t)
	coord, _ := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")

	// When alice joins an empty channel
	req.NoError(coord.Join("conn-a", "general"))

	// Then she receives the roster, and it does not contain herself
	var roster core.Participants
	connA.lastAs(t, &roster)
	req.Equal(core.MsgParticipants, roster.Type)
	req.Equal(domain.ChannelKey("general"), roster.Channel)
	req.Empty(roster.Participants)
}

func TestJoin_BroadcastsToOthers_ExcludingSelf(t *testing.T) {
	req := require.New(t)
	coord, _ := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	connB := register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	connA.reset()

	// When bob joins
	req.NoError(coord.Join("conn-b", "general"))

	// Then alice gets exactly one user-joined naming bob
	req.Equal([]core.MsgType{core.MsgUserJoined}, connA.types(t))
	var joined core.UserJoined
	connA.lastAs(t, &joined)
	req.Equal(domain.ConnectionID("conn-b"), joined.ConnectionID)
	req.Equal("bob", joined.Username)

	// And bob gets the roster listing only alice
	var roster core.Participants
	connB.lastAs(t, &roster)
	req.Len(roster.Participants, 1)
	req.Equal(domain.ConnectionID("conn-a"), roster.Participants[0].ConnectionID)
}

func TestJoin_Switch_LeavesOldChannel(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	req.NoError(coord.Join("conn-b", "general"))
	connA.reset()

	// When bob switches to music
	req.NoError(coord.Join("conn-b", "music"))

	// Then alice in general sees bob leave
	req.Equal([]core.MsgType{core.MsgUserLeft}, connA.types(t))
	var left core.UserLeft
	connA.lastAs(t, &left)
	req.Equal(domain.ConnectionID("conn-b"), left.ConnectionID)

	// And bob is a member of exactly one channel
	key, ok := store.ChannelOf("conn-b")
	req.True(ok)
	req.Equal(domain.ChannelKey("music"), key)
}

func TestJoin_SameChannel_ReplaysLeaveJoinCycle(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	req.NoError(coord.Join("conn-b", "general"))
	connA.reset()

	// When bob rejoins the channel he is already in
	req.NoError(coord.Join("conn-b", "general"))

	// Then alice observes a full leave/join pair; the net roster is unchanged
	req.Equal([]core.MsgType{core.MsgUserLeft, core.MsgUserJoined}, connA.types(t))
	req.Len(store.Snapshot("general", ""), 2)
}

func TestLeave_RemovesAndBroadcasts(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	req.NoError(coord.Join("conn-b", "general"))
	connA.reset()

	coord.Leave("conn-b", "general")

	req.Equal([]core.MsgType{core.MsgUserLeft}, connA.types(t))
	_, ok := store.ChannelOf("conn-b")
	req.False(ok)
}

func TestLeave_NotAMember_IsNoop(t *testing.T) {
	req := require.New(t)
	coord, _ := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	connA.reset()

	// Leaving a channel bob never joined changes nothing
	coord.Leave("conn-b", "general")
	coord.Leave("conn-b", "nonexistent")

	req.Empty(connA.types(t))
}

func TestDisconnect_CleansUpAndNotifiesOnce(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	req.NoError(coord.Join("conn-b", "general"))
	connA.reset()

	// When bob's transport drops, twice (close racing the read error path)
	coord.Disconnect("conn-b")
	coord.Disconnect("conn-b")

	// Then alice receives exactly one user-left for bob
	req.Equal([]core.MsgType{core.MsgUserLeft}, connA.types(t))

	// And bob is nowhere in the store
	_, ok := store.ChannelOf("conn-b")
	req.False(ok)
}

func TestDisconnect_Unregistered_IsNoop(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.Disconnect("never-seen")
}

func TestRelayOffer_TagsSenderIdentity(t *testing.T) {
	req := require.New(t)
	coord, _ := newTestCoordinator()
	register(coord, "conn-a", "alice")
	connB := register(coord, "conn-b", "bob")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	coord.RelayOffer("conn-a", "conn-b", offer)

	var got core.OfferFrom
	connB.lastAs(t, &got)
	req.Equal(core.MsgOffer, got.Type)
	req.Equal(domain.ConnectionID("conn-a"), got.ConnectionID)
	req.Equal(domain.UserID("alice"), got.UserID)
	req.Equal("alice", got.Username)
	req.JSONEq(string(offer), string(got.Offer))
}

func TestRelayAnswerAndCandidate_TagOnlyConnection(t *testing.T) {
	req := require.New(t)
	coord, _ := newTestCoordinator()
	register(coord, "conn-a", "alice")
	connB := register(coord, "conn-b", "bob")

	coord.RelayAnswer("conn-a", "conn-b", json.RawMessage(`{"type":"answer","sdp":"v=0"}`))
	var ans core.AnswerFrom
	connB.lastAs(t, &ans)
	req.Equal(domain.ConnectionID("conn-a"), ans.ConnectionID)

	coord.RelayCandidate("conn-a", "conn-b", json.RawMessage(`{"candidate":"candidate:1"}`))
	var cand core.CandidateFrom
	connB.lastAs(t, &cand)
	req.Equal(domain.ConnectionID("conn-a"), cand.ConnectionID)
}

func TestRelay_MissingTarget_IsSilentlyDropped(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	req.NoError(coord.Join("conn-a", "general"))
	connA.reset()

	// Relaying to a departed connection must not panic and must not touch
	// any channel's membership
	coord.RelayOffer("conn-a", "gone", json.RawMessage(`{}`))
	coord.RelayAnswer("conn-a", "gone", json.RawMessage(`{}`))
	coord.RelayCandidate("conn-a", "gone", json.RawMessage(`{}`))

	req.Empty(connA.types(t))
	req.Len(store.Snapshot("general", ""), 1)
}

func TestJoin_Unregistered_ReturnsError(t *testing.T) {
	coord, _ := newTestCoordinator()
	require.ErrorIs(t, coord.Join("ghost", "general"), ErrNotRegistered)
}

func TestBackpressuredReceiver_DoesNotAffectOperation(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	connA.full = true
	connB := register(coord, "conn-b", "bob")

	req.NoError(coord.Join("conn-a", "general"))
	req.NoError(coord.Join("conn-b", "general"))

	// Alice's stalled connection loses the broadcast, bob still joined
	var roster core.Participants
	connB.lastAs(t, &roster)
	req.Len(roster.Participants, 1)
	req.Len(store.Snapshot("general", ""), 2)
}

// Full scenario from the design review: two users in general, one abrupt
// disconnect, then a channel switch.
func TestScenario_JoinDisconnectSwitch(t *testing.T) {
	req := require.New(t)
	coord, store := newTestCoordinator()
	connA := register(coord, "conn-a", "alice")
	connB := register(coord, "conn-b", "bob")

	// A joins general and receives an empty roster
	req.NoError(coord.Join("conn-a", "general"))
	var rosterA core.Participants
	connA.lastAs(t, &rosterA)
	req.Empty(rosterA.Participants)

	// B joins general: A sees user-joined{B}, B gets roster [A]
	connA.reset()
	req.NoError(coord.Join("conn-b", "general"))
	var joined core.UserJoined
	connA.lastAs(t, &joined)
	req.Equal(domain.ConnectionID("conn-b"), joined.ConnectionID)
	var rosterB core.Participants
	connB.lastAs(t, &rosterB)
	req.Len(rosterB.Participants, 1)

	// B disconnects abruptly: A sees user-left{B}, B is gone everywhere
	connA.reset()
	coord.Disconnect("conn-b")
	var left core.UserLeft
	connA.lastAs(t, &left)
	req.Equal(domain.ConnectionID("conn-b"), left.ConnectionID)
	_, ok := store.ChannelOf("conn-b")
	req.False(ok)

	// A switches to music: general is pruned, music holds only A
	req.NoError(coord.Join("conn-a", "music"))
	req.Empty(store.Snapshot("general", ""))
	members := store.Snapshot("music", "")
	req.Len(members, 1)
	req.Equal(domain.ConnectionID("conn-a"), members[0].ConnectionID)
}
