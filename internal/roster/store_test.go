package roster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akorh/huddle/internal/domain"
)

func part(cid, user string) domain.Participant {
	return domain.Participant{
		ConnectionID: domain.ConnectionID(cid),
		UserID:       domain.UserID(user),
		Username:     user,
	}
}

func TestStore_AddCreatesChannelLazily(t *testing.T) {
	req := require.New(t)
	s := NewStore()

	s.Add("general", part("c1", "alice"))

	key, ok := s.ChannelOf("c1")
	req.True(ok)
	req.Equal(domain.ChannelKey("general"), key)
	req.Len(s.List(), 1)
}

func TestStore_RemovePrunesEmptyChannel(t *testing.T) {
	req := require.New(t)
	s := NewStore()
	s.Add("general", part("c1", "alice"))

	p, ok := s.Remove("general", "c1")
	req.True(ok)
	req.Equal(domain.UserID("alice"), p.UserID)

	// Pruned: the channel no longer lists, and removing again is a no-op
	req.Empty(s.List())
	_, ok = s.Remove("general", "c1")
	req.False(ok)
}

func TestStore_RemoveEverywhere(t *testing.T) {
	req := require.New(t)
	s := NewStore()
	s.Add("general", part("c1", "alice"))
	s.Add("general", part("c2", "bob"))

	key, p, ok := s.RemoveEverywhere("c2")
	req.True(ok)
	req.Equal(domain.ChannelKey("general"), key)
	req.Equal(domain.ConnectionID("c2"), p.ConnectionID)

	_, _, ok = s.RemoveEverywhere("c2")
	req.False(ok)
}

func TestStore_SnapshotExcludesGivenConnection(t *testing.T) {
	req := require.New(t)
	s := NewStore()
	s.Add("general", part("c1", "alice"))
	s.Add("general", part("c2", "bob"))
	s.Add("general", part("c3", "carol"))

	snap := s.Snapshot("general", "c2")
	req.Len(snap, 2)
	for _, p := range snap {
		req.NotEqual(domain.ConnectionID("c2"), p.ConnectionID)
	}

	// Snapshot of a missing channel is just empty, never an error state
	req.Empty(s.Snapshot("ghost-town", ""))
}

func TestStore_ListCounts(t *testing.T) {
	req := require.New(t)
	s := NewStore()
	s.Add("general", part("c1", "alice"))
	s.Add("general", part("c2", "bob"))
	s.Add("music", part("c3", "carol"))

	infos := s.List()
	req.Len(infos, 2)
	counts := map[domain.ChannelKey]int{}
	for _, i := range infos {
		counts[i.Key] = i.Count
	}
	req.Equal(2, counts["general"])
	req.Equal(1, counts["music"])
}
