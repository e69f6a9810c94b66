// Package roster is the single in-memory authority over voice-channel
// membership and the state machine that mutates it.
package roster

import (
	"github.com/samber/lo"

	"github.com/akorh/huddle/internal/domain"
)

// Store maps channel keys to their occupants. It is a plain data structure:
// not safe for concurrent use, the Coordinator serializes every access.
// It is injected rather than global so tests can seed and inspect it.
type Store struct {
	channels map[domain.ChannelKey]map[domain.ConnectionID]domain.Participant
}

func NewStore() *Store {
	return &Store{channels: make(map[domain.ChannelKey]map[domain.ConnectionID]domain.Participant)}
}

// Add places p into the channel, creating the channel lazily.
func (s *Store) Add(key domain.ChannelKey, p domain.Participant) {
	ch, ok := s.channels[key]
	if !ok {
		ch = make(map[domain.ConnectionID]domain.Participant)
		s.channels[key] = ch
	}
	ch[p.ConnectionID] = p
}

// Remove deletes cid from the channel. Empty channels are pruned; an empty
// map and a missing map are indistinguishable to callers.
func (s *Store) Remove(key domain.ChannelKey, cid domain.ConnectionID) (domain.Participant, bool) {
	ch, ok := s.channels[key]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := ch[cid]
	if !ok {
		return domain.Participant{}, false
	}
	delete(ch, cid)
	if len(ch) == 0 {
		delete(s.channels, key)
	}
	return p, true
}

// RemoveEverywhere scans all channels and removes cid from every one that
// holds it. With the exclusivity invariant intact that is at most one, but
// the full scan keeps cleanup correct even if it were ever violated.
func (s *Store) RemoveEverywhere(cid domain.ConnectionID) (domain.ChannelKey, domain.Participant, bool) {
	var (
		foundKey domain.ChannelKey
		foundP   domain.Participant
		found    bool
	)
	for key, ch := range s.channels {
		if p, ok := ch[cid]; ok {
			delete(ch, cid)
			if len(ch) == 0 {
				delete(s.channels, key)
			}
			if !found {
				foundKey, foundP, found = key, p, true
			}
		}
	}
	return foundKey, foundP, found
}

// ChannelOf reports which channel currently holds cid.
func (s *Store) ChannelOf(cid domain.ConnectionID) (domain.ChannelKey, bool) {
	for key, ch := range s.channels {
		if _, ok := ch[cid]; ok {
			return key, true
		}
	}
	return "", false
}

// Snapshot returns the channel's occupants excluding one connection,
// which is how a join reply never contains the caller itself.
func (s *Store) Snapshot(key domain.ChannelKey, except domain.ConnectionID) []domain.Participant {
	members := lo.Values(s.channels[key])
	return lo.Filter(members, func(p domain.Participant, _ int) bool {
		return p.ConnectionID != except
	})
}

type ChannelInfo struct {
	Key   domain.ChannelKey `json:"key"`
	Count int               `json:"participant_count"`
}

// List reports non-empty channels and their occupancy.
func (s *Store) List() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(s.channels))
	for key, ch := range s.channels {
		out = append(out, ChannelInfo{Key: key, Count: len(ch)})
	}
	return out
}
