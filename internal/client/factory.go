package client

import (
	"github.com/akorh/huddle/internal/adapters/rtc"
)

// PionConnFactory builds real pion-backed media connections using the
// statically configured STUN servers.
func PionConnFactory(stunServers []string) NewMediaConn {
	cfg := rtc.ConfigFromStun(stunServers)
	return func(peerID string) (MediaConn, error) {
		return rtc.NewConnection(cfg, peerID)
	}
}
