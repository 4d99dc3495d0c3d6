package signaling

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"carelink/core"
	"carelink/protocol"
)

const (
	// PresenceInterval is how often a companion announces itself.
	PresenceInterval = 5 * time.Second
	// PresenceTTL is how long an announcement counts as "active".
	PresenceTTL = 12 * time.Second
)

// PresenceStatus is what the monitor UI shows for a peer.
type PresenceStatus string

const (
	// PresenceLoading means no announcement has been seen recently.
	PresenceLoading PresenceStatus = "loading"
	PresenceActive  PresenceStatus = "active"
)

// Heartbeat publishes periodic presence announcements to the peer's topic.
type Heartbeat struct {
	channel     *Channel
	peerID      string
	displayName string
	logger      *core.Logger
}

func NewHeartbeat(channel *Channel, peerID, displayName string, logger *core.Logger) *Heartbeat {
	return &Heartbeat{
		channel:     channel,
		peerID:      peerID,
		displayName: displayName,
		logger:      logger,
	}
}

// Run announces immediately, then on every tick until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	h.announce()
	ticker := time.NewTicker(PresenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.announce()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Heartbeat) announce() {
	err := h.channel.SendTo(h.peerID, protocol.MsgPresence, protocol.PresencePayload{
		UserID:      h.channel.UserID(),
		DisplayName: h.displayName,
		Timestamp:   time.Now(),
	})
	if err != nil {
		h.logger.Warn("presence announcement failed", "error", err)
	}
}

// PresenceTracker keeps the last-seen announcement per peer with a TTL, so a
// silent peer decays back to loading without any sweep loop.
type PresenceTracker struct {
	cache *gocache.Cache
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		cache: gocache.New(PresenceTTL, 2*PresenceTTL),
	}
}

// Observe records a presence announcement.
func (t *PresenceTracker) Observe(payload protocol.PresencePayload) {
	t.cache.Set(payload.UserID, payload, gocache.DefaultExpiration)
}

// Status reports whether the peer announced itself within the TTL.
func (t *PresenceTracker) Status(userID string) PresenceStatus {
	if _, ok := t.cache.Get(userID); ok {
		return PresenceActive
	}
	return PresenceLoading
}

// Last returns the most recent announcement for the peer, if still fresh.
func (t *PresenceTracker) Last(userID string) (protocol.PresencePayload, bool) {
	v, ok := t.cache.Get(userID)
	if !ok {
		return protocol.PresencePayload{}, false
	}
	return v.(protocol.PresencePayload), true
}
