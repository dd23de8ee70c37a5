package api

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/transfer"
)

// Hub tracks the live WebSocket clients of every user so that work done
// over plain HTTP can reach them.
//
// Three things go through it:
//   - upload progress, since the upload itself is a multipart POST;
//   - leaving a channel, which must move the user's open views to the
//     public feed before the channel change is published;
//   - logout, which signs out the sockets opened with the revoked token.
//
// The hub is per process. A user connected to another instance still gets
// channel and message snapshots through the realtime bus, but not these
// three signals.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[*Client]struct{})}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.clients[c.userID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.clients, c.userID)
		}
	}
}

func (h *Hub) snapshot(userID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		out = append(out, c)
	}
	return out
}

// ReportUpload sends p to every open connection of userID.
func (h *Hub) ReportUpload(userID uuid.UUID, p transfer.Progress) {
	for _, c := range h.snapshot(userID) {
		c.workspace.ReportUpload(p)
	}
}

// ChannelLeft moves every open connection of userID off channelID if it
// has that channel selected. It has the shape of
// channels.MembershipOptions.OnLeave.
func (h *Hub) ChannelLeft(_ context.Context, channelID, userID uuid.UUID) {
	for _, c := range h.snapshot(userID) {
		c.workspace.Left(channelID)
	}
}

// SignOut expires the session of every connection userID opened with
// token. Each such connection delivers the signed-out state, releases its
// subscriptions and closes.
func (h *Hub) SignOut(userID uuid.UUID, token string) {
	for _, c := range h.snapshot(userID) {
		if c.token == token {
			c.session.Expire()
		}
	}
}

// Count returns the number of open connections for userID.
func (h *Hub) Count(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, m := range h.clients {
		for c := range m {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}
