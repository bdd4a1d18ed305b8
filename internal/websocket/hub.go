package websocket

import (
	"encoding/json"
	"sync"
)

// BalanceUpdate is pushed to every dashboard subscribed to the guild when a
// member's balance or holdings change.
type BalanceUpdate struct {
	GuildID  string `json:"guild_id"`
	UserID   string `json:"user_id"`
	Reason   string `json:"reason"`
	Balance  int64  `json:"balance"`
	ItemID   int64  `json:"item_id,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(guildID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[guildID] == nil {
		h.clients[guildID] = make(map[*Client]struct{})
	}
	h.clients[guildID][client] = struct{}{}
}

func (h *Hub) Unregister(guildID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[guildID] == nil {
		return
	}
	delete(h.clients[guildID], client)
	if len(h.clients[guildID]) == 0 {
		delete(h.clients, guildID)
	}
}

// Subscribers reports how many clients watch the guild.
func (h *Hub) Subscribers(guildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[guildID])
}

// BroadcastBalance drops the update for clients whose buffer is full.
func (h *Hub) BroadcastBalance(guildID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[guildID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
