package api

import (
	"net/http"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/gateway"
)

type RealtimeHandler struct {
	broker  *broker.Broker
	gateway *gateway.Gateway
}

func NewRealtimeHandler(brk *broker.Broker, gw *gateway.Gateway) *RealtimeHandler {
	return &RealtimeHandler{broker: brk, gateway: gw}
}

type channelsResponse struct {
	Channels          []string `json:"channels"`
	ActiveConnections int      `json:"active_connections"`
	ListenerState     string   `json:"listener_state"`
}

// Channels lists the pub/sub channel naming conventions and current fanout
// status.
func (h *RealtimeHandler) Channels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, channelsResponse{
		Channels: []string{
			"documents.{collection}",
			"cache.invalidate",
			"user.{user_id}.notifications",
		},
		ActiveConnections: h.gateway.ActiveConnections(),
		ListenerState:     h.broker.State(),
	})
}
