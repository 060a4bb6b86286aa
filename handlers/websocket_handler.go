package handlers

import (
	"log"
	"net/http"
	"slices"

	"github.com/Dosada05/league-standings/realtime"
	"github.com/Dosada05/league-standings/services"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub              *realtime.Hub
	standingsService services.StandingsService
	upgrader         websocket.Upgrader
}

// NewWebSocketHandler accepts connections from allowedOrigins; "*" allows any origin.
func NewWebSocketHandler(hub *realtime.Hub, ss services.StandingsService, allowedOrigins []string) *WebSocketHandler {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &WebSocketHandler{
		hub:              hub,
		standingsService: ss,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWs подписывает клиента на обновления таблицы.
// Клиент подключается к /ws/standings/{tableID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Unknown tables get a plain 404 instead of a socket that never receives anything.
	if _, err := h.standingsService.GetTable(r.Context(), tableID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("Failed to upgrade connection for standings table %s: %v", tableID, err)
		return
	}

	client := realtime.NewClient(h.hub, conn, realtime.StandingsRoom(tableID))
	if !h.hub.Subscribe(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
