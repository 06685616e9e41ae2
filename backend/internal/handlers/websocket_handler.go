package handlers

import (
	"github.com/gofiber/contrib/websocket"
	ws "github.com/user/papertrade/backend/internal/websocket"
)

// PriceStream is the handler for the /ws/prices feed. The stream is public.
func (h *Handler) PriceStream(c *websocket.Conn) {
	client := ws.NewClient(c)
	log := h.log.WithField("client", client.ID)

	if !h.hub.Join(client) {
		return
	}
	log.Debugf("WebSocket connection established: %s", c.RemoteAddr())

	// The connection is released when this handler returns, so wait for the writer.
	done := make(chan struct{})
	go func() {
		h.writePump(client)
		close(done)
	}()
	h.readPump(client)
	<-done
	log.Debug("WebSocket connection closed")
}

// writePump pumps messages from the hub to the websocket connection.
func (h *Handler) writePump(client *ws.Client) {
	defer client.Conn.Close() // unblocks readPump
	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.WithField("client", client.ID).Debugf("Error writing message: %v", err)
			h.hub.Leave(client)
			return
		}
	}
}

// readPump drains client frames until the connection drops.
func (h *Handler) readPump(client *ws.Client) {
	defer h.hub.Leave(client)
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithField("client", client.ID).Debugf("Client disconnected unexpectedly: %v", err)
			}
			return
		}
	}
}
