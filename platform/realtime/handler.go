package realtime

import (
	"log/slog"
	"net/http"

	"form_platform/utils"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API is served behind CORS, origins are filtered there.
		return true
	},
}

// Handler upgrades the connection and subscribes it to the requested
// template's room. No authentication is required: comment notifications only
// carry data the subscriber could poll from the public comment listing.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateId, err := utils.URLParamUUID(r, "template_id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("error upgrading websocket connection", "template_id", templateId, "error", err)
			return
		}

		client := newClient(h, templateId, conn)
		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}
