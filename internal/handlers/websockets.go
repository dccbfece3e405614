package handlers

import (
	"net/http"
	"time"

	"fishcam/internal/dto"
	"fishcam/internal/logger"
	"fishcam/internal/services/overlay"

	"github.com/gorilla/websocket"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OverlayWebsocketHandler registers a viewer. The viewer sends its display size as
// {"width","height"} and receives overlays computed for that size. The hub pings the
// viewer, so a viewer that never resizes stays connected as long as it answers pongs.
func OverlayWebsocketHandler(hub *overlay.Hub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		pongWait := hub.PongWait()
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(pongWait))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		viewer := hub.Register(connection)
		defer hub.Unregister(viewer)

		for {
			var size dto.DisplaySize
			if err := connection.ReadJSON(&size); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warning("Viewer %s disconnected: %v", viewer.ID, err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(pongWait))
			viewer.SetDisplay(overlay.Display{Width: size.Width, Height: size.Height})
		}
	}
}
