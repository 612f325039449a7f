package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the session websocket. guard runs before the upgrade
// and may reject the subscriber; onMessage receives every client frame.
func RegisterRoutes(r fiber.Router, hub *Hub, guard fiber.Handler, onMessage func(sessionID string, msg []byte)) {
	handlers := []fiber.Handler{}
	if guard != nil {
		handlers = append(handlers, guard)
	}
	handlers = append(handlers, websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			if onMessage != nil && mt == websocket.TextMessage {
				onMessage(sessionID, msg)
			}
		}
		// Closing Send lets the writer drain and exit.
		hub.Unregister(client)
		<-done
	}))

	r.Get("/ws/:sessionID", handlers...)
}
