package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"blogview/logx"
	"blogview/services"
)

// Default same-origin check: the page and /ws share a host.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// WSStateHandler streams the session's view state: one snapshot on connect,
// then one message per change.
func WSStateHandler(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logx.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	// registered before the snapshot is taken so no later change is missed
	client := services.GlobalWSConnManager.Add(s.ID, conn)
	defer services.GlobalWSConnManager.Remove(client)
	go client.Serve()

	initial, err := services.EncodeState(s.Controller.State())
	if err != nil {
		logx.Errorf("session %s: encode state: %v", s.ID, err)
		return
	}
	if !client.Enqueue(initial) {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Debugf("session %s: websocket read: %v", s.ID, err)
			}
			return
		}
	}
}
