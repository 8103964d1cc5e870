package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/omnipos/kds"
	"github.com/yeremiapane/omnipos/middlewares"
)

type KDSController struct {
	Hub      *kds.Hub
	Upgrader websocket.Upgrader
}

// NewKDSController accepts handshakes from allowedOrigin, or from anywhere
// when it is "*".
func NewKDSController(hub *kds.Hub, allowedOrigin string) *KDSController {
	return &KDSController{
		Hub: hub,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// KDSHandler upgrades the request and keeps the screen subscribed until it
// disconnects. Only notifications addressed to the principal reach it.
func (kc *KDSController) KDSHandler(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := kc.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	kc.Hub.RegisterClient(ws, p)
	defer kc.Hub.UnregisterClient(ws)

	// screens only listen; reading detects the disconnect
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}
