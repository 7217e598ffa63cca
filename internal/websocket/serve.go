package websocket

import (
	"net/http"
	"strings"

	"libraryhub/internal/events"
	"libraryhub/internal/middleware"
	"libraryhub/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin is enforced by CORS on the API; sockets authenticate by token
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request after checking every requested channel against the
// access policy. The token comes from ?token= or the usual cookie/header; without
// one the caller is anonymous and may only join public channels.
func ServeWs(hub *Hub, auth *middleware.Authenticator, c *gin.Context) {
	actor, authenticated := policy.Actor{}, false

	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = middleware.TokenFromRequest(c)
	}
	if tokenString != "" {
		a, err := auth.ParseActor(tokenString)
		if err != nil {
			hub.logger.Info("websocket connection rejected: invalid token", "error", err)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		actor, authenticated = a, true
	}

	channels := parseChannels(c.Query("channels"))
	if len(channels) == 0 {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	for _, ch := range channels {
		if policy.Authorize(actor, ch) {
			continue
		}
		hub.logger.Info("websocket connection rejected: channel not allowed", "user_id", actor.ID, "channel", string(ch))
		if !authenticated {
			c.AbortWithStatus(http.StatusUnauthorized)
		} else {
			c.AbortWithStatus(http.StatusForbidden)
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := newClient(hub, conn, actor, channels)

	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func parseChannels(raw string) []events.Channel {
	var out []events.Channel
	seen := make(map[events.Channel]bool)
	for _, part := range strings.Split(raw, ",") {
		ch := events.Channel(strings.TrimSpace(part))
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}
