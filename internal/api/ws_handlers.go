package api

import (
	"net/http"

	"filevault/internal/auth"
	"filevault/internal/websocket"
)

// ServeWsHandler upgrades the connection and attaches it to the event hub.
// Browsers cannot set headers on websocket handshakes, so the JWT rides in
// the token query parameter instead.
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Token query parameter required")
		return
	}

	claims, err := auth.VerifyJWT(token, s.config.JWT.Secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.wsHub, conn, claims.UserID)
	s.wsHub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
