// internal/ws/socket.go
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/middleware"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
)

// heartbeatInterval is how often a socket must answer a ping. Two missed
// ticks terminate the socket.
const heartbeatInterval = 30 * time.Second

// subscribeFrame is the only client-to-server frame. The lobby, chat and
// game scopes also carry the target id.
type subscribeFrame struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId,omitempty"`
}

var validScopes = map[string]bool{
	registry.ScopeAccount: true,
	registry.ScopeFriend:  true,
	registry.ScopeLobbies: true,
	registry.ScopeLobby:   true,
	registry.ScopeChat:    true,
	registry.ScopeGame:    true,
}

// Server upgrades sockets, authenticates them and routes subscription frames
// into the registry.
type Server struct {
	Reg     *registry.Registry
	Cleanup *Cleanup
	Log     *logrus.Logger
}

// HandleSocket is the single WebSocket endpoint. The handshake validates the
// session cookie before upgrading.
func (s *Server) HandleSocket(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := auth.AuthenticateJWT(cookie.Value)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.Log.Warnf("ws: accept failed for user %s: %v", userID, err)
		return
	}

	conn := registry.NewConn(userID)
	ctx, cancel := context.WithCancel(context.Background())

	middleware.LogSocketConnect(s.Log, userID)

	go s.writePump(ctx, cancel, wsConn, conn)
	s.readLoop(ctx, wsConn, conn)

	cancel()
	conn.Close()
	wsConn.Close(websocket.StatusNormalClosure, "closing")
	s.Cleanup.Schedule(conn)
	middleware.LogSocketDisconnect(s.Log, userID, conn.Scope)
}

// readLoop consumes subscription frames until the socket dies.
func (s *Server) readLoop(ctx context.Context, wsConn *websocket.Conn, conn *registry.Conn) {
	for {
		var frame subscribeFrame
		if err := wsjson.Read(ctx, wsConn, &frame); err != nil {
			return
		}
		if !validScopes[frame.Type] {
			s.Log.Warnf("ws: unknown subscription type %q from %s", frame.Type, conn.UserID)
			continue
		}
		needsID := frame.Type == registry.ScopeLobby ||
			frame.Type == registry.ScopeChat ||
			frame.Type == registry.ScopeGame
		if needsID && frame.LobbyID == "" {
			s.Log.Warnf("ws: subscription %q without lobbyId from %s", frame.Type, conn.UserID)
			continue
		}

		s.Reg.Subscribe(conn, frame.Type, frame.LobbyID)
		if s.Cleanup.Cancel(conn.UserID, frame.Type) {
			s.Log.WithFields(logrus.Fields{"userId": conn.UserID, "scope": frame.Type}).
				Debug("ws: reconnect within grace, cleanup cancelled")
		}
	}
}

// writePump drains the outbound queue and drives the heartbeat. A socket
// that misses a whole heartbeat round is terminated.
func (s *Server) writePump(ctx context.Context, cancel context.CancelFunc, wsConn *websocket.Conn, conn *registry.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, wsConn, msg)
			writeCancel()
			if err != nil {
				cancel()
				return
			}
		case <-ticker.C:
			if !conn.TickAlive() {
				wsConn.Close(websocket.StatusPolicyViolation, "heartbeat timeout")
				cancel()
				return
			}
			go func() {
				pingCtx, pingCancel := context.WithTimeout(ctx, heartbeatInterval)
				defer pingCancel()
				if err := wsConn.Ping(pingCtx); err == nil {
					conn.MarkAlive()
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}
