// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/account"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/chat"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/database"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/friend"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/lobby"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/ws"
)

// Server bundles every service behind the HTTP surface.
type Server struct {
	DB        *database.DB
	Accounts  *account.Service
	Friends   *friend.Service
	Lobbies   *lobby.Service
	Chats     *chat.Service
	Engine    *game.Engine
	Socket    *ws.Server
	Log       *logrus.Logger
	UploadDir string
}

// Router wires every endpoint. All routes except register/login and the
// WebSocket upgrade run behind the auth middleware.
func (s *Server) Router() *httprouter.Router {
	router := httprouter.New()
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.Log.WithFields(logrus.Fields{"path": r.URL.Path, "panic": v}).Error("handler panic")
		writeError(w, httperr.Internal("Server Error", fmt.Errorf("internal server error")))
	}

	// identity
	router.POST("/register", s.Register)
	router.POST("/login", s.Login)
	router.GET("/check-auth", s.authed(s.CheckAuth))
	router.POST("/logout", s.authed(s.Logout))

	// websocket; does its own cookie check during the upgrade
	router.HandlerFunc(http.MethodGet, "/ws", s.Socket.HandleSocket)

	// lobby
	router.POST("/create-lobby", s.authed(s.CreateLobby))
	router.POST("/check-lobby-code", s.authed(s.CheckLobbyCode))
	router.POST("/join-lobby/:lobbyId", s.authed(s.JoinLobby))
	router.POST("/leave-join/:lobbyId", s.authed(s.LeaveJoin))
	router.POST("/leave-lobby/:lobbyId", s.authed(s.LeaveLobby))
	router.POST("/kick-lobby-player/:lobbyId", s.authed(s.KickLobbyPlayer))
	router.POST("/start-game/:lobbyId", s.authed(s.StartGame))
	router.POST("/invite-friend/:lobbyId", s.authed(s.InviteFriend))
	router.POST("/accept-invitation/:lobbyId", s.authed(s.AcceptInvitation))
	router.POST("/decline-invitation/:lobbyId", s.authed(s.DeclineInvitation))
	router.GET("/get-lobbies", s.authed(s.GetLobbies))
	router.GET("/get-lobby-info/:lobbyId", s.authed(s.GetLobbyInfo))
	router.GET("/is-lobby-master/:lobbyId", s.authed(s.IsLobbyMaster))
	router.GET("/lobby-qr/:lobbyId", s.authed(s.LobbyQR))

	// chat
	router.POST("/send-message/:lobbyId", s.authed(s.SendChatMessage))
	router.GET("/get-chat-messages/:lobbyId", s.authed(s.GetChatMessages))

	// game commands
	router.POST("/flip-row/:gameId", s.authed(s.FlipRow))
	router.POST("/lay-card/:gameId", s.authed(s.LayCard))
	router.POST("/card-action/:gameId", s.authed(s.CardAction))
	router.POST("/give-drink-player/:gameId", s.authed(s.GiveDrink))
	router.POST("/next-player/:gameId", s.authed(s.NextPlayer))
	router.POST("/start-phase2/:gameId", s.authed(s.StartPhase2))
	router.POST("/start-phase3/:gameId", s.authed(s.StartPhase3))
	router.POST("/retry-phase3/:gameId", s.authed(s.RetryPhase3))
	router.POST("/open-new-game/:gameId", s.authed(s.OpenNewGame))
	router.POST("/leave-game/:gameId", s.authed(s.LeaveGame))

	// game views
	router.GET("/get-game-info/:gameId", s.authed(s.GetGameInfo))
	router.GET("/get-player-info/:gameId", s.authed(s.GetPlayerInfo))
	router.GET("/get-drink-info/:gameId", s.authed(s.GetDrinkInfo))
	router.GET("/get-game-cards/:gameId", s.authed(s.GetGameCards))
	router.GET("/get-player-cards/:gameId", s.authed(s.GetPlayerCards))
	router.GET("/get-busfahrer/:gameId", s.authed(s.GetBusfahrer))
	router.GET("/get-game-players/:gameId", s.authed(s.GetGamePlayers))
	router.GET("/get-game-settings/:gameId", s.authed(s.GetGameSettings))

	// friends
	router.GET("/get-friends", s.authed(s.GetFriends))
	router.POST("/send-friend-request", s.authed(s.SendFriendRequest))
	router.POST("/accept-friend-request", s.authed(s.AcceptFriendRequest))
	router.POST("/decline-friend-request", s.authed(s.DeclineFriendRequest))
	router.POST("/remove-friend", s.authed(s.RemoveFriend))
	router.POST("/send-friend-message", s.authed(s.SendFriendMessage))
	router.POST("/mark-messages-read", s.authed(s.MarkMessagesRead))

	// account
	router.GET("/get-account-info", s.authed(s.GetAccountInfo))
	router.POST("/set-title", s.authed(s.SetTitle))
	router.POST("/set-card-theme", s.authed(s.SetCardTheme))
	router.POST("/set-avatar", s.authed(s.SetAvatar))
	router.POST("/upload-avatar", s.authed(s.UploadAvatar))

	return router
}

type ctxKey int

const userIDKey ctxKey = iota

// authed verifies the session cookie and injects the caller's user id into
// the request context. No cookie is 401, a bad token is 403.
func (s *Server) authed(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		cookie, err := r.Cookie(auth.CookieName)
		if err != nil {
			writeError(w, httperr.Unauthorized("Auth Error", "missing token"))
			return
		}
		userID, err := auth.AuthenticateJWT(cookie.Value)
		if err != nil {
			writeError(w, httperr.Forbidden("Auth Error", "invalid token"))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		h(w, r.WithContext(ctx), ps)
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *httperr.Error) {
	writeJSON(w, err.Status, err)
}

// fail maps a service error onto the wire, wrapping unknown errors with the
// given toast title.
func fail(w http.ResponseWriter, err error, title string) {
	writeError(w, httperr.From(err, title))
}

// decodeBody parses the JSON request body into out.
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return httperr.Precondition("Request Error", "invalid request payload")
	}
	return nil
}
