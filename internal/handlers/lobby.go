// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/lobby"
)

// CreateLobby opens a new lobby with the caller as master.
func (s *Server) CreateLobby(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req lobby.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Create Lobby Error")
		return
	}
	lobbyID, err := s.Lobbies.Create(r.Context(), callerID(r), req)
	if err != nil {
		fail(w, err, "Create Lobby Error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lobbyId": lobbyID})
}

// CheckLobbyCode resolves a join code and reserves a joining slot.
func (s *Server) CheckLobbyCode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		LobbyCode string `json:"lobbyCode"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Join Lobby Error")
		return
	}
	lobbyID, err := s.Lobbies.Authenticate(r.Context(), callerID(r), req.LobbyCode)
	if err != nil {
		fail(w, err, "Join Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbyId": lobbyID})
}

// JoinLobby converts the caller's reserved slot into a seat.
func (s *Server) JoinLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		PlayerName string `json:"playerName"`
		Gender     string `json:"gender"`
		Spectator  bool   `json:"spectator"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Join Lobby Error")
		return
	}
	err := s.Lobbies.Join(r.Context(), callerID(r), ps.ByName("lobbyId"), req.PlayerName, req.Gender, req.Spectator)
	if err != nil {
		fail(w, err, "Join Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"joined": true})
}

// LeaveJoin releases a reserved joining slot without taking a seat.
func (s *Server) LeaveJoin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Lobbies.LeaveJoin(r.Context(), callerID(r), ps.ByName("lobbyId")); err != nil {
		fail(w, err, "Leave Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": true})
}

// LeaveLobby removes the caller's seat, promoting or closing as needed.
func (s *Server) LeaveLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Lobbies.Leave(r.Context(), callerID(r), ps.ByName("lobbyId")); err != nil {
		fail(w, err, "Leave Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": true})
}

// KickLobbyPlayer removes another seat; master only.
func (s *Server) KickLobbyPlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Kick Player Error")
		return
	}
	if err := s.Lobbies.Kick(r.Context(), ps.ByName("lobbyId"), callerID(r), req.PlayerID); err != nil {
		fail(w, err, "Kick Player Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kicked": true})
}

// StartGame builds the game document and flips the lobby to STARTED.
func (s *Server) StartGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID, err := s.Lobbies.Start(r.Context(), ps.ByName("lobbyId"), callerID(r))
	if err != nil {
		fail(w, err, "Start Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameId": gameID})
}

// InviteFriend drops a lobby invitation onto a friend's record.
func (s *Server) InviteFriend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		FriendID string `json:"friendId"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Invite Error")
		return
	}
	if err := s.Lobbies.Invite(r.Context(), callerID(r), req.FriendID, ps.ByName("lobbyId")); err != nil {
		fail(w, err, "Invite Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invited": true})
}

// AcceptInvitation consumes an invitation and reserves a joining slot.
func (s *Server) AcceptInvitation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lobbyID, err := s.Lobbies.AcceptInvitation(r.Context(), callerID(r), ps.ByName("lobbyId"))
	if err != nil {
		fail(w, err, "Invitation Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbyId": lobbyID})
}

// DeclineInvitation drops an invitation.
func (s *Server) DeclineInvitation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Lobbies.DeclineInvitation(r.Context(), callerID(r), ps.ByName("lobbyId")); err != nil {
		fail(w, err, "Invitation Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"declined": true})
}

// GetLobbies lists the public lobbies still accepting players.
func (s *Server) GetLobbies(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	lobbies, err := s.Lobbies.Lobbies(r.Context())
	if err != nil {
		fail(w, err, "Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbies": lobbies})
}

// GetLobbyInfo returns the full lobby document for a member.
func (s *Server) GetLobbyInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lob, err := s.Lobbies.Info(r.Context(), ps.ByName("lobbyId"))
	if err != nil {
		fail(w, err, "Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, lob)
}

// IsLobbyMaster reports whether the caller holds the master seat.
func (s *Server) IsLobbyMaster(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	isMaster, err := s.Lobbies.IsMaster(r.Context(), ps.ByName("lobbyId"), callerID(r))
	if err != nil {
		fail(w, err, "Lobby Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isMaster": isMaster})
}

// LobbyQR renders the lobby's join code as a PNG QR for invite sharing.
func (s *Server) LobbyQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lob, err := s.Lobbies.Info(r.Context(), ps.ByName("lobbyId"))
	if err != nil {
		fail(w, err, "Lobby Error")
		return
	}

	const qrSize = 320
	png, err := qrcode.Encode(lob.LobbyCode, qrcode.Medium, qrSize)
	if err != nil {
		fail(w, httperr.Internal("Lobby Error", err), "Lobby Error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// SendChatMessage appends one message to a lobby chat.
func (s *Server) SendChatMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Chat Error")
		return
	}
	if err := s.Chats.Send(r.Context(), callerID(r), ps.ByName("lobbyId"), req.Message); err != nil {
		fail(w, err, "Chat Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// GetChatMessages returns the trailing chat window.
func (s *Server) GetChatMessages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	msgs, err := s.Chats.Tail(r.Context(), ps.ByName("lobbyId"))
	if err != nil {
		fail(w, err, "Chat Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
