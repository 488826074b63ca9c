// internal/handlers/friend.go
package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type friendIDRequest struct {
	FriendID string `json:"friendId"`
}

// GetFriends returns the caller's friend record with trimmed histories.
func (s *Server) GetFriends(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	view, err := s.Friends.Get(r.Context(), callerID(r))
	if err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SendFriendRequest targets another user by friend code.
func (s *Server) SendFriendRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		FriendCode string `json:"friendCode"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.SendRequest(r.Context(), callerID(r), req.FriendCode); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// AcceptFriendRequest establishes the friendship on both sides.
func (s *Server) AcceptFriendRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req friendIDRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.Accept(r.Context(), callerID(r), req.FriendID); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

// DeclineFriendRequest drops a pending request on both sides.
func (s *Server) DeclineFriendRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req friendIDRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.Decline(r.Context(), callerID(r), req.FriendID); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"declined": true})
}

// RemoveFriend dissolves an established friendship on both sides.
func (s *Server) RemoveFriend(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req friendIDRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.Remove(r.Context(), callerID(r), req.FriendID); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

// SendFriendMessage appends one direct message to both history copies.
func (s *Server) SendFriendMessage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		FriendID string `json:"friendId"`
		Message  string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.SendMessage(r.Context(), callerID(r), req.FriendID, req.Message); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// MarkMessagesRead zeroes the caller's unread counter for one conversation.
func (s *Server) MarkMessagesRead(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req friendIDRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	if err := s.Friends.MarkRead(r.Context(), callerID(r), req.FriendID); err != nil {
		fail(w, err, "Friend Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}
