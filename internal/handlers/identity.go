// internal/handlers/identity.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/database"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates the Postgres identity row plus the profile and friend
// documents, then logs the new user in with the longer registration TTL.
func (s *Server) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Register Error")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		fail(w, httperr.Precondition("Register Error", "username and password are required"), "Register Error")
		return
	}

	ctx := r.Context()
	userID, err := s.DB.CreateUser(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			fail(w, httperr.Precondition("Register Error", "username already taken"), "Register Error")
			return
		}
		fail(w, err, "Register Error")
		return
	}

	if err := s.Accounts.EnsureProfile(ctx, userID, req.Username); err != nil {
		fail(w, err, "Register Error")
		return
	}
	if err := s.Friends.EnsureRecord(ctx, userID); err != nil {
		fail(w, err, "Register Error")
		return
	}

	token, err := auth.CreateJWT(userID, auth.RegisterTTL)
	if err != nil {
		fail(w, err, "Register Error")
		return
	}
	setSessionCookie(w, token, int(auth.RegisterTTL.Seconds()))
	writeJSON(w, http.StatusCreated, map[string]any{"userId": userID})
}

// Login verifies credentials and issues a fresh session cookie.
func (s *Server) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Login Error")
		return
	}

	userID, err := s.DB.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			fail(w, httperr.Forbidden("Login Error", "invalid username or password"), "Login Error")
			return
		}
		fail(w, err, "Login Error")
		return
	}

	token, err := auth.CreateJWT(userID, auth.LoginTTL)
	if err != nil {
		fail(w, err, "Login Error")
		return
	}
	setSessionCookie(w, token, int(auth.LoginTTL.Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID})
}

// CheckAuth confirms the session is still valid.
func (s *Server) CheckAuth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        callerID(r),
	})
}

// Logout drops the session cookie.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}
