// internal/handlers/account.go
package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// maxAvatarBytes caps uploaded avatar files at 2 MiB.
const maxAvatarBytes = 2 << 20

var allowedAvatarExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// GetAccountInfo returns the caller's profile document.
func (s *Server) GetAccountInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	profile, err := s.Accounts.Get(r.Context(), callerID(r))
	if err != nil {
		fail(w, err, "Account Error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SetTitle switches the caller's active title.
func (s *Server) SetTitle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Account Error")
		return
	}
	if err := s.Accounts.SetActiveTitle(r.Context(), callerID(r), req.Title); err != nil {
		fail(w, err, "Account Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"set": true})
}

// SetCardTheme stores the chosen card back.
func (s *Server) SetCardTheme(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.CardTheme
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Account Error")
		return
	}
	if err := s.Accounts.SetCardTheme(r.Context(), callerID(r), req); err != nil {
		fail(w, err, "Account Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"set": true})
}

// SetAvatar selects one of the built-in avatars.
func (s *Server) SetAvatar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Avatar string `json:"avatar"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Account Error")
		return
	}
	if err := s.Accounts.SetAvatar(r.Context(), callerID(r), req.Avatar); err != nil {
		fail(w, err, "Account Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"set": true})
}

// UploadAvatar stores a custom avatar under the upload dir as <userId><ext>.
// The previous uploaded file is deleted best effort.
func (s *Server) UploadAvatar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := callerID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		fail(w, httperr.Precondition("Avatar Error", "file exceeds the 2 MiB limit"), "Avatar Error")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		fail(w, httperr.Precondition("Avatar Error", "missing avatar file"), "Avatar Error")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAvatarExts[ext] {
		fail(w, httperr.Precondition("Avatar Error", "unsupported file type %s", ext), "Avatar Error")
		return
	}

	filename := userID + ext
	dst, err := os.Create(filepath.Join(s.UploadDir, filename))
	if err != nil {
		fail(w, httperr.Internal("Avatar Error", err), "Avatar Error")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		fail(w, httperr.Internal("Avatar Error", err), "Avatar Error")
		return
	}

	previous, err := s.Accounts.SetUploadedAvatar(r.Context(), userID, filename)
	if err != nil {
		fail(w, err, "Avatar Error")
		return
	}
	if previous != "" && previous != filename {
		if err := os.Remove(filepath.Join(s.UploadDir, previous)); err != nil && !os.IsNotExist(err) {
			s.Log.Warnf("avatar: removing previous upload %s: %v", previous, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"avatar": filename})
}
