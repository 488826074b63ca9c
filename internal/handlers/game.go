// internal/handlers/game.go
package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
)

// FlipRow flips one pyramid row face up; master only, in row order.
func (s *Server) FlipRow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Idx int `json:"idx"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Flip Row Error")
		return
	}
	if err := s.Engine.FlipRow(r.Context(), ps.ByName("gameId"), callerID(r), req.Idx); err != nil {
		fail(w, err, "Flip Row Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flipped": true})
}

// LayCard plays one card from the caller's hand.
func (s *Server) LayCard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Idx int `json:"idx"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Lay Card Error")
		return
	}
	if err := s.Engine.LayCard(r.Context(), ps.ByName("gameId"), callerID(r), req.Idx); err != nil {
		fail(w, err, "Lay Card Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"layed": true})
}

// CardAction resolves one phase 3 guess.
func (s *Server) CardAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		CardIdx      string `json:"cardIdx"`
		Action       string `json:"action"`
		SecondAction string `json:"secondAction"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Card Action Error")
		return
	}
	err := s.Engine.CardAction(r.Context(), ps.ByName("gameId"), callerID(r), req.CardIdx, req.Action, req.SecondAction)
	if err != nil {
		fail(w, err, "Card Action Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": true})
}

// GiveDrink adjusts the Avatar-mode allocation for one target player.
func (s *Server) GiveDrink(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		PlayerID string `json:"playerId"`
		Inc      int    `json:"inc"`
	}
	if err := decodeBody(r, &req); err != nil {
		fail(w, err, "Give Drink Error")
		return
	}
	err := s.Engine.GiveDrink(r.Context(), ps.ByName("gameId"), callerID(r), req.PlayerID, req.Inc)
	if err != nil {
		fail(w, err, "Give Drink Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"given": true})
}

// NextPlayer ends the caller's turn.
func (s *Server) NextPlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.NextPlayer(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "Next Player Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": true})
}

// StartPhase2 collapses the pyramid; master only, once armed.
func (s *Server) StartPhase2(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.StartPhase2(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "Phase Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true})
}

// StartPhase3 elects the busfahrer and lays out the ride; master only.
func (s *Server) StartPhase3(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.StartPhase3(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "Phase Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true})
}

// RetryPhase3 resets a failed ride; master only.
func (s *Server) RetryPhase3(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.RetryPhase3(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "Phase Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// OpenNewGame deletes the finished game and reopens the lobby.
func (s *Server) OpenNewGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.OpenNewGame(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "New Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opened": true})
}

// LeaveGame removes the caller from a running game.
func (s *Server) LeaveGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.Engine.Leave(r.Context(), ps.ByName("gameId"), callerID(r)); err != nil {
		fail(w, err, "Leave Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": true})
}

// GetGameInfo returns the round header.
func (s *Server) GetGameInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, game.ViewGameInfo(g))
}

// GetPlayerInfo returns the caller's turn frame.
func (s *Server) GetPlayerInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, game.ViewTurnInfo(g, callerID(r)))
}

// GetDrinkInfo returns the caller's drink allocation state.
func (s *Server) GetDrinkInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, game.ViewDrink(g, callerID(r)))
}

// GetGameCards returns the shared layout with unflipped faces hidden.
func (s *Server) GetGameCards(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": game.MaskedCards(g)})
}

// GetPlayerCards returns the caller's own hand.
func (s *Server) GetPlayerCards(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": game.ViewPlayerCards(g, callerID(r))})
}

// GetBusfahrer returns the display name of the elected drivers.
func (s *Server) GetBusfahrer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"busfahrerName": game.BusfahrerName(g)})
}

// GetGamePlayers returns every player's table presence.
func (s *Server) GetGamePlayers(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": game.ViewAvatars(g)})
}

// GetGameSettings returns the settings the client renders mid-game.
func (s *Server) GetGameSettings(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := s.Engine.Info(r.Context(), ps.ByName("gameId"))
	if err != nil {
		fail(w, err, "Game Error")
		return
	}
	writeJSON(w, http.StatusOK, game.ViewSettings(g))
}
