// internal/lobby/service.go
package lobby

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 5

// Service owns the lobby lifecycle: creation, code-based joining, kicks,
// master inheritance and the handover into a running game.
type Service struct {
	store store.Store
	reg   *registry.Registry
	log   *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(st store.Store, reg *registry.Registry, log *logrus.Logger) *Service {
	return &Service{
		store: st,
		reg:   reg,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRequest carries the master's choices at lobby creation.
type CreateRequest struct {
	Name       string              `json:"lobbyName"`
	PlayerName string              `json:"playerName"`
	Private    bool                `json:"private"`
	Gender     string              `json:"gender"`
	Settings   models.GameSettings `json:"settings"`
}

// Create inserts a fresh lobby with the caller as master, together with its
// chat. Returns the new lobby id.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.PlayerName) == "" {
		return "", httperr.Precondition("Create Lobby Error", "lobby and player name are required")
	}
	settings := req.Settings
	if settings.PlayerLimit == 0 {
		settings = models.DefaultSettings()
	}
	if settings.PlayerLimit < 2 || settings.PlayerLimit > 10 {
		return "", httperr.Precondition("Create Lobby Error", "player limit must be between 2 and 10")
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return "", err
	}
	profile := s.profile(ctx, userID, req.PlayerName)

	lobbyID := uuid.NewString()
	now := time.Now().UTC()
	lob := models.Lobby{
		Name:      req.Name,
		LobbyCode: code,
		Status:    models.LobbyWaiting,
		Private:   req.Private,
		Players: []models.LobbyPlayer{{
			ID:       userID,
			Name:     req.PlayerName,
			Role:     models.RoleMaster,
			Gender:   req.Gender,
			Avatar:   profile.Avatar,
			Title:    profile.Title,
			JoinedAt: now,
		}},
		Spectators: []models.LobbyPlayer{},
		IsJoining:  []string{},
		Settings:   settings,
		CreatedAt:  now,
	}

	doc, err := store.Encode(lob)
	if err != nil {
		return "", httperr.Internal("Create Lobby Error", err)
	}
	if err := s.store.Insert(ctx, store.ColLobbies, lobbyID, doc); err != nil {
		return "", httperr.Internal("Create Lobby Error", err)
	}

	chatDoc, err := store.Encode(models.Chat{Name: req.Name, ChatCode: code, Messages: []models.ChatMessage{}})
	if err != nil {
		return "", httperr.Internal("Create Lobby Error", err)
	}
	if err := s.store.Insert(ctx, store.ColChats, lobbyID, chatDoc); err != nil {
		return "", httperr.Internal("Create Lobby Error", err)
	}

	s.log.WithFields(logrus.Fields{"lobbyId": lobbyID, "code": code, "userId": userID}).
		Info("lobby created")
	return lobbyID, nil
}

// Authenticate resolves a lobby code and reserves a joining slot for the
// caller. The slot counts toward the player limit.
func (s *Service) Authenticate(ctx context.Context, userID, lobbyCode string) (string, error) {
	lobbyCode = strings.ToUpper(strings.TrimSpace(lobbyCode))

	lobbyID, lob, err := s.findByCode(ctx, lobbyCode)
	if err != nil {
		return "", err
	}
	if lob.Status != models.LobbyWaiting {
		return "", httperr.Precondition("Join Lobby Error", "game already started")
	}
	if lob.FindPlayer(userID) != nil || lob.FindSpectator(userID) != nil {
		return "", httperr.Precondition("Join Lobby Error", "already a member of this lobby")
	}
	if lob.IsJoiningUser(userID) {
		return lobbyID, nil
	}
	if len(lob.Players)+len(lob.IsJoining) >= lob.Settings.PlayerLimit {
		return "", httperr.Precondition("Join Lobby Error", "lobby is full")
	}

	err = s.store.Update(ctx, store.ColLobbies, lobbyID, &store.Patch{
		Push: map[string]any{"isJoining": userID},
	})
	if err != nil {
		return "", httperr.Internal("Join Lobby Error", err)
	}
	return lobbyID, nil
}

// LeaveJoin releases a reserved joining slot.
func (s *Service) LeaveJoin(ctx context.Context, userID, lobbyID string) error {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return err
	}
	if !lob.IsJoiningUser(userID) {
		return httperr.Precondition("Leave Lobby Error", "not currently joining this lobby")
	}
	err = s.store.Update(ctx, store.ColLobbies, lobbyID, &store.Patch{
		Pull: map[string]any{"isJoining": userID},
	})
	if err != nil {
		return httperr.Internal("Leave Lobby Error", err)
	}
	return nil
}

// Join converts a joining slot into a seat among players or spectators.
func (s *Service) Join(ctx context.Context, userID, lobbyID, playerName, gender string, spectator bool) error {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return err
	}
	if lob.Status != models.LobbyWaiting {
		return httperr.Precondition("Join Lobby Error", "game already started")
	}
	if lob.FindPlayer(userID) != nil || lob.FindSpectator(userID) != nil {
		return httperr.Precondition("Join Lobby Error", "already a member of this lobby")
	}
	if !lob.IsJoiningUser(userID) {
		return httperr.Precondition("Join Lobby Error", "no joining slot reserved")
	}

	profile := s.profile(ctx, userID, playerName)
	seat := models.LobbyPlayer{
		ID:       userID,
		Name:     playerName,
		Gender:   gender,
		Avatar:   profile.Avatar,
		Title:    profile.Title,
		JoinedAt: time.Now().UTC(),
	}

	patch := &store.Patch{
		Push: map[string]any{},
		Pull: map[string]any{"isJoining": userID},
	}
	if spectator {
		seat.Role = models.RoleSpectator
		patch.Push["spectators"] = seat
	} else {
		seat.Role = models.RolePlayer
		patch.Push["players"] = seat
		if len(lob.Players)+1 >= lob.Settings.PlayerLimit {
			patch.Set = map[string]any{"status": models.LobbyFull}
		}
	}
	if err := s.store.Update(ctx, store.ColLobbies, lobbyID, patch); err != nil {
		return httperr.Internal("Join Lobby Error", err)
	}
	return nil
}

// Kick removes a player or spectator, master only. The target's lobby socket
// receives a kickUpdate so its client returns to the menu.
func (s *Service) Kick(ctx context.Context, lobbyID, masterID, targetID string) error {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return err
	}
	if err := s.requireMaster(lob, masterID); err != nil {
		return err
	}
	if targetID == masterID {
		return httperr.Precondition("Kick Error", "cannot kick yourself")
	}

	patch := &store.Patch{Pull: map[string]any{}}
	switch {
	case lob.FindPlayer(targetID) != nil:
		patch.Pull["players"] = map[string]any{"id": targetID}
		if lob.Status == models.LobbyFull {
			patch.Set = map[string]any{"status": models.LobbyWaiting}
		}
	case lob.FindSpectator(targetID) != nil:
		patch.Pull["spectators"] = map[string]any{"id": targetID}
	default:
		return httperr.NotFound("Kick Error", "player not found in lobby")
	}

	if err := s.store.Update(ctx, store.ColLobbies, lobbyID, patch); err != nil {
		return httperr.Internal("Kick Error", err)
	}
	s.reg.SendToLobbyUser(lobbyID, targetID, registry.Message{Type: "kickUpdate"})
	return nil
}

// Start snapshots the lobby into a PHASE1 game document and flips the lobby
// to STARTED. Every lobby subscriber receives startUpdate with the game id.
func (s *Service) Start(ctx context.Context, lobbyID, masterID string) (string, error) {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return "", err
	}
	if err := s.requireMaster(lob, masterID); err != nil {
		return "", err
	}
	if lob.Status == models.LobbyStarted {
		return "", httperr.Precondition("Start Game Error", "game already started")
	}
	if len(lob.Players) < 2 {
		return "", httperr.Precondition("Start Game Error", "need at least 2 players")
	}

	s.mu.Lock()
	g := game.Build(lob, s.rng)
	s.mu.Unlock()

	doc, err := store.Encode(g)
	if err != nil {
		return "", httperr.Internal("Start Game Error", err)
	}
	if err := s.store.Insert(ctx, store.ColGames, lobbyID, doc); err != nil {
		return "", httperr.Internal("Start Game Error", err)
	}
	err = s.store.Update(ctx, store.ColLobbies, lobbyID, &store.Patch{
		Set: map[string]any{"status": models.LobbyStarted},
	})
	if err != nil {
		return "", httperr.Internal("Start Game Error", err)
	}

	s.reg.BroadcastLobby(lobbyID, registry.Message{
		Type: "startUpdate",
		Data: map[string]any{"gameId": lobbyID},
	})
	s.log.WithFields(logrus.Fields{"lobbyId": lobbyID, "players": len(lob.Players)}).
		Info("game started")
	return lobbyID, nil
}

// Invite appends a lobby invitation to a friend's record. Both users must
// already be friends.
func (s *Service) Invite(ctx context.Context, userID, friendID, lobbyID string) error {
	if _, err := s.load(ctx, lobbyID); err != nil {
		return err
	}

	doc, err := s.store.Read(ctx, store.ColFriends, friendID)
	if err != nil {
		return httperr.NotFound("Invite Error", "friend record not found")
	}
	var fd models.FriendDoc
	if err := store.Decode(doc, &fd); err != nil {
		return httperr.Internal("Invite Error", err)
	}
	if fd.FindFriend(userID) == nil {
		return httperr.Forbidden("Invite Error", "you are not friends with this user")
	}
	for _, inv := range fd.Invitations {
		if inv.LobbyID == lobbyID {
			return httperr.Precondition("Invite Error", "already invited to this lobby")
		}
	}

	inviter := s.profile(ctx, userID, "Unknown")
	err = s.store.Update(ctx, store.ColFriends, friendID, &store.Patch{
		Push: map[string]any{"invitations": models.Invitation{LobbyID: lobbyID, Player: inviter.Username}},
	})
	if err != nil {
		return httperr.Internal("Invite Error", err)
	}
	return nil
}

// AcceptInvitation consumes the invitation and reserves a joining slot.
func (s *Service) AcceptInvitation(ctx context.Context, userID, lobbyID string) (string, error) {
	if err := s.pullInvitation(ctx, userID, lobbyID, "Accept Invitation Error"); err != nil {
		return "", err
	}

	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return "", err
	}
	if lob.Status != models.LobbyWaiting {
		return "", httperr.Precondition("Accept Invitation Error", "game already started")
	}
	if lob.FindPlayer(userID) != nil || lob.FindSpectator(userID) != nil || lob.IsJoiningUser(userID) {
		return lobbyID, nil
	}
	if len(lob.Players)+len(lob.IsJoining) >= lob.Settings.PlayerLimit {
		return "", httperr.Precondition("Accept Invitation Error", "lobby is full")
	}
	err = s.store.Update(ctx, store.ColLobbies, lobbyID, &store.Patch{
		Push: map[string]any{"isJoining": userID},
	})
	if err != nil {
		return "", httperr.Internal("Accept Invitation Error", err)
	}
	return lobbyID, nil
}

// DeclineInvitation drops the invitation without joining.
func (s *Service) DeclineInvitation(ctx context.Context, userID, lobbyID string) error {
	return s.pullInvitation(ctx, userID, lobbyID, "Decline Invitation Error")
}

func (s *Service) pullInvitation(ctx context.Context, userID, lobbyID, title string) error {
	doc, err := s.store.Read(ctx, store.ColFriends, userID)
	if err != nil {
		return httperr.NotFound(title, "friend record not found")
	}
	var fd models.FriendDoc
	if err := store.Decode(doc, &fd); err != nil {
		return httperr.Internal(title, err)
	}
	found := false
	for _, inv := range fd.Invitations {
		if inv.LobbyID == lobbyID {
			found = true
			break
		}
	}
	if !found {
		return httperr.NotFound(title, "invitation not found")
	}
	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Pull: map[string]any{"invitations": map[string]any{"lobbyId": lobbyID}},
	})
	if err != nil {
		return httperr.Internal(title, err)
	}
	return nil
}

// Leave removes the caller from the lobby. The last player tears the lobby
// down; a leaving master either promotes the earliest-joined player (when
// canInherit is set) or closes the lobby for everyone.
func (s *Service) Leave(ctx context.Context, userID, lobbyID string) error {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		var he *httperr.Error
		// Cleanup may fire after the lobby is already gone.
		if errors.As(err, &he) && he.Status == 404 {
			return nil
		}
		return err
	}

	seat := lob.FindPlayer(userID)
	switch {
	case seat != nil:
		return s.leavePlayer(ctx, lob, lobbyID, userID, seat)
	case lob.FindSpectator(userID) != nil:
		return s.pullSeat(ctx, lobbyID, &store.Patch{
			Pull: map[string]any{"spectators": map[string]any{"id": userID}},
		})
	case lob.IsJoiningUser(userID):
		return s.pullSeat(ctx, lobbyID, &store.Patch{
			Pull: map[string]any{"isJoining": userID},
		})
	default:
		return nil
	}
}

func (s *Service) leavePlayer(ctx context.Context, lob *models.Lobby, lobbyID, userID string, seat *models.LobbyPlayer) error {
	if len(lob.Players) <= 1 {
		return s.teardown(ctx, lobbyID)
	}

	if seat.Role == models.RoleMaster {
		if !lob.Settings.CanInherit {
			return s.teardown(ctx, lobbyID)
		}
		heir := -1
		for i := range lob.Players {
			if lob.Players[i].ID == userID {
				continue
			}
			if heir < 0 || lob.Players[i].JoinedAt.Before(lob.Players[heir].JoinedAt) {
				heir = i
			}
		}
		patch := &store.Patch{
			// Set runs before Pull, so the heir's original index is stable.
			Set:  map[string]any{"players." + strconv.Itoa(heir) + ".role": models.RoleMaster},
			Pull: map[string]any{"players": map[string]any{"id": userID}},
		}
		if lob.Status == models.LobbyFull {
			patch.Set["status"] = models.LobbyWaiting
		}
		if err := s.store.Update(ctx, store.ColLobbies, lobbyID, patch); err != nil {
			return httperr.Internal("Leave Lobby Error", err)
		}
		s.reg.SendToLobbyUser(lobbyID, lob.Players[heir].ID, registry.Message{
			Type: "roleUpdate",
			Data: map[string]any{"isGameMaster": true},
		})
		return nil
	}

	patch := &store.Patch{Pull: map[string]any{"players": map[string]any{"id": userID}}}
	if lob.Status == models.LobbyFull {
		patch.Set = map[string]any{"status": models.LobbyWaiting}
	}
	return s.pullSeat(ctx, lobbyID, patch)
}

func (s *Service) pullSeat(ctx context.Context, lobbyID string, patch *store.Patch) error {
	if err := s.store.Update(ctx, store.ColLobbies, lobbyID, patch); err != nil {
		return httperr.Internal("Leave Lobby Error", err)
	}
	return nil
}

// teardown deletes lobby, chat and any leftover game, then tells every lobby
// subscriber to close.
func (s *Service) teardown(ctx context.Context, lobbyID string) error {
	s.reg.BroadcastLobby(lobbyID, registry.Message{Type: "closeUpdate"})

	if err := s.store.Delete(ctx, store.ColLobbies, lobbyID); err != nil {
		return httperr.Internal("Leave Lobby Error", err)
	}
	if err := s.store.Delete(ctx, store.ColChats, lobbyID); err != nil {
		s.log.Warnf("lobby: deleting chat %s: %v", lobbyID, err)
	}
	if err := s.store.Delete(ctx, store.ColGames, lobbyID); err != nil {
		s.log.Warnf("lobby: deleting game %s: %v", lobbyID, err)
	}
	s.log.WithField("lobbyId", lobbyID).Info("lobby closed")
	return nil
}

// PublicLobby is one row of the public lobby list.
type PublicLobby struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	PlayerLimit int    `json:"playerLimit"`
}

// Lobbies lists every public lobby still accepting players.
func (s *Service) Lobbies(ctx context.Context) ([]PublicLobby, error) {
	docs, err := s.store.ReadAll(ctx, store.ColLobbies)
	if err != nil {
		return nil, httperr.Internal("Lobby Error", err)
	}
	out := []PublicLobby{}
	for id, doc := range docs {
		var lob models.Lobby
		if err := store.Decode(doc, &lob); err != nil {
			continue
		}
		if lob.Private || lob.Status != models.LobbyWaiting {
			continue
		}
		if len(lob.Players)+len(lob.IsJoining) >= lob.Settings.PlayerLimit {
			continue
		}
		out = append(out, PublicLobby{
			ID:          id,
			Name:        lob.Name,
			PlayerCount: len(lob.Players),
			PlayerLimit: lob.Settings.PlayerLimit,
		})
	}
	return out, nil
}

// Info returns the lobby document for a member.
func (s *Service) Info(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	return s.load(ctx, lobbyID)
}

// IsMaster reports whether userID holds the master seat.
func (s *Service) IsMaster(ctx context.Context, lobbyID, userID string) (bool, error) {
	lob, err := s.load(ctx, lobbyID)
	if err != nil {
		return false, err
	}
	seat := lob.FindPlayer(userID)
	return seat != nil && seat.Role == models.RoleMaster, nil
}

func (s *Service) load(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	doc, err := s.store.Read(ctx, store.ColLobbies, lobbyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("Lobby Error", "lobby not found")
	}
	if err != nil {
		return nil, httperr.Internal("Lobby Error", err)
	}
	var lob models.Lobby
	if err := store.Decode(doc, &lob); err != nil {
		return nil, httperr.Internal("Lobby Error", err)
	}
	return &lob, nil
}

func (s *Service) findByCode(ctx context.Context, code string) (string, *models.Lobby, error) {
	docs, err := s.store.ReadAll(ctx, store.ColLobbies)
	if err != nil {
		return "", nil, httperr.Internal("Join Lobby Error", err)
	}
	for id, doc := range docs {
		var lob models.Lobby
		if err := store.Decode(doc, &lob); err != nil {
			continue
		}
		if lob.LobbyCode == code {
			return id, &lob, nil
		}
	}
	return "", nil, httperr.NotFound("Join Lobby Error", "no lobby with this code")
}

func (s *Service) requireMaster(lob *models.Lobby, userID string) error {
	seat := lob.FindPlayer(userID)
	if seat == nil {
		return httperr.NotFound("Lobby Error", "player not found in lobby")
	}
	if seat.Role != models.RoleMaster {
		return httperr.Forbidden("Lobby Error", "only the lobby master may do this")
	}
	return nil
}

// generateCode rejection-samples a fresh 5-char code against the codes of
// all live lobbies.
func (s *Service) generateCode(ctx context.Context) (string, error) {
	docs, err := s.store.ReadAll(ctx, store.ColLobbies)
	if err != nil {
		return "", httperr.Internal("Create Lobby Error", err)
	}
	taken := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if c, ok := doc["lobbyCode"].(string); ok {
			taken[c] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[s.rng.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if !taken[code] {
			return code, nil
		}
	}
}

// profile loads the caller's display document, falling back to defaults when
// it is missing.
func (s *Service) profile(ctx context.Context, userID, fallbackName string) models.Profile {
	doc, err := s.store.Read(ctx, store.ColUsers, userID)
	if err != nil {
		return models.NewProfile(fallbackName)
	}
	var p models.Profile
	if err := store.Decode(doc, &p); err != nil {
		return models.NewProfile(fallbackName)
	}
	return p
}
