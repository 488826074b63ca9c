// internal/chat/service.go
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

// TailSize bounds every chat read to the most recent messages.
const TailSize = 15

// Service is the per-lobby message log. A chat shares its id and lifecycle
// with its lobby.
type Service struct {
	store store.Store
	log   *logrus.Logger
}

func NewService(st store.Store, log *logrus.Logger) *Service {
	return &Service{store: st, log: log}
}

// Send appends a message. The sender must be a player or spectator of the
// lobby behind the chat.
func (s *Service) Send(ctx context.Context, userID, chatID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return httperr.Precondition("Chat Error", "message is empty")
	}

	lobDoc, err := s.store.Read(ctx, store.ColLobbies, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("Chat Error", "lobby not found")
	}
	if err != nil {
		return httperr.Internal("Chat Error", err)
	}
	var lob models.Lobby
	if err := store.Decode(lobDoc, &lob); err != nil {
		return httperr.Internal("Chat Error", err)
	}

	var name string
	switch {
	case lob.FindPlayer(userID) != nil:
		name = lob.FindPlayer(userID).Name
	case lob.FindSpectator(userID) != nil:
		name = lob.FindSpectator(userID).Name
	default:
		return httperr.Forbidden("Chat Error", "not a member of this lobby")
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Message:   text,
		Timestamp: time.Now().UTC(),
	}
	err = s.store.Update(ctx, store.ColChats, chatID, &store.Patch{
		Push: map[string]any{"messages": msg},
	})
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("Chat Error", "chat not found")
	}
	if err != nil {
		return httperr.Internal("Chat Error", err)
	}
	return nil
}

// Tail returns the last messages of a chat, oldest first.
func (s *Service) Tail(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	doc, err := s.store.Read(ctx, store.ColChats, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("Chat Error", "chat not found")
	}
	if err != nil {
		return nil, httperr.Internal("Chat Error", err)
	}
	var c models.Chat
	if err := store.Decode(doc, &c); err != nil {
		return nil, httperr.Internal("Chat Error", err)
	}
	return Tail(c.Messages), nil
}

// Tail trims a message log to the newest TailSize entries.
func Tail(msgs []models.ChatMessage) []models.ChatMessage {
	if len(msgs) <= TailSize {
		return msgs
	}
	return msgs[len(msgs)-TailSize:]
}
