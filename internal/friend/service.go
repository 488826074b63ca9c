// internal/friend/service.go
package friend

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 5

// MessageTail bounds the per-friend history returned in views.
const MessageTail = 13

// Service maintains the symmetric friend graph. Every pairwise operation
// writes both sides, keeping the friendship invariant (A lists B iff B
// lists A).
type Service struct {
	store store.Store
	log   *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(st store.Store, log *logrus.Logger) *Service {
	return &Service{
		store: st,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EnsureRecord creates the friend document at registration with a fresh
// unique friend code. Idempotent.
func (s *Service) EnsureRecord(ctx context.Context, userID string) error {
	if _, err := s.store.Read(ctx, store.ColFriends, userID); err == nil {
		return nil
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return err
	}
	doc, err := store.Encode(models.FriendDoc{
		FriendCode:      code,
		Friends:         []models.FriendEntry{},
		SentRequests:    []models.FriendRef{},
		PendingRequests: []models.FriendRef{},
		BlockedUsers:    []models.FriendRef{},
		Invitations:     []models.Invitation{},
	})
	if err != nil {
		return httperr.Internal("Friend Error", err)
	}
	if err := s.store.Insert(ctx, store.ColFriends, userID, doc); err != nil {
		return httperr.Internal("Friend Error", err)
	}
	return nil
}

// SendRequest resolves a friend code and opens a request toward its owner.
func (s *Service) SendRequest(ctx context.Context, userID, friendCode string) error {
	friendCode = strings.ToUpper(strings.TrimSpace(friendCode))

	targetID, target, err := s.findByCode(ctx, friendCode)
	if err != nil {
		return err
	}
	if targetID == userID {
		return httperr.Precondition("Friend Request Error", "cannot befriend yourself")
	}

	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if own.FindFriend(targetID) != nil {
		return httperr.Precondition("Friend Request Error", "already friends")
	}
	if own.HasSent(targetID) {
		return httperr.Precondition("Friend Request Error", "request already sent")
	}
	if own.HasPending(targetID) {
		return httperr.Precondition("Friend Request Error", "this user already sent you a request")
	}
	for _, b := range target.BlockedUsers {
		if b.UserID == userID {
			return httperr.Forbidden("Friend Request Error", "you are blocked by this user")
		}
	}

	ownRef := s.ref(ctx, userID)
	targetRef := s.ref(ctx, targetID)

	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Push: map[string]any{"sentRequests": targetRef},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	err = s.store.Update(ctx, store.ColFriends, targetID, &store.Patch{
		Push: map[string]any{"pendingRequests": ownRef},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	return nil
}

// Accept turns a pending request into a friendship on both sides.
func (s *Service) Accept(ctx context.Context, userID, requesterID string) error {
	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !own.HasPending(requesterID) {
		return httperr.NotFound("Friend Request Error", "no pending request from this user")
	}

	ownRef := s.ref(ctx, userID)
	requesterRef := s.ref(ctx, requesterID)

	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Pull: map[string]any{"pendingRequests": map[string]any{"userId": requesterID}},
		Push: map[string]any{"friends": newEntry(requesterRef)},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	err = s.store.Update(ctx, store.ColFriends, requesterID, &store.Patch{
		Pull: map[string]any{"sentRequests": map[string]any{"userId": userID}},
		Push: map[string]any{"friends": newEntry(ownRef)},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	return nil
}

// Decline drops a pending request from both sides.
func (s *Service) Decline(ctx context.Context, userID, requesterID string) error {
	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !own.HasPending(requesterID) {
		return httperr.NotFound("Friend Request Error", "no pending request from this user")
	}

	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Pull: map[string]any{"pendingRequests": map[string]any{"userId": requesterID}},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	err = s.store.Update(ctx, store.ColFriends, requesterID, &store.Patch{
		Pull: map[string]any{"sentRequests": map[string]any{"userId": userID}},
	})
	if err != nil {
		return httperr.Internal("Friend Request Error", err)
	}
	return nil
}

// Remove dissolves a friendship on both sides, message history included.
func (s *Service) Remove(ctx context.Context, userID, friendID string) error {
	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if own.FindFriend(friendID) == nil {
		return httperr.NotFound("Friend Error", "not friends with this user")
	}

	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Pull: map[string]any{"friends": map[string]any{"userId": friendID}},
	})
	if err != nil {
		return httperr.Internal("Friend Error", err)
	}
	err = s.store.Update(ctx, store.ColFriends, friendID, &store.Patch{
		Pull: map[string]any{"friends": map[string]any{"userId": userID}},
	})
	if err != nil {
		return httperr.Internal("Friend Error", err)
	}
	return nil
}

// SendMessage appends one 1:1 message to both histories. The sender's copy
// is labeled "You", the receiver's copy carries the sender's username and
// bumps the unread counter.
func (s *Service) SendMessage(ctx context.Context, userID, friendID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return httperr.Precondition("Friend Message Error", "message is empty")
	}

	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	other, err := s.load(ctx, friendID)
	if err != nil {
		return err
	}
	ownIdx := entryIndex(own, friendID)
	otherIdx := entryIndex(other, userID)
	if ownIdx < 0 || otherIdx < 0 {
		return httperr.NotFound("Friend Message Error", "not friends with this user")
	}

	now := time.Now().UTC()
	senderName := s.ref(ctx, userID).Username

	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Push: map[string]any{
			"friends." + strconv.Itoa(ownIdx) + ".messages": models.FriendMessage{
				Sender: "You", Message: text, Timestamp: now,
			},
		},
	})
	if err != nil {
		return httperr.Internal("Friend Message Error", err)
	}
	err = s.store.Update(ctx, store.ColFriends, friendID, &store.Patch{
		Push: map[string]any{
			"friends." + strconv.Itoa(otherIdx) + ".messages": models.FriendMessage{
				Sender: senderName, Message: text, Timestamp: now,
			},
		},
		Inc: map[string]int{"friends." + strconv.Itoa(otherIdx) + ".unreadCount": 1},
	})
	if err != nil {
		return httperr.Internal("Friend Message Error", err)
	}
	return nil
}

// MarkRead zeroes the unread counter for one conversation, caller's side
// only.
func (s *Service) MarkRead(ctx context.Context, userID, friendID string) error {
	own, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	idx := entryIndex(own, friendID)
	if idx < 0 {
		return httperr.NotFound("Friend Error", "not friends with this user")
	}
	err = s.store.Update(ctx, store.ColFriends, userID, &store.Patch{
		Set: map[string]any{"friends." + strconv.Itoa(idx) + ".unreadCount": 0},
	})
	if err != nil {
		return httperr.Internal("Friend Error", err)
	}
	return nil
}

// View is what the friend endpoints and the fan-out send to a client.
type View struct {
	FriendCode      string               `json:"friendCode"`
	Friends         []models.FriendEntry `json:"friends"`
	SentRequests    []models.FriendRef   `json:"sentRequests"`
	PendingRequests []models.FriendRef   `json:"pendingRequests"`
	Invitations     []models.Invitation  `json:"invitations"`
}

// Get loads the caller's record with every history trimmed to the trailing
// MessageTail messages.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	doc, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildView(doc), nil
}

// BuildView trims a friend document into its outbound shape.
func BuildView(doc *models.FriendDoc) *View {
	friends := make([]models.FriendEntry, len(doc.Friends))
	for i, f := range doc.Friends {
		if len(f.Messages) > MessageTail {
			f.Messages = f.Messages[len(f.Messages)-MessageTail:]
		}
		friends[i] = f
	}
	return &View{
		FriendCode:      doc.FriendCode,
		Friends:         friends,
		SentRequests:    doc.SentRequests,
		PendingRequests: doc.PendingRequests,
		Invitations:     doc.Invitations,
	}
}

func newEntry(ref models.FriendRef) models.FriendEntry {
	return models.FriendEntry{
		UserID:   ref.UserID,
		Username: ref.Username,
		Avatar:   ref.Avatar,
		Messages: []models.FriendMessage{},
	}
}

func entryIndex(doc *models.FriendDoc, userID string) int {
	for i := range doc.Friends {
		if doc.Friends[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Service) load(ctx context.Context, userID string) (*models.FriendDoc, error) {
	doc, err := s.store.Read(ctx, store.ColFriends, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("Friend Error", "friend record not found")
	}
	if err != nil {
		return nil, httperr.Internal("Friend Error", err)
	}
	var fd models.FriendDoc
	if err := store.Decode(doc, &fd); err != nil {
		return nil, httperr.Internal("Friend Error", err)
	}
	return &fd, nil
}

func (s *Service) findByCode(ctx context.Context, code string) (string, *models.FriendDoc, error) {
	docs, err := s.store.ReadAll(ctx, store.ColFriends)
	if err != nil {
		return "", nil, httperr.Internal("Friend Request Error", err)
	}
	for id, doc := range docs {
		var fd models.FriendDoc
		if err := store.Decode(doc, &fd); err != nil {
			continue
		}
		if fd.FriendCode == code {
			return id, &fd, nil
		}
	}
	return "", nil, httperr.NotFound("Friend Request Error", "no user with this friend code")
}

// ref builds the display reference pushed onto request and friend lists.
func (s *Service) ref(ctx context.Context, userID string) models.FriendRef {
	ref := models.FriendRef{UserID: userID, Username: "Unknown", Avatar: "default.svg"}
	doc, err := s.store.Read(ctx, store.ColUsers, userID)
	if err != nil {
		return ref
	}
	var p models.Profile
	if err := store.Decode(doc, &p); err != nil {
		return ref
	}
	if p.Username != "" {
		ref.Username = p.Username
	}
	if p.Avatar != "" {
		ref.Avatar = p.Avatar
	}
	return ref
}

func (s *Service) generateCode(ctx context.Context) (string, error) {
	docs, err := s.store.ReadAll(ctx, store.ColFriends)
	if err != nil {
		return "", httperr.Internal("Friend Error", err)
	}
	taken := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if c, ok := doc["friendCode"].(string); ok {
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
