// internal/account/service.go
package account

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

// Service owns the display profile: avatar, card theme, titles, achievements
// and the statistics counters the game engine feeds.
type Service struct {
	store store.Store
	log   *logrus.Logger
}

func NewService(st store.Store, log *logrus.Logger) *Service {
	return &Service{store: st, log: log}
}

// defaultAchievements is seeded into the achievements collection at startup.
var defaultAchievements = []models.Achievement{
	{Name: "First Round", StatKey: models.StatGamesPlayed, Threshold: 1, Title: "Newcomer", Color: "#aaaaaa"},
	{Name: "Regular", StatKey: models.StatGamesPlayed, Threshold: 25, Title: "Regular", Color: "#4a90d9"},
	{Name: "Champion", StatKey: models.StatGamesWon, Threshold: 10, Title: "Champion", Color: "#f5a623"},
	{Name: "Night Shift", StatKey: models.StatGamesBus, Threshold: 10, Title: "Busfahrer", Color: "#7ed321"},
	{Name: "Generous", StatKey: models.StatDrinksGiven, Threshold: 100, Title: "Barkeeper", Color: "#bd10e0"},
	{Name: "Iron Liver", StatKey: models.StatDrinksSelf, Threshold: 100, Title: "Iron Liver", Color: "#d0021b"},
	{Name: "Card Shark", StatKey: models.StatLayedCards, Threshold: 250, Title: "Card Shark", Color: "#50e3c2"},
}

// SeedAchievements inserts the built-in achievement definitions. Existing
// entries are left alone.
func (s *Service) SeedAchievements(ctx context.Context) {
	for _, a := range defaultAchievements {
		if _, err := s.store.Read(ctx, store.ColAchievements, a.Name); err == nil {
			continue
		}
		doc, err := store.Encode(a)
		if err != nil {
			continue
		}
		if err := s.store.Insert(ctx, store.ColAchievements, a.Name, doc); err != nil {
			s.log.Warnf("account: seeding achievement %q: %v", a.Name, err)
		}
	}
}

// EnsureProfile creates the display document at registration. Idempotent.
func (s *Service) EnsureProfile(ctx context.Context, userID, username string) error {
	if _, err := s.store.Read(ctx, store.ColUsers, userID); err == nil {
		return nil
	}
	doc, err := store.Encode(models.NewProfile(username))
	if err != nil {
		return httperr.Internal("Account Error", err)
	}
	if err := s.store.Insert(ctx, store.ColUsers, userID, doc); err != nil {
		return httperr.Internal("Account Error", err)
	}
	return nil
}

// Get loads the caller's profile.
func (s *Service) Get(ctx context.Context, userID string) (*models.Profile, error) {
	doc, err := s.store.Read(ctx, store.ColUsers, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("Account Error", "profile not found")
	}
	if err != nil {
		return nil, httperr.Internal("Account Error", err)
	}
	var p models.Profile
	if err := store.Decode(doc, &p); err != nil {
		return nil, httperr.Internal("Account Error", err)
	}
	return &p, nil
}

// AddStats applies statistic deltas. inc counters accumulate, max counters
// only move upward through the store's monotonic gate. Newly reached
// achievements unlock their titles.
func (s *Service) AddStats(ctx context.Context, userID string, inc, max map[string]int) error {
	patch := &store.Patch{}
	if len(inc) > 0 {
		patch.Inc = map[string]int{}
		for k, v := range inc {
			patch.Inc["statistics."+k] = v
		}
	}
	if len(max) > 0 {
		patch.Max = map[string]int{}
		for k, v := range max {
			patch.Max["statistics."+k] = v
		}
	}
	if patch.Inc == nil && patch.Max == nil {
		return nil
	}

	err := s.store.Update(ctx, store.ColUsers, userID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("Account Error", "profile not found")
	}
	if err != nil {
		return httperr.Internal("Account Error", err)
	}
	return s.checkAchievements(ctx, userID)
}

// checkAchievements unlocks every achievement whose threshold the profile
// now clears.
func (s *Service) checkAchievements(ctx context.Context, userID string) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	unlocked := make(map[string]bool, len(p.Achievements))
	for _, a := range p.Achievements {
		unlocked[a] = true
	}

	docs, err := s.store.ReadAll(ctx, store.ColAchievements)
	if err != nil {
		return httperr.Internal("Account Error", err)
	}
	for _, doc := range docs {
		var a models.Achievement
		if err := store.Decode(doc, &a); err != nil {
			continue
		}
		if unlocked[a.Name] || p.Statistics[a.StatKey] < a.Threshold {
			continue
		}
		err := s.store.Update(ctx, store.ColUsers, userID, &store.Patch{
			Push: map[string]any{
				"achievements": a.Name,
				"titles":       models.Title{Name: a.Title, Color: a.Color},
			},
		})
		if err != nil {
			return httperr.Internal("Account Error", err)
		}
		s.log.WithFields(logrus.Fields{"userId": userID, "achievement": a.Name}).
			Info("achievement unlocked")
	}
	return nil
}

// SetActiveTitle switches the single active title.
func (s *Service) SetActiveTitle(ctx context.Context, userID, titleName string) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	titles := make([]models.Title, len(p.Titles))
	for i, t := range p.Titles {
		t.Active = t.Name == titleName
		if t.Active {
			found = true
		}
		titles[i] = t
	}
	if !found {
		return httperr.Precondition("Title Error", "title not unlocked")
	}

	err = s.store.Update(ctx, store.ColUsers, userID, &store.Patch{
		Set: map[string]any{"title": titleName, "titles": titles},
	})
	if err != nil {
		return httperr.Internal("Title Error", err)
	}
	return nil
}

// SetCardTheme stores the chosen card back.
func (s *Service) SetCardTheme(ctx context.Context, userID string, theme models.CardTheme) error {
	err := s.store.Update(ctx, store.ColUsers, userID, &store.Patch{
		Set: map[string]any{"cardTheme": theme},
	})
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("Account Error", "profile not found")
	}
	if err != nil {
		return httperr.Internal("Account Error", err)
	}
	return nil
}

// SetAvatar stores a picked stock avatar reference.
func (s *Service) SetAvatar(ctx context.Context, userID, avatar string) error {
	err := s.store.Update(ctx, store.ColUsers, userID, &store.Patch{
		Set: map[string]any{"avatar": avatar},
	})
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("Account Error", "profile not found")
	}
	if err != nil {
		return httperr.Internal("Account Error", err)
	}
	return nil
}

// SetUploadedAvatar records the filename of a custom upload and returns the
// previous one so the handler can delete the stale file, best effort.
func (s *Service) SetUploadedAvatar(ctx context.Context, userID, filename string) (string, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	err = s.store.Update(ctx, store.ColUsers, userID, &store.Patch{
		Set: map[string]any{"uploadedAvatar": filename, "avatar": filename},
	})
	if err != nil {
		return "", httperr.Internal("Account Error", err)
	}
	return p.UploadedAvatar, nil
}
