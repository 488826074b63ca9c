// internal/fanout/dispatcher.go
package fanout

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/chat"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/friend"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

// Dispatcher turns store change events into per-subscriber update frames.
// Every event is classified by its touched field paths; the dispatcher loads
// the fresh document and pushes the matching views through the registry.
// Events of one collection are processed in emission order, so all
// subscribers of a document see its updates in the same sequence.
type Dispatcher struct {
	store store.Store
	reg   *registry.Registry
	log   *logrus.Logger
}

func New(st store.Store, reg *registry.Registry, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{store: st, reg: reg, log: log}
}

// Run consumes the change feeds until the context ends. One goroutine per
// collection keeps cross-document work concurrent while per-document order
// is preserved.
func (d *Dispatcher) Run(ctx context.Context) {
	// Watch is called here, not inside consume: the feeds must be subscribed
	// before Run returns or events emitted right after startup are lost.
	go d.consume(ctx, d.store.Watch(store.ColUsers), d.handleUser)
	go d.consume(ctx, d.store.Watch(store.ColFriends), d.handleFriend)
	go d.consume(ctx, d.store.Watch(store.ColLobbies), d.handleLobby)
	go d.consume(ctx, d.store.Watch(store.ColChats), d.handleChat)
	go d.consume(ctx, d.store.Watch(store.ColGames), d.handleGame)
}

func (d *Dispatcher) consume(ctx context.Context, feed <-chan store.Event, handle func(context.Context, store.Event)) {
	for {
		select {
		case ev := <-feed:
			handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// touches reports whether any changed path equals a prefix or descends
// below it.
func touches(fields []string, prefixes ...string) bool {
	for _, f := range fields {
		for _, p := range prefixes {
			if f == p || strings.HasPrefix(f, p+".") {
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) handleUser(ctx context.Context, ev store.Event) {
	if ev.OpType == store.OpDelete {
		return
	}
	if ev.OpType == store.OpUpdate &&
		!touches(ev.UpdatedFields, "statistics", "titles", "uploadedAvatar", "avatar", "title", "cardTheme") {
		return
	}

	doc, err := d.store.Read(ctx, store.ColUsers, ev.ID)
	if err != nil {
		return
	}
	var p models.Profile
	if err := store.Decode(doc, &p); err != nil {
		d.log.Warnf("fanout: decoding user %s: %v", ev.ID, err)
		return
	}
	avatar := p.Avatar
	if p.UploadedAvatar != "" {
		avatar = p.UploadedAvatar
	}
	d.reg.SendToUser(ev.ID, registry.Message{
		Type: "accountUpdate",
		Data: map[string]any{
			"statistics": p.Statistics,
			"titles":     p.Titles,
			"avatar":     avatar,
		},
	})
}

func (d *Dispatcher) handleFriend(ctx context.Context, ev store.Event) {
	if ev.OpType == store.OpDelete {
		return
	}

	doc, err := d.store.Read(ctx, store.ColFriends, ev.ID)
	if err != nil {
		return
	}
	var fd models.FriendDoc
	if err := store.Decode(doc, &fd); err != nil {
		d.log.Warnf("fanout: decoding friend record %s: %v", ev.ID, err)
		return
	}
	view := friend.BuildView(&fd)

	all := ev.OpType == store.OpInsert
	if all || touches(ev.UpdatedFields, "pendingRequests", "friends", "sentRequests") {
		d.reg.SendToFriendSockets(ev.ID, registry.Message{
			Type: "friendUpdate",
			Data: map[string]any{
				"requests": view.PendingRequests,
				"friends":  view.Friends,
			},
		})
	}
	if all || touches(ev.UpdatedFields, "invitations") {
		d.reg.SendToFriendSockets(ev.ID, registry.Message{
			Type: "invitationUpdate",
			Data: map[string]any{"invitations": view.Invitations},
		})
	}
}

func (d *Dispatcher) handleLobby(ctx context.Context, ev store.Event) {
	if ev.OpType == store.OpDelete {
		d.reg.BroadcastLobbies(registry.Message{
			Type: "lobbiesUpdate",
			Data: map[string]any{"action": "delete", "lobbyId": ev.ID},
		})
		return
	}

	doc, err := d.store.Read(ctx, store.ColLobbies, ev.ID)
	if err != nil {
		return
	}
	var lob models.Lobby
	if err := store.Decode(doc, &lob); err != nil {
		d.log.Warnf("fanout: decoding lobby %s: %v", ev.ID, err)
		return
	}

	// Public list: a lobby that is private, started or full is advertised as
	// gone.
	open := !lob.Private && lob.Status == models.LobbyWaiting &&
		len(lob.Players)+len(lob.IsJoining) < lob.Settings.PlayerLimit
	if open {
		action := "update"
		if ev.OpType == store.OpInsert {
			action = "insert"
		}
		d.reg.BroadcastLobbies(registry.Message{
			Type: "lobbiesUpdate",
			Data: map[string]any{
				"action": action,
				"lobby": map[string]any{
					"id":          ev.ID,
					"name":        lob.Name,
					"playerCount": len(lob.Players),
					"playerLimit": lob.Settings.PlayerLimit,
				},
			},
		})
	} else if !lob.Private {
		d.reg.BroadcastLobbies(registry.Message{
			Type: "lobbiesUpdate",
			Data: map[string]any{"action": "delete", "lobbyId": ev.ID},
		})
	}

	if ev.OpType == store.OpInsert || touches(ev.UpdatedFields, "players", "spectators") {
		d.reg.BroadcastLobby(ev.ID, registry.Message{
			Type: "lobbyUpdate",
			Data: map[string]any{
				"players":    lob.Players,
				"spectators": lob.Spectators,
			},
		})
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, ev store.Event) {
	if ev.OpType == store.OpDelete {
		return
	}
	if ev.OpType == store.OpUpdate && !touches(ev.UpdatedFields, "messages") {
		return
	}

	doc, err := d.store.Read(ctx, store.ColChats, ev.ID)
	if err != nil {
		return
	}
	var c models.Chat
	if err := store.Decode(doc, &c); err != nil {
		d.log.Warnf("fanout: decoding chat %s: %v", ev.ID, err)
		return
	}
	d.reg.BroadcastChat(ev.ID, registry.Message{
		Type: "chatUpdate",
		Data: map[string]any{"messages": chat.Tail(c.Messages)},
	})
}

// gameTriggers is the classification of one game event's changed paths.
type gameTriggers struct {
	avatar      bool
	drinkAlloc  bool
	setting     bool
	gameCards   bool
	turnInfo    bool
	gameInfo    bool
	busfahrer   bool
	playerCards map[int]bool
}

func classifyGame(ev store.Event) gameTriggers {
	t := gameTriggers{playerCards: map[int]bool{}}
	if ev.OpType == store.OpInsert {
		return gameTriggers{
			avatar: true, gameCards: true, turnInfo: true, gameInfo: true,
			playerCards: map[int]bool{-1: true},
		}
	}

	for _, f := range ev.UpdatedFields {
		switch {
		case f == "activePlayer":
			t.avatar = true
			t.turnInfo = true
		case f == "status":
			t.gameCards = true
			t.gameInfo = true
			t.busfahrer = true
		case f == "players":
			// Whole array replaced (join/leave).
			t.avatar = true
			t.turnInfo = true
			t.playerCards[-1] = true
		case strings.HasPrefix(f, "players."):
			rest := strings.TrimPrefix(f, "players.")
			parts := strings.SplitN(rest, ".", 2)
			idx, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			if len(parts) == 1 {
				t.avatar = true
				continue
			}
			sub := parts[1]
			switch {
			case sub == "turnInfo.drinksPerPlayer":
				t.drinkAlloc = true
				t.turnInfo = true
			case strings.HasPrefix(sub, "turnInfo"):
				t.turnInfo = true
			case strings.HasPrefix(sub, "cards"):
				t.playerCards[idx] = true
			default:
				t.avatar = true
			}
		case f == "cards" || strings.HasPrefix(f, "cards."):
			t.gameCards = true
		case f == "settings" || strings.HasPrefix(f, "settings."):
			t.setting = true
		case f == "gameInfo.busfahrer":
			t.busfahrer = true
			t.gameInfo = true
		case f == "gameInfo" || strings.HasPrefix(f, "gameInfo."):
			t.gameInfo = true
		}
	}
	return t
}

func (d *Dispatcher) handleGame(ctx context.Context, ev store.Event) {
	// Teardown frames (closeUpdate, newGameUpdate) are sent by the services
	// that delete the document.
	if ev.OpType == store.OpDelete {
		return
	}

	doc, err := d.store.Read(ctx, store.ColGames, ev.ID)
	if err != nil {
		return
	}
	var g models.Game
	if err := store.Decode(doc, &g); err != nil {
		d.log.Warnf("fanout: decoding game %s: %v", ev.ID, err)
		return
	}

	t := classifyGame(ev)
	phase3 := g.Status == models.StatusPhase3 || g.Status == models.StatusFinished

	if t.avatar {
		d.reg.BroadcastGame(ev.ID, registry.Message{
			Type: "avatarUpdate",
			Data: map[string]any{"players": game.ViewAvatars(&g)},
		})
	}
	if t.drinkAlloc && g.Status == models.StatusPhase1 && g.ActivePlayer != "" {
		d.reg.SendToGameUser(ev.ID, g.ActivePlayer, registry.Message{
			Type: "playerDrinkUpdate",
			Data: game.ViewDrink(&g, g.ActivePlayer),
		})
	}
	if t.setting {
		d.reg.BroadcastGame(ev.ID, registry.Message{
			Type: "settingUpdate",
			Data: game.ViewSettings(&g),
		})
	}
	if t.gameCards {
		d.reg.BroadcastGame(ev.ID, registry.Message{
			Type: "gameCardUpdate",
			Data: map[string]any{"cards": game.MaskedCards(&g)},
		})
	}
	if len(t.playerCards) > 0 && !phase3 {
		if t.playerCards[-1] {
			for i := range g.Players {
				t.playerCards[i] = true
			}
			delete(t.playerCards, -1)
		}
		for idx := range t.playerCards {
			if idx < 0 || idx >= len(g.Players) {
				continue
			}
			d.reg.SendToGameUser(ev.ID, g.Players[idx].ID, registry.Message{
				Type: "playerCardUpdate",
				Data: map[string]any{"cards": g.Players[idx].Cards},
			})
		}
	}
	if t.turnInfo {
		for _, uid := range d.reg.GameSubscribers(ev.ID) {
			d.reg.SendToGameUser(ev.ID, uid, registry.Message{
				Type: "turnInfoUpdate",
				Data: game.ViewTurnInfo(&g, uid),
			})
		}
	}
	if t.gameInfo {
		d.reg.BroadcastGame(ev.ID, registry.Message{
			Type: "gameInfoUpdate",
			Data: game.ViewGameInfo(&g),
		})
		if phase3 {
			d.reg.BroadcastGame(ev.ID, registry.Message{
				Type: "phase3Update",
				Data: game.ViewPhase3(&g),
			})
		}
		for _, uid := range d.reg.GameSubscribers(ev.ID) {
			d.reg.SendToGameUser(ev.ID, uid, registry.Message{
				Type: "nextPlayerUpdate",
				Data: game.ViewNextPlayer(&g, uid),
			})
		}
	}
	if t.busfahrer && g.Status != models.StatusPhase1 {
		d.reg.BroadcastGame(ev.ID, registry.Message{
			Type: "busfahrerUpdate",
			Data: map[string]any{"busfahrerName": game.BusfahrerName(&g)},
		})
	}
}
