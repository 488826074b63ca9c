// internal/handlers/server_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/account"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/chat"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/friend"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/lobby"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/ws"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	require.NoError(t, auth.Init("handlers-test-secret"))

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	reg := registry.New()
	accounts := account.NewService(st, log)
	friends := friend.NewService(st, log)
	cleanup := ws.NewCleanup(reg, 0, log)

	srv := &Server{
		Accounts:  accounts,
		Friends:   friends,
		Lobbies:   lobby.NewService(st, reg, log),
		Chats:     chat.NewService(st, log),
		Engine:    game.NewEngine(st, reg, accounts, nil, 0, log),
		Socket:    &ws.Server{Reg: reg, Cleanup: cleanup, Log: log},
		Log:       log,
		UploadDir: t.TempDir(),
	}
	return srv, st
}

func seedUser(t *testing.T, srv *Server, userID, username string) *http.Cookie {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, srv.Accounts.EnsureProfile(ctx, userID, username))
	require.NoError(t, srv.Friends.EnsureRecord(ctx, userID))

	token, err := auth.CreateJWT(userID, auth.LoginTTL)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func doJSON(t *testing.T, h http.Handler, method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthMiddlewareStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/get-lobbies", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := &http.Cookie{Name: auth.CookieName, Value: "not-a-token"}
	rec = doJSON(t, router, http.MethodGet, "/get-lobbies", bad, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	body := decodeResponse(t, rec)
	require.Equal(t, "Auth Error", body["title"])
	require.NotEmpty(t, body["error"])
}

func TestCreateLobbyAndMasterCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cookie := seedUser(t, srv, "u1", "ana")

	rec := doJSON(t, router, http.MethodPost, "/create-lobby", cookie, map[string]any{
		"lobbyName":  "table",
		"playerName": "ana",
		"gender":     "FEMALE",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	lobbyID := decodeResponse(t, rec)["lobbyId"].(string)
	require.NotEmpty(t, lobbyID)

	rec = doJSON(t, router, http.MethodGet, "/is-lobby-master/"+lobbyID, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeResponse(t, rec)["isMaster"])

	rec = doJSON(t, router, http.MethodGet, "/get-lobbies", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeResponse(t, rec)["lobbies"], 1)
}

func TestLobbyJoinFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	master := seedUser(t, srv, "u1", "ana")
	joiner := seedUser(t, srv, "u2", "bob")

	rec := doJSON(t, router, http.MethodPost, "/create-lobby", master, map[string]any{
		"lobbyName":  "table",
		"playerName": "ana",
		"gender":     "FEMALE",
	})
	lobbyID := decodeResponse(t, rec)["lobbyId"].(string)

	rec = doJSON(t, router, http.MethodGet, "/get-lobby-info/"+lobbyID, master, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	code := decodeResponse(t, rec)["lobbyCode"].(string)
	require.Len(t, code, 5)

	rec = doJSON(t, router, http.MethodPost, "/check-lobby-code", joiner, map[string]any{"lobbyCode": code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, lobbyID, decodeResponse(t, rec)["lobbyId"])

	rec = doJSON(t, router, http.MethodPost, "/join-lobby/"+lobbyID, joiner, map[string]any{
		"playerName": "bob",
		"gender":     "MALE",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/start-game/"+lobbyID, master, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, lobbyID, decodeResponse(t, rec)["gameId"])

	rec = doJSON(t, router, http.MethodGet, "/get-game-info/"+lobbyID, joiner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PHASE1", decodeResponse(t, rec)["phase"])
}

func TestGameCommandErrorsCarryToastTitles(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cookie := seedUser(t, srv, "u1", "ana")

	rec := doJSON(t, router, http.MethodPost, "/flip-row/missing", cookie, map[string]any{"idx": 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Game Error", decodeResponse(t, rec)["title"])
}

func TestLobbyQRReturnsPNG(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cookie := seedUser(t, srv, "u1", "ana")

	rec := doJSON(t, router, http.MethodPost, "/create-lobby", cookie, map[string]any{
		"lobbyName":  "table",
		"playerName": "ana",
	})
	lobbyID := decodeResponse(t, rec)["lobbyId"].(string)

	rec = doJSON(t, router, http.MethodGet, "/lobby-qr/"+lobbyID, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, "\x89PNG", rec.Body.String()[:4])
}

func TestFriendRequestFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	ana := seedUser(t, srv, "u1", "ana")
	bob := seedUser(t, srv, "u2", "bob")

	rec := doJSON(t, router, http.MethodGet, "/get-friends", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bobCode := decodeResponse(t, rec)["friendCode"].(string)

	rec = doJSON(t, router, http.MethodPost, "/send-friend-request", ana, map[string]any{"friendCode": bobCode})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/accept-friend-request", bob, map[string]any{"friendId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/send-friend-message", ana, map[string]any{
		"friendId": "u2",
		"message":  "prost",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/get-friends", bob, nil)
	friends := decodeResponse(t, rec)["friends"].([]any)
	require.Len(t, friends, 1)
	entry := friends[0].(map[string]any)
	require.Equal(t, float64(1), entry["unreadCount"])
}

func TestSetTitleRejectsLockedTitle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cookie := seedUser(t, srv, "u1", "ana")

	rec := doJSON(t, router, http.MethodPost, "/set-title", cookie, map[string]any{"title": "Champion"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/set-title", cookie, map[string]any{"title": "Rookie"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAvatarStoresAndReplacesFile(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cookie := seedUser(t, srv, "u1", "ana")

	upload := func(name string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("avatar", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake image bytes"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/upload-avatar", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("me.png")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1.png", decodeResponse(t, rec)["avatar"])

	rec = upload("me.webp")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1.webp", decodeResponse(t, rec)["avatar"])

	rec = upload("malware.exe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
