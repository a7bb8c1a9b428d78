package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointsarcade/internal/handlers"
	"pointsarcade/internal/middleware"
	"pointsarcade/internal/services"
)

const adminKey = "admin-secret"

type testServer struct {
	router *gin.Engine
	store  *services.RedisService
	ledger *services.Ledger
}

func newTestServer(t *testing.T, rng services.RNG) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := services.NewRedisServiceWithClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := handlers.NewWebSocketHub()
	go hub.Run(ctx)

	ledger := services.NewLedger(store, services.NewInternalCounterStore(store), nil)
	engine := services.NewGameEngine(ledger, store, store,
		services.WithRNG(rng),
		services.WithBroadcaster(hub),
	)
	jwtService := services.NewJWTService("test-secret", time.Hour)
	accounts := services.NewAccountService(store, ledger, jwtService, 1000, time.Hour)

	userHandler := handlers.NewUserHandler(accounts, ledger)
	gameHandler := handlers.NewGameHandler(engine)
	wsHandler := handlers.NewWebSocketHandler(hub, ledger)

	router := gin.New()
	router.POST("/auth/session", userHandler.CreateSession)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtService))
	api.GET("/me", userHandler.GetCurrentUser)
	api.POST("/logout", userHandler.Logout)
	api.GET("/ws", wsHandler.HandleWebSocket)
	api.POST("/link/gamdom", userHandler.LinkGamdom)
	api.GET("/games/history", gameHandler.GetGameHistory)
	api.POST("/games/dice/play", gameHandler.PlayDice)
	api.POST("/games/keno/play", gameHandler.PlayKeno)
	api.POST("/games/mines/start", gameHandler.StartMines)
	api.POST("/games/mines/reveal", gameHandler.RevealMine)
	api.POST("/games/mines/cashout", gameHandler.CashoutMines)
	api.GET("/games/mines/active", gameHandler.GetActiveMines)

	admin := router.Group("/api/users")
	admin.Use(middleware.AdminKeyMiddleware(adminKey))
	admin.GET("/:id/points", userHandler.GetPoints)
	admin.POST("/:id/points", userHandler.UpdatePoints)

	return &testServer{router: router, store: store, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if strings.HasPrefix(path, "/api/users/") {
		req.Header.Set("X-Admin-Key", adminKey)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// login creates a user through the API and returns its id and token.
func (s *testServer) login(t *testing.T, username string) (string, string) {
	t.Helper()

	w, body := s.do(t, http.MethodPost, "/auth/session", "", gin.H{"username": username})
	require.Equal(t, http.StatusCreated, w.Code)

	user := body["user"].(map[string]interface{})
	return user["id"].(string), body["token"].(string)
}

func TestSessionAndMe(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.5))
	_, token := s.login(t, "alice")

	w, body := s.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, 1000.0, user["points"])
	assert.Equal(t, false, body["delegated"])

	w, _ = s.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.5))

	w, _ := s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := s.do(t, http.MethodPost, "/auth/session", "", gin.H{"username": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestPlayDiceEndpoint(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.4))
	userID, token := s.login(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/games/dice/play", token, gin.H{
		"bet_amount": 100,
		"target":     50,
		"direction":  "under",
	})
	require.Equal(t, http.StatusOK, w.Code)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["won"])
	assert.Equal(t, 198.0, result["payout"])
	assert.Equal(t, 1098.0, result["new_balance"])

	w, body = s.do(t, http.MethodGet, "/api/games/history?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["count"])
	round := body["rounds"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, userID, round["user_id"])

	w, body = s.do(t, http.MethodGet, "/api/games/history?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.4))
	_, token := s.login(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/games/dice/play", token, gin.H{
		"bet_amount": 5000,
		"target":     50,
		"direction":  "under",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient points", body["error"])
	assert.Equal(t, "insufficient_funds", body["kind"])

	w, body = s.do(t, http.MethodPost, "/api/games/dice/play", token, gin.H{
		"bet_amount": 10,
		"target":     50,
		"direction":  "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])

	w, body = s.do(t, http.MethodGet, "/api/games/mines/active", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])

	w, _ = s.do(t, http.MethodPost, "/api/games/keno/play", token, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMinesEndpoints(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0))
	_, token := s.login(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/games/mines/start", token, gin.H{"bet_amount": 100, "mines": 3})
	require.Equal(t, http.StatusOK, w.Code)
	game := body["game"].(map[string]interface{})
	assert.Equal(t, 900.0, game["new_balance"])
	assert.NotContains(t, game, "mine_positions")

	w, body = s.do(t, http.MethodPost, "/api/games/mines/start", token, gin.H{"bet_amount": 100, "mines": 3})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])

	w, _ = s.do(t, http.MethodPost, "/api/games/mines/reveal", token, gin.H{"position": 5})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/games/mines/cashout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	game = body["game"].(map[string]interface{})
	assert.Equal(t, 113.0, game["payout"])
	assert.Equal(t, 1013.0, game["new_balance"])
}

func TestLinkConflictEndpoint(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.5))
	_, alice := s.login(t, "alice")
	_, bob := s.login(t, "bob")

	w, _ := s.do(t, http.MethodPost, "/api/link/gamdom", alice, gin.H{"username": "Shared"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/link/gamdom", bob, gin.H{"username": "shared"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])
}

func TestAdminPoints(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.5))
	userID, _ := s.login(t, "alice")
	path := "/api/users/" + userID + "/points"

	w, body := s.do(t, http.MethodPost, path, "", gin.H{"points": 50, "action": "add"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1050.0, body["points"])

	w, body = s.do(t, http.MethodPost, path, "", gin.H{"points": 0, "action": "remove"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])

	w, body = s.do(t, http.MethodPost, path, "", gin.H{"points": 7, "action": "set"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7.0, body["points"])

	w, body = s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7.0, body["points"])

	w, _ = s.do(t, http.MethodGet, "/api/users/nobody/points", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWebSocketPushesRounds(t *testing.T) {
	s := newTestServer(t, services.NewSequenceRNG(0.4))
	_, token := s.login(t, "alice")

	server := httptest.NewServer(s.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "BALANCE_UPDATE", msg.Type)
	assert.JSONEq(t, `{"balance":1000}`, string(msg.Data))

	w, _ := s.do(t, http.MethodPost, "/api/games/dice/play", token, gin.H{
		"bet_amount": 100,
		"target":     50,
		"direction":  "under",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "BALANCE_UPDATE", msg.Type)
	assert.JSONEq(t, `{"balance":1098}`, string(msg.Data))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "ROUND_RESULT", msg.Type)
	var round map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &round))
	assert.Equal(t, "dice", round["game_name"])
	assert.Equal(t, 198.0, round["payout"])
}
