package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pointsarcade/internal/models"
	"pointsarcade/internal/services"
)

type GameHandler struct {
	gameEngine *services.GameEngine
}

func NewGameHandler(gameEngine *services.GameEngine) *GameHandler {
	return &GameHandler{gameEngine: gameEngine}
}

func (h *GameHandler) PlayDice(c *gin.Context) {
	var req models.DiceRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gameEngine.PlayDice(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) PlayLimbo(c *gin.Context) {
	var req models.LimboRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gameEngine.PlayLimbo(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) PlayBlackjack(c *gin.Context) {
	var req models.BlackjackRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gameEngine.PlayBlackjack(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) PlayKeno(c *gin.Context) {
	var req models.KenoRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gameEngine.PlayKeno(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) StartMines(c *gin.Context) {
	var req models.MinesStartRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.gameEngine.StartMines(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) RevealMine(c *gin.Context) {
	var req models.MinesRevealRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.gameEngine.RevealMine(c.Request.Context(), c.GetString("user_id"), req.Position)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) CashoutMines(c *gin.Context) {
	state, err := h.gameEngine.CashoutMines(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) GetActiveMines(c *gin.Context) {
	state, err := h.gameEngine.ActiveMines(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"game": state})
}

func (h *GameHandler) GetGameHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, models.ValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	rounds, err := h.gameEngine.History(c.Request.Context(), c.GetString("user_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if rounds == nil {
		rounds = []*models.GameRound{}
	}

	c.JSON(http.StatusOK, gin.H{
		"rounds": rounds,
		"count":  len(rounds),
	})
}
