package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pointsarcade/internal/models"
	"pointsarcade/internal/services"
)

type UserHandler struct {
	accounts *services.AccountService
	ledger   *services.Ledger
}

func NewUserHandler(accounts *services.AccountService, ledger *services.Ledger) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		ledger:   ledger,
	}
}

func (h *UserHandler) CreateSession(c *gin.Context) {
	var req models.SessionRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.CreateSession(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.accounts.Me(c.Request.Context(), c.GetString("session_id"))
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"delegated": user.Delegated(),
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.accounts.Logout(c.Request.Context(), c.GetString("session_id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (h *UserHandler) LinkKick(c *gin.Context) {
	var req models.LinkAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.accounts.LinkKick(c.Request.Context(), c.GetString("user_id"), req.Username, req.ExternalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) LinkGamdom(c *gin.Context) {
	var req models.LinkAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.accounts.LinkGamdom(c.Request.Context(), c.GetString("user_id"), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) LinkDiscord(c *gin.Context) {
	var req models.LinkAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.accounts.LinkDiscord(c.Request.Context(), c.GetString("user_id"), req.Username, req.ExternalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetPoints and UpdatePoints sit behind the admin key.

func (h *UserHandler) GetPoints(c *gin.Context) {
	userID := c.Param("id")

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "points": balance})
}

func (h *UserHandler) UpdatePoints(c *gin.Context) {
	userID := c.Param("id")

	var req models.PointsUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	var (
		balance int64
		err     error
	)
	switch req.Action {
	case models.PointsAdd:
		balance, err = h.ledger.AddPoints(ctx, userID, req.Points)
	case models.PointsRemove:
		balance, err = h.ledger.DeductPoints(ctx, userID, req.Points)
	case models.PointsSet:
		balance, err = h.ledger.SetPoints(ctx, userID, req.Points)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"action":  req.Action,
		"points":  balance,
	})
}
