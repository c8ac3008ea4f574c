package handlers

import (
	"net/http"
	"strconv"

	"github.com/tariel-x/lookbook/internal/push"

	"github.com/gin-gonic/gin"
)

type pushSubscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type pushSubscribeRequest struct {
	Endpoint string            `json:"endpoint" binding:"required"`
	Keys     pushSubscribeKeys `json:"keys" binding:"required"`
}

type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	if h.config.VAPIDKeys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.config.VAPIDKeys.PublicKey})
}

func (h *Handlers) SubscribePush(c *gin.Context) {
	var req pushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.registry.Upsert(c.Request.Context(), push.SubscriptionInput{
		Endpoint:  req.Endpoint,
		P256DH:    req.Keys.P256DH,
		Auth:      req.Keys.Auth,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID, "active": sub.Active})
}

func (h *Handlers) UnsubscribePush(c *gin.Context) {
	var req pushUnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Deactivate(c.Request.Context(), req.Endpoint); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}

func (h *Handlers) PushStats(c *gin.Context) {
	stats, err := h.registry.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) SendPush(c *gin.Context) {
	var input push.NotificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Send(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) PushHistory(c *gin.Context) {
	limit := push.MaxHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number", "field": "limit"})
			return
		}
		limit = n
	}

	records, err := h.recorder.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}
