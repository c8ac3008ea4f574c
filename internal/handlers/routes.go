package handlers

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the public and admin API on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)

		api.GET("/push/vapid-public-key", h.GetVAPIDPublicKey)
		api.POST("/push/subscribe", h.SubscribePush)
		api.POST("/push/unsubscribe", h.UnsubscribePush)

		api.POST("/admin/login", h.AdminLogin)
	}

	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
		admin.DELETE("/products/:id", h.DeleteProduct)

		admin.GET("/push/stats", h.PushStats)
		admin.POST("/push/send", h.SendPush)
		admin.GET("/push/history", h.PushHistory)

		admin.GET("/events", h.Events)
	}
}
