package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/omnipos/controllers"
	"github.com/yeremiapane/omnipos/kds"
	"github.com/yeremiapane/omnipos/middlewares"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/notify"
	"github.com/yeremiapane/omnipos/reconcile"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Engine      *reconcile.Engine
	Dispatcher  *notify.Dispatcher
	Hub         *kds.Hub
	SyncLimiter *middlewares.RateLimiter
	CORSOrigin  string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())

	orderCtrl := controllers.NewOrderController(d.Engine, d.Hub)
	notificationCtrl := controllers.NewNotificationController(d.Dispatcher)
	kdsCtrl := controllers.NewKDSController(d.Hub, d.CORSOrigin)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Browsers cannot set headers on the handshake, so the token rides in
	// the query string.
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), kdsCtrl.KDSHandler)

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())

	// DEVICE SYNC
	syncGroup := api.Group("/sync")
	if d.SyncLimiter != nil {
		syncGroup.Use(d.SyncLimiter.RateLimit())
	}
	syncGroup.Use(middlewares.SyncLogger())
	syncGroup.POST("/orders", orderCtrl.SyncOrders)

	// ORDERS
	api.GET("/orders", orderCtrl.ListOrders)
	api.POST("/orders", orderCtrl.CreateOrder)
	api.GET("/orders/:id", orderCtrl.GetOrder)
	api.POST("/orders/:id/status", orderCtrl.UpdateStatus)

	// NOTIFICATIONS
	api.GET("/notifications", notificationCtrl.GetNotifications)
	api.POST("/notifications",
		middlewares.RequireRole(models.RoleAdmin, models.RoleTill, models.RoleWaiter),
		notificationCtrl.CreateNotification)
	api.POST("/notifications/:id/read", notificationCtrl.MarkAsRead)

	return r
}
