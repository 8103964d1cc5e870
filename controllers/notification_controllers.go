package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/omnipos/middlewares"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/notify"
	"github.com/yeremiapane/omnipos/utils"
)

type NotificationController struct {
	Dispatcher *notify.Dispatcher
}

func NewNotificationController(d *notify.Dispatcher) *NotificationController {
	return &NotificationController{Dispatcher: d}
}

// GetNotifications lists the newest notifications the caller may see.
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	list, err := nc.Dispatcher.ListFor(c.Request.Context(), p)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications", list)
}

// CreateNotification addresses a role, a user or everyone in the caller's
// tenant. Without any target it goes to everyone.
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	type reqBody struct {
		TargetRole   string  `json:"targetRole"`
		TargetUserID string  `json:"targetUserId"`
		Broadcast    bool    `json:"broadcast"`
		Message      string  `json:"message" binding:"required"`
		Type         string  `json:"type"`
		OrderID      *string `json:"orderId"`
	}
	var body reqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondReason(c, http.StatusBadRequest, "Invalid", err)
		return
	}

	if body.TargetRole == "" && body.TargetUserID == "" && !body.Broadcast {
		body.TargetRole = models.BroadcastSentinel
	}
	target, err := models.NewTarget(body.TargetRole, body.TargetUserID, body.Broadcast)
	if err != nil {
		utils.RespondReason(c, http.StatusBadRequest, "Invalid", err)
		return
	}

	n, err := nc.Dispatcher.Notify(c.Request.Context(), p.TenantID, target, body.Message, body.Type, body.OrderID)
	if err != nil {
		if errors.Is(err, notify.ErrEmptyMessage) || errors.Is(err, models.ErrAmbiguousTarget) {
			utils.RespondReason(c, http.StatusBadRequest, "Invalid", err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Notification created", n)
}

// MarkAsRead flags one notification of the caller's tenant as read.
func (nc *NotificationController) MarkAsRead(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.RespondReason(c, http.StatusBadRequest, "Invalid", fmt.Errorf("invalid notification id %q", c.Param("id")))
		return
	}

	if err := nc.Dispatcher.MarkRead(c.Request.Context(), p, uint(id)); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			utils.RespondReason(c, http.StatusNotFound, "NotFound", err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
