package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/omnipos/ledger"
	"github.com/yeremiapane/omnipos/middlewares"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/reconcile"
	"github.com/yeremiapane/omnipos/utils"
)

// OrderBroadcaster pushes stored order changes to connected screens.
type OrderBroadcaster interface {
	BroadcastOrderUpdate(order models.Order) int
}

type OrderController struct {
	Engine *reconcile.Engine
	Ledger *ledger.Ledger
	Hub    OrderBroadcaster
}

func NewOrderController(engine *reconcile.Engine, hub OrderBroadcaster) *OrderController {
	return &OrderController{Engine: engine, Ledger: engine.Ledger, Hub: hub}
}

// SyncOrders reconciles a batch of device snapshots. The response is a bare
// array with one result per order, in request order.
func (oc *OrderController) SyncOrders(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		utils.RespondReason(c, http.StatusUnauthorized, middlewares.ReasonUnauthorized, errors.New("unauthorized"))
		return
	}

	var raw []json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		utils.RespondReason(c, http.StatusBadRequest, string(reconcile.ReasonInvalid), err)
		return
	}

	// an element that does not decode is rejected on its own
	results := make([]models.SyncResult, len(raw))
	orders := make([]models.Order, 0, len(raw))
	slots := make([]int, 0, len(raw))
	for i, elem := range raw {
		var o models.Order
		if err := json.Unmarshal(elem, &o); err != nil {
			id := peekID(elem)
			utils.InfoLogger.WithFields(logrus.Fields{
				"tenant": p.TenantID,
				"order":  id,
				"reason": string(reconcile.ReasonInvalid),
			}).Infof("undecodable order in sync batch: %v", err)
			results[i] = models.SyncResult{ID: id, Status: models.SyncResultRejected, Reason: string(reconcile.ReasonInvalid)}
			continue
		}
		orders = append(orders, o)
		slots = append(slots, i)
	}

	outcomes := oc.Engine.ReconcileBatch(c.Request.Context(), p, orders)
	for k, out := range outcomes {
		results[slots[k]] = out.Wire()
		if out.Result != reconcile.Rejected {
			oc.broadcast(out.Order)
		}
	}
	c.JSON(http.StatusOK, results)
}

// peekID pulls the id out of an order that failed to decode, if it has one.
func peekID(elem json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(elem, &head); err != nil {
		return ""
	}
	return head.ID
}

// UpdateStatus moves an order one workflow step on behalf of the caller.
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		utils.RespondReason(c, http.StatusUnauthorized, middlewares.ReasonUnauthorized, errors.New("unauthorized"))
		return
	}

	var req models.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondReason(c, http.StatusBadRequest, string(reconcile.ReasonInvalid), err)
		return
	}
	if !req.NewStatus.Valid() {
		utils.RespondReason(c, http.StatusBadRequest, string(reconcile.ReasonInvalid), fmt.Errorf("unknown status %q", req.NewStatus))
		return
	}

	order, err := oc.Engine.Transition(c.Request.Context(), p, c.Param("id"), req.NewStatus)
	if err != nil {
		respondReconcileError(c, err)
		return
	}
	oc.broadcast(order)

	c.JSON(http.StatusOK, models.StatusChangeResponse{
		Status:         models.SyncResultUpdated,
		WorkflowStatus: order.Status,
	})
}

// ListOrders returns the caller's tenant orders, newest first.
func (oc *OrderController) ListOrders(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	limit := ledger.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.RespondReason(c, http.StatusBadRequest, string(reconcile.ReasonInvalid), fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	orders, err := oc.Ledger.List(c.Request.Context(), p.TenantID, limit)
	if err != nil {
		utils.RespondReason(c, http.StatusInternalServerError, string(reconcile.ReasonInternal), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	order, err := oc.Ledger.Get(c.Request.Context(), p.TenantID, c.Param("id"))
	if err != nil {
		respondReconcileError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// CreateOrder takes a single order from an online till. It goes through the
// same reconcile path as a sync, so resending it is harmless.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	p, _ := middlewares.GetPrincipal(c)

	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		utils.RespondReason(c, http.StatusBadRequest, string(reconcile.ReasonInvalid), err)
		return
	}
	if order.TenantID == "" {
		order.TenantID = p.TenantID
	}
	if order.StaffID == "" {
		order.StaffID = p.Subject
	}

	out := oc.Engine.Reconcile(c.Request.Context(), p, order)
	switch out.Result {
	case reconcile.Created:
		oc.broadcast(out.Order)
		utils.RespondJSON(c, http.StatusCreated, "Order created", out.Order)
	case reconcile.Updated:
		oc.broadcast(out.Order)
		utils.RespondJSON(c, http.StatusOK, "Order updated", out.Order)
	default:
		respondReconcileError(c, out.Err)
	}
}

func (oc *OrderController) broadcast(order models.Order) {
	if oc.Hub == nil || order.ID == "" {
		return
	}
	oc.Hub.BroadcastOrderUpdate(order)
}

// respondReconcileError maps engine and ledger errors to a status code and
// reason.
func respondReconcileError(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("request rejected")
	}
	reason := reconcile.ReasonFor(err)

	code := http.StatusInternalServerError
	switch reason {
	case reconcile.ReasonNotFound:
		code = http.StatusNotFound
	case reconcile.ReasonInvalid:
		code = http.StatusBadRequest
	case reconcile.ReasonTenantMismatch:
		code = http.StatusForbidden
	case reconcile.ReasonStale, reconcile.ReasonInvalidTransition, reconcile.ReasonIDConflict:
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		utils.ErrorLogger.WithError(err).Error("order request failed")
	}
	utils.RespondReason(c, code, string(reason), err)
}
