package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appreturns "github.com/omnisync/backend/internal/application/returns"
	"github.com/omnisync/backend/internal/domain/returns"
)

// ReturnLifecycle is the return state machine exposed to back-office staff
type ReturnLifecycle interface {
	Get(ctx context.Context, id uuid.UUID) (*returns.OrderReturn, error)
	SubmitForReview(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error)
	Approve(ctx context.Context, id uuid.UUID, actor returns.Actor, note string) (*returns.OrderReturn, error)
	GenerateLabel(ctx context.Context, id uuid.UUID, actor returns.Actor, req appreturns.LabelRequest) (*returns.OrderReturn, error)
	Label(ctx context.Context, id uuid.UUID) ([]byte, string, error)
	MarkInTransit(ctx context.Context, id uuid.UUID, actor returns.Actor, trackingNumber string) (*returns.OrderReturn, error)
	MarkReceived(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error)
	StartInspection(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error)
	Complete(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error)
	Reject(ctx context.Context, id uuid.UUID, actor returns.Actor, reason string) (*returns.OrderReturn, error)
	Cancel(ctx context.Context, id uuid.UUID, actor returns.Actor, reason string) (*returns.OrderReturn, error)
	SetItemCondition(ctx context.Context, id uuid.UUID, actor returns.Actor, orderItemID uuid.UUID, condition returns.ItemCondition) (*returns.OrderReturn, error)
}

// ReturnHandler handles the return lifecycle actions. The acting staff user
// comes from the X-Actor-ID header; actions without one are rejected by the service.
type ReturnHandler struct {
	BaseHandler
	lifecycle ReturnLifecycle
}

// NewReturnHandler creates a new ReturnHandler
func NewReturnHandler(lifecycle ReturnLifecycle) *ReturnHandler {
	return &ReturnHandler{lifecycle: lifecycle}
}

// Get handles GET /returns/:id
func (h *ReturnHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid return ID")
		return
	}
	ret, err := h.lifecycle.Get(c.Request.Context(), id)
	h.respond(c, ret, err)
}

// Review handles POST /returns/:id/review
func (h *ReturnHandler) Review(c *gin.Context) {
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.SubmitForReview(ctx, id, actor)
	})
}

// Approve handles POST /returns/:id/approve
func (h *ReturnHandler) Approve(c *gin.Context) {
	var req ApproveReturnRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.Approve(ctx, id, actor, req.Note)
	})
}

// GenerateLabel handles POST /returns/:id/label
func (h *ReturnHandler) GenerateLabel(c *gin.Context) {
	var req GenerateLabelRequest
	if !h.bindOptional(c, &req) {
		return
	}
	if req.Desi.IsNegative() {
		h.BadRequest(c, "desi cannot be negative")
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.GenerateLabel(ctx, id, actor, appreturns.LabelRequest{
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			Desi:           req.Desi,
		})
	})
}

// DownloadLabel handles GET /returns/:id/label
func (h *ReturnHandler) DownloadLabel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid return ID")
		return
	}
	data, contentType, err := h.lifecycle.Label(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="return-%s-label"`, id))
	c.Data(http.StatusOK, contentType, data)
}

// Ship handles POST /returns/:id/ship
func (h *ReturnHandler) Ship(c *gin.Context) {
	var req ShipReturnRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.MarkInTransit(ctx, id, actor, req.TrackingNumber)
	})
}

// Receive handles POST /returns/:id/receive
func (h *ReturnHandler) Receive(c *gin.Context) {
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.MarkReceived(ctx, id, actor)
	})
}

// Inspect handles POST /returns/:id/inspect
func (h *ReturnHandler) Inspect(c *gin.Context) {
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.StartInspection(ctx, id, actor)
	})
}

// Complete handles POST /returns/:id/complete
func (h *ReturnHandler) Complete(c *gin.Context) {
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.Complete(ctx, id, actor)
	})
}

// Reject handles POST /returns/:id/reject
func (h *ReturnHandler) Reject(c *gin.Context) {
	var req ReasonRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.Reject(ctx, id, actor, req.Reason)
	})
}

// Cancel handles POST /returns/:id/cancel
func (h *ReturnHandler) Cancel(c *gin.Context) {
	var req ReasonRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.Cancel(ctx, id, actor, req.Reason)
	})
}

// SetItemCondition handles PUT /returns/:id/items/:item_id/condition
func (h *ReturnHandler) SetItemCondition(c *gin.Context) {
	itemID, ok := parseID(c, "item_id")
	if !ok {
		h.BadRequest(c, "Invalid item ID")
		return
	}
	var req ItemConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	h.action(c, func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
		return h.lifecycle.SetItemCondition(ctx, id, actor, itemID, returns.ItemCondition(req.Condition))
	})
}

// action parses the return id and actor, then runs fn
func (h *ReturnHandler) action(c *gin.Context, fn func(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error)) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid return ID")
		return
	}
	ret, err := fn(c.Request.Context(), id, getActor(c))
	h.respond(c, ret, err)
}

func (h *ReturnHandler) respond(c *gin.Context, ret *returns.OrderReturn, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReturnResponse(ret))
}

// bindOptional binds a JSON body when one was sent
func (h *ReturnHandler) bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		h.ValidationError(c, err)
		return false
	}
	return true
}
