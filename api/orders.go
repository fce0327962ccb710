package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/models"
	"github.com/Skryldev/storefront/repo"
	"github.com/Skryldev/storefront/schema"
)

func (h *handler) listOrders(c *gin.Context) {
	page, err := schema.ParsePagination(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	ctx := c.Request.Context()
	list, err := h.Orders.List(ctx, page.Limit, page.Offset())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	total, err := h.Orders.Count(ctx)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "total": total})
}

func (h *handler) getOrder(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	o, err := h.Orders.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// createOrder stores the order for the caller and then announces it. A
// failed announcement is logged; the order stays committed.
func (h *handler) createOrder(c *gin.Context) {
	var in schema.OrderInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	o, err := h.Orders.Create(ctx, in.Params(userID))
	if errors.Is(err, repo.ErrEmptyOrder) {
		h.fail(c, apperrors.Validation([]apperrors.FieldError{{Field: "orderItems", Reason: "is required"}}))
		return
	}
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}

	h.ProductCache.Invalidate(ctx, productIDs(o.Items)...)

	if err := h.Events.PublishOrderCreated(ctx, o); err != nil {
		h.Logger.ErrorContext(ctx, "api: order event not published",
			slog.Int64("order_id", o.ID),
			slog.Any("error", err),
		)
	}
	c.JSON(http.StatusCreated, gin.H{"id": o.ID})
}

func (h *handler) deleteOrder(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	ctx := c.Request.Context()
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	if err := h.Orders.Delete(ctx, id); err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	h.ProductCache.Invalidate(ctx, productIDs(o.Items)...)
	c.Status(http.StatusNoContent)
}

// productIDs lists the distinct products an order touches.
func productIDs(items []*models.OrderItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}
