package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/schema"
)

func (h *handler) register(c *gin.Context) {
	var in schema.RegisterInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	token, _, err := h.Identity.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (h *handler) authenticate(c *gin.Context) {
	var in schema.AuthInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.Identity.Authenticate(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// registerAddress attaches the address to the token's user. A userId in
// the body is not part of the contract and never read.
func (h *handler) registerAddress(c *gin.Context) {
	var in schema.AddressInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	if _, err := h.Identity.RegisterAddress(c.Request.Context(), userID, in); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Address registered"})
}

func (h *handler) me(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	profile, err := h.Identity.Profile(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// myOrders lists the caller's own orders.
func (h *handler) myOrders(c *gin.Context) {
	page, err := schema.ParsePagination(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	list, err := h.Orders.ListByUser(ctx, userID, page.Limit, page.Offset())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	total, err := h.Orders.CountByUser(ctx, userID)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "order"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "total": total})
}
