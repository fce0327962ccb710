package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/schema"
)

// ── Categories ──────────────────────────────────────────────────────────────

func (h *handler) listCategories(c *gin.Context) {
	page, err := schema.ParsePagination(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	list, err := h.Categories.List(ctx, page.Limit, page.Offset())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	total, err := h.Categories.Count(ctx)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": list, "total": total})
}

func (h *handler) getCategory(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	cat, err := h.Categories.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat})
}

func (h *handler) createCategory(c *gin.Context) {
	var in schema.CategoryInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	cat, err := h.Categories.Insert(c.Request.Context(), in.Params())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": cat.ID})
}

func (h *handler) updateCategory(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var in schema.CategoryPatch
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	if _, err := h.Categories.Update(c.Request.Context(), in.Params(id)); err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) deleteCategory(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	if err := h.Categories.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteCategories removes every listed category that exists. Unknown ids
// are skipped.
func (h *handler) deleteCategories(c *gin.Context) {
	var in schema.BulkDeleteInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	if _, err := h.Categories.DeleteMany(c.Request.Context(), in.IDs); err != nil {
		h.fail(c, apperrors.FromStore(err, "category"))
		return
	}
	c.Status(http.StatusNoContent)
}

// ── Products ────────────────────────────────────────────────────────────────

func (h *handler) listProducts(c *gin.Context) {
	page, err := schema.ParsePagination(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	list, err := h.Products.List(ctx, page.Limit, page.Offset())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	total, err := h.Products.Count(ctx)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": list, "total": total})
}

// getProduct reads through the product cache. The cached entry includes
// the product's order items, so order writes invalidate it as well.
func (h *handler) getProduct(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if p, ok := h.ProductCache.Get(ctx, id); ok {
		c.JSON(http.StatusOK, gin.H{"product": p})
		return
	}
	version, fillable := h.ProductCache.Version(ctx, id)
	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	if p.OrderItems, err = h.Products.OrderItems(ctx, id); err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	if fillable {
		h.ProductCache.Put(ctx, p, version)
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

func (h *handler) createProduct(c *gin.Context) {
	var in schema.ProductInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	p, err := h.Products.Insert(c.Request.Context(), in.Params())
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p.ID})
}

// updateProduct serves both PATCH and PUT; omitted fields are kept.
func (h *handler) updateProduct(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var in schema.ProductPatch
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Products.Update(ctx, in.Params(id)); err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	h.ProductCache.Invalidate(ctx, id)
	c.Status(http.StatusNoContent)
}

func (h *handler) deleteProduct(c *gin.Context) {
	id, err := schema.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.Products.Delete(ctx, id); err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	h.ProductCache.Invalidate(ctx, id)
	c.Status(http.StatusNoContent)
}

func (h *handler) deleteProducts(c *gin.Context) {
	var in schema.BulkDeleteInput
	if err := schema.DecodeJSON(c.Request.Body, &in); err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.caller(c); !ok {
		return
	}
	ctx := c.Request.Context()
	n, err := h.Products.DeleteMany(ctx, in.IDs)
	if err != nil {
		h.fail(c, apperrors.FromStore(err, "product"))
		return
	}
	h.ProductCache.Invalidate(ctx, in.IDs...)
	h.Logger.DebugContext(ctx, "api: products deleted",
		slog.Int("requested", len(in.IDs)),
		slog.Int64("deleted", n),
	)
	c.Status(http.StatusNoContent)
}
