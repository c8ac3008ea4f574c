package handlers

import (
	"errors"
	"net/http"

	"github.com/tariel-x/lookbook/internal/catalog"
	"github.com/tariel-x/lookbook/internal/push"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors to HTTP statuses. Unknown errors are attached
// to the gin context so the access log carries them, and are not echoed.
func writeError(c *gin.Context, err error) {
	var (
		catalogErr *catalog.ValidationError
		pushErr    *push.ValidationError
		notFound   *catalog.NotFoundError
	)
	switch {
	case errors.As(err, &catalogErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": catalogErr.Error(), "field": catalogErr.Field})
	case errors.As(err, &pushErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": pushErr.Error(), "field": pushErr.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
