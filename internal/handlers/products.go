package handlers

import (
	"net/http"
	"strconv"

	"github.com/tariel-x/lookbook/internal/catalog"
	"github.com/tariel-x/lookbook/internal/models"

	"github.com/gin-gonic/gin"
)

type deleteProductResponse struct {
	ID      string                 `json:"id"`
	Cleanup catalog.CleanupSummary `json:"cleanup"`
}

func (h *Handlers) ListProducts(c *gin.Context) {
	var filter catalog.ListFilter

	if season := c.Query("season"); season != "" {
		switch s := models.Season(season); s {
		case models.SeasonSpring, models.SeasonSummer, models.SeasonAutumn, models.SeasonWinter:
			filter.Season = s
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown season", "field": "season"})
			return
		}
	}
	if year := c.Query("year"); year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a number", "field": "year"})
			return
		}
		filter.Year = y
	}

	products, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handlers) CreateProduct(c *gin.Context) {
	var input catalog.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.products.Create(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (h *Handlers) UpdateProduct(c *gin.Context) {
	var input catalog.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.products.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	cleanup, err := h.products.Delete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteProductResponse{ID: id, Cleanup: *cleanup})
}
