package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/service"
	"github.com/hsdfat8/fieldops/pkg/geo"
)

// ListFacilities handles GET /facilities, optionally by type or name
func (h *Handler) ListFacilities(c *gin.Context) {
	switch {
	case c.Query("type") != "":
		c.JSON(http.StatusOK, h.catalog.ByType(c.Query("type")))
	case c.Query("name") != "":
		c.JSON(http.StatusOK, h.catalog.ByNamePattern(c.Query("name")))
	default:
		c.JSON(http.StatusOK, h.catalog.All())
	}
}

// GetFacility handles GET /facilities/:id
func (h *Handler) GetFacility(c *gin.Context) {
	id := c.Param("id")
	loc := h.catalog.ByID(id)
	if loc == nil {
		notFound(c, fmt.Sprintf("facility %s not found", id))
		return
	}
	c.JSON(http.StatusOK, loc)
}

// AddFacility handles POST /facilities
func (h *Handler) AddFacility(c *gin.Context) {
	var loc models.Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !h.catalog.Add(&loc) {
		problem(c, http.StatusUnprocessableEntity, "Unprocessable Entity", "facility was rejected or could not be saved")
		return
	}
	c.JSON(http.StatusCreated, loc)
}

// NearbyFacilities handles GET /facilities/nearby
func (h *Handler) NearbyFacilities(c *gin.Context) {
	lat, lon, ok := point(c)
	if !ok {
		return
	}
	radius, err := optionalFloatQuery(c, "radius", service.DefaultFacilityRadiusKm)
	if err != nil {
		badRequest(c, "query parameter 'radius' must be a number")
		return
	}
	c.JSON(http.StatusOK, h.catalog.WithinRadius(lat, lon, radius, c.Query("type")))
}

// NearestFacility handles GET /facilities/nearest
func (h *Handler) NearestFacility(c *gin.Context) {
	lat, lon, ok := point(c)
	if !ok {
		return
	}
	found, ok := h.catalog.Nearest(lat, lon, c.Query("type"))
	if !ok {
		notFound(c, "no matching facility")
		return
	}
	c.JSON(http.StatusOK, NearestFacilityResponse{
		LocationDistance: found,
		Coordinates:      geo.FormatCoordinates(found.Location.Latitude, found.Location.Longitude),
	})
}

// EmergencyFacilities handles GET /facilities/emergency
func (h *Handler) EmergencyFacilities(c *gin.Context) {
	lat, lon, ok := point(c)
	if !ok {
		return
	}
	radius, err := optionalFloatQuery(c, "radius", 0)
	if err != nil {
		badRequest(c, "query parameter 'radius' must be a number")
		return
	}
	c.JSON(http.StatusOK, h.catalog.FindEmergencyFacilities(lat, lon, radius))
}

// FacilityStatistics handles GET /facilities/statistics
func (h *Handler) FacilityStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Statistics())
}

// ExportFacilities handles GET /facilities/export
func (h *Handler) ExportFacilities(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if err := h.catalog.Export(c.Writer, c.Query("type")); err != nil {
		_ = c.Error(err)
	}
}

// ImportFacilities handles POST /facilities/import
func (h *Handler) ImportFacilities(c *gin.Context) {
	n, err := h.catalog.Import(c.Request.Body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}
