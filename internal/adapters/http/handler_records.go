package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/service"
)

// callOptions routes the request to the document backend when asked
func callOptions(c *gin.Context) []service.CallOption {
	if boolQuery(c, "force_document") {
		return []service.CallOption{service.ForceDocument()}
	}
	return nil
}

func resourceFilter(c *gin.Context) models.Filter {
	return models.ResourceFilter{
		Type:     c.Query("type"),
		Status:   models.ResourceStatus(c.Query("status")),
		Location: c.Query("location"),
	}.Filter()
}

func contactFilter(c *gin.Context) models.Filter {
	return models.ContactFilter{
		ContactType:     c.Query("contact_type"),
		Priority:        c.Query("priority"),
		Organization:    c.Query("organization"),
		IncludeInactive: boolQuery(c, "include_inactive"),
	}.Filter()
}

func incidentFilter(c *gin.Context) models.Filter {
	return models.IncidentFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Type:     c.Query("type"),
	}.Filter()
}

func personnelFilter(c *gin.Context) models.Filter {
	return models.PersonnelFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Skills: c.QueryArray("skill"),
	}.Filter()
}

func assignmentFilter(c *gin.Context) models.Filter {
	return models.AssignmentFilter{
		ResourceID: c.Query("resource_id"),
		OpenOnly:   boolQuery(c, "open"),
	}.Filter()
}

func listRecords[T any, P service.RecordPtr[T]](h *Handler, filter func(*gin.Context) models.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, service.List[T, P](c.Request.Context(), h.store, filter(c), callOptions(c)...))
	}
}

func getRecord[T any, P service.RecordPtr[T]](h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		rec := service.Get[T, P](c.Request.Context(), h.store, id, callOptions(c)...)
		if rec == nil {
			notFound(c, fmt.Sprintf("record %s not found", id))
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func createRecord[T any, P service.RecordPtr[T]](h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec T
		if err := c.ShouldBindJSON(&rec); err != nil {
			badRequest(c, err.Error())
			return
		}
		if !h.store.Create(c.Request.Context(), P(&rec), callOptions(c)...) {
			problem(c, http.StatusUnprocessableEntity, "Unprocessable Entity", "record was rejected or could not be stored")
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func updateRecord[P models.Patch](h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch P
		if err := c.ShouldBindJSON(&patch); err != nil {
			badRequest(c, err.Error())
			return
		}
		if len(patch.Changes()) == 0 {
			badRequest(c, "update contains no fields")
			return
		}
		id := c.Param("id")
		if !h.store.Update(c.Request.Context(), id, patch, callOptions(c)...) {
			notFound(c, fmt.Sprintf("record %s was not updated", id))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func deleteRecord(h *Handler, collection models.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !h.store.Delete(c.Request.Context(), collection, id, callOptions(c)...) {
			notFound(c, fmt.Sprintf("record %s was not deleted", id))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func exportRecords[T any, P service.RecordPtr[T]](h *Handler, filter func(*gin.Context) models.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.Status(http.StatusOK)
		if err := service.Export[T, P](c.Request.Context(), h.store, c.Writer, filter(c), callOptions(c)...); err != nil {
			_ = c.Error(err)
		}
	}
}

// AssignResource handles POST /resources/:id/assign
func (h *Handler) AssignResource(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if !h.store.Assign(c.Request.Context(), id, req.IncidentID, req.AssignedTo, req.Notes, callOptions(c)...) {
		problem(c, http.StatusConflict, "Conflict", fmt.Sprintf("resource %s could not be assigned", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// ReturnResource handles POST /resources/:id/return
func (h *Handler) ReturnResource(c *gin.Context) {
	id := c.Param("id")
	if !h.store.Return(c.Request.Context(), id, callOptions(c)...) {
		problem(c, http.StatusConflict, "Conflict", fmt.Sprintf("resource %s could not be returned", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateIncidentStatus handles PUT /incidents/:id/status
func (h *Handler) UpdateIncidentStatus(c *gin.Context) {
	var req IncidentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if !h.store.UpdateIncidentStatus(c.Request.Context(), id, req.Status, req.ResolvedBy, callOptions(c)...) {
		notFound(c, fmt.Sprintf("incident %s was not updated", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// NearbyLocations handles GET /locations/nearby against the record store
func (h *Handler) NearbyLocations(c *gin.Context) {
	lat, lon, ok := point(c)
	if !ok {
		return
	}
	radius, err := optionalFloatQuery(c, "radius", service.DefaultFacilityRadiusKm)
	if err != nil {
		badRequest(c, "query parameter 'radius' must be a number")
		return
	}
	c.JSON(http.StatusOK, h.store.NearbyLocations(c.Request.Context(), lat, lon, radius, c.Query("type"), callOptions(c)...))
}
