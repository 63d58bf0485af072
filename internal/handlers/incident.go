package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/statusdeck-dev/statusdeck/internal/incidents"
	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/types"
	"github.com/statusdeck-dev/statusdeck/internal/utils"
)

type IncidentHandler struct {
	service *incidents.Service
}

func NewIncidentHandler(service *incidents.Service) *IncidentHandler {
	return &IncidentHandler{service: service}
}

type AffectedEntityRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
}

type CreateIncidentRequest struct {
	Title            string                  `json:"title" binding:"required"`
	Description      string                  `json:"description"`
	Severity         string                  `json:"severity" binding:"required"`
	ImpactType       string                  `json:"impact_type" binding:"required"`
	AffectedEntities []AffectedEntityRequest `json:"affected_entities"`
}

type AdvanceIncidentRequest struct {
	TargetStatus string `json:"target_status" binding:"required"`
	Note         string `json:"note"`
}

type ResolveIncidentRequest struct {
	Note string `json:"note"`
}

type UpdateSeverityRequest struct {
	Severity string `json:"severity" binding:"required"`
}

type AddNoteRequest struct {
	Content string `json:"content" binding:"required"`
}

type AffectedEntityResponse struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type IncidentResponse struct {
	ID               uint                     `json:"id"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Severity         string                   `json:"severity"`
	Status           string                   `json:"status"`
	ImpactType       string                   `json:"impact_type"`
	StartedAt        time.Time                `json:"started_at"`
	ResolvedAt       *time.Time               `json:"resolved_at"`
	CreatedBy        uint                     `json:"created_by"`
	AffectedEntities []AffectedEntityResponse `json:"affected_entities"`
}

type TimelineEntryResponse struct {
	ID         uint      `json:"id"`
	IncidentID uint      `json:"incident_id"`
	OccurredAt time.Time `json:"occurred_at"`
	EntryType  string    `json:"entry_type"`
	Content    string    `json:"content"`
	CreatedBy  *uint     `json:"created_by"`
}

type EntityStatusResponse struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Status     string `json:"status"`
}

func buildIncidentResponse(incident *models.Incident) IncidentResponse {
	entities := make([]AffectedEntityResponse, 0, len(incident.AffectedEntities))
	for _, link := range incident.AffectedEntities {
		entities = append(entities, AffectedEntityResponse{
			EntityType: string(link.EntityType),
			EntityID:   link.EntityID,
		})
	}

	return IncidentResponse{
		ID:               incident.ID,
		Title:            incident.Title,
		Description:      incident.Description,
		Severity:         string(incident.Severity),
		Status:           string(incident.Status),
		ImpactType:       string(incident.ImpactType),
		StartedAt:        incident.StartedAt,
		ResolvedAt:       incident.ResolvedAt,
		CreatedBy:        incident.CreatedBy,
		AffectedEntities: entities,
	}
}

func buildTimelineEntryResponse(entry *models.TimelineEntry) TimelineEntryResponse {
	return TimelineEntryResponse{
		ID:         entry.ID,
		IncidentID: entry.IncidentID,
		OccurredAt: entry.OccurredAt,
		EntryType:  string(entry.EntryType),
		Content:    entry.Content,
		CreatedBy:  entry.CreatedBy,
	}
}

// respondServiceError maps orchestrator errors onto HTTP statuses.
func respondServiceError(ctx *gin.Context, err error) {
	var invalid *incidents.InvalidTransitionError
	if errors.As(err, &invalid) {
		ctx.JSON(http.StatusConflict, gin.H{
			"error":            "Invalid status transition",
			"current_status":   invalid.Current,
			"requested_status": invalid.Requested,
			"allowed":          invalid.Allowed,
		})
		return
	}

	var cascade *incidents.CascadeError
	if errors.As(err, &cascade) {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "Failed to update entity status", "entity": cascade.Ref.String()})
		return
	}

	switch {
	case errors.Is(err, incidents.ErrUnauthorized):
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	case errors.Is(err, incidents.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
	case errors.Is(err, incidents.ErrConcurrentModification):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Incident was modified concurrently, please retry"})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *IncidentHandler) CreateIncident(ctx *gin.Context) {
	var req CreateIncidentRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	severity := types.IncidentSeverity(req.Severity)
	impact := types.ImpactType(req.ImpactType)

	if !severity.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
		return
	}

	if !impact.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid impact type"})
		return
	}

	refs := make([]types.EntityRef, 0, len(req.AffectedEntities))
	for _, entity := range req.AffectedEntities {
		ref := types.EntityRef{Type: types.EntityType(entity.EntityType), ID: entity.EntityID}
		if !ref.Type.Valid() {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entity type: " + entity.EntityType})
			return
		}
		refs = append(refs, ref)
	}

	incident, err := h.service.Create(ctx.Request.Context(), actor, incidents.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Severity:    severity,
		ImpactType:  impact,
		Entities:    refs,
	})

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	// The response carries what was committed, links included.
	incident, err = h.service.Get(ctx.Request.Context(), actor, incident.ID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.JSON(http.StatusCreated, buildIncidentResponse(incident))
}

func (h *IncidentHandler) ListIncidents(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	list, err := h.service.List(ctx.Request.Context(), actor)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	responses := make([]IncidentResponse, 0, len(list))
	for i := range list {
		responses = append(responses, buildIncidentResponse(&list[i]))
	}

	ctx.JSON(http.StatusOK, responses)
}

func (h *IncidentHandler) GetIncident(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.service.Get(ctx.Request.Context(), actor, incidentID)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, buildIncidentResponse(incident))
}

func (h *IncidentHandler) AdvanceIncident(ctx *gin.Context) {
	var req AdvanceIncidentRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := types.IncidentStatus(req.TargetStatus)

	if !target.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target status"})
		return
	}

	h.advance(ctx, target, req.Note)
}

func (h *IncidentHandler) ResolveIncident(ctx *gin.Context) {
	// Body is optional; an empty or absent body resolves without a note.
	var req ResolveIncidentRequest
	_ = ctx.ShouldBindJSON(&req)

	h.transition(ctx, req.Note, h.service.Resolve)
}

func (h *IncidentHandler) ReopenIncident(ctx *gin.Context) {
	var req ResolveIncidentRequest
	_ = ctx.ShouldBindJSON(&req)

	h.transition(ctx, req.Note, h.service.Reopen)
}

func (h *IncidentHandler) advance(ctx *gin.Context, target types.IncidentStatus, note string) {
	h.transition(ctx, note, func(c context.Context, actor incidents.Actor, id uint, n string) (*models.Incident, error) {
		return h.service.Advance(c, actor, id, target, n)
	})
}

func (h *IncidentHandler) transition(ctx *gin.Context, note string, op func(context.Context, incidents.Actor, uint, string) (*models.Incident, error)) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := op(ctx.Request.Context(), actor, incidentID, note)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.JSON(http.StatusOK, buildIncidentResponse(incident))
}

func (h *IncidentHandler) UpdateSeverity(ctx *gin.Context) {
	var req UpdateSeverityRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := types.IncidentSeverity(req.Severity)

	if !severity.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
		return
	}

	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.service.UpdateSeverity(ctx.Request.Context(), actor, incidentID, severity)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.JSON(http.StatusOK, buildIncidentResponse(incident))
}

func (h *IncidentHandler) AddAffectedEntity(ctx *gin.Context) {
	var req AffectedEntityRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := types.EntityRef{Type: types.EntityType(req.EntityType), ID: req.EntityID}

	if !ref.Type.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entity type"})
		return
	}

	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.AddAffectedEntity(ctx.Request.Context(), actor, incidentID, ref); err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.Status(http.StatusNoContent)
}

func (h *IncidentHandler) RemoveAffectedEntity(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := utils.GetEntityRef(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RemoveAffectedEntity(ctx.Request.Context(), actor, incidentID, ref); err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.Status(http.StatusNoContent)
}

func (h *IncidentHandler) AddTimelineNote(ctx *gin.Context) {
	var req AddNoteRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.AddNote(ctx.Request.Context(), actor, incidentID, req.Content)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, buildTimelineEntryResponse(entry))
}

func (h *IncidentHandler) ListTimeline(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.service.ListTimeline(ctx.Request.Context(), actor, incidentID)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	responses := make([]TimelineEntryResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, buildTimelineEntryResponse(&entries[i]))
	}

	ctx.JSON(http.StatusOK, responses)
}

func (h *IncidentHandler) DeleteIncident(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	incidentID, err := utils.GetIncidentID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Delete(ctx.Request.Context(), actor, incidentID); err != nil {
		respondServiceError(ctx, err)
		return
	}

	BroadcastIncidentRefresh(actor.TenantID)
	ctx.Status(http.StatusNoContent)
}

func (h *IncidentHandler) GetEntityStatus(ctx *gin.Context) {
	ref, err := utils.GetEntityRef(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.service.EntityStatus(ctx.Request.Context(), ref)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, EntityStatusResponse{
		EntityType: string(ref.Type),
		EntityID:   ref.ID,
		Status:     string(status),
	})
}
