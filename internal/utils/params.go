package utils

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

func GetIncidentID(ctx *gin.Context) (uint, error) {
	incidentIDStr := ctx.Param("incident_id")

	if incidentIDStr == "" {
		return 0, errors.New("Incident ID not found")
	}

	incidentID, err := strconv.ParseUint(incidentIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Incident ID")
	}

	return uint(incidentID), nil
}

// GetEntityRef reads the :entity_type/:entity_id path parameters into a
// validated entity reference.
func GetEntityRef(ctx *gin.Context) (types.EntityRef, error) {
	ref := types.EntityRef{
		Type: types.EntityType(ctx.Param("entity_type")),
		ID:   ctx.Param("entity_id"),
	}

	if !ref.Type.Valid() {
		return types.EntityRef{}, errors.New("Invalid entity type")
	}

	if ref.ID == "" {
		return types.EntityRef{}, errors.New("Entity ID not found")
	}

	return ref, nil
}
