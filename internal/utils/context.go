package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/statusdeck-dev/statusdeck/internal/incidents"
	"github.com/statusdeck-dev/statusdeck/internal/middleware"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

func GetCurrentUser(ctx *gin.Context) (middleware.AuthenticatedUser, error) {
	user, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return middleware.AuthenticatedUser{}, fmt.Errorf("User not authenticated")
	}

	authenticatedUser, ok := user.(middleware.AuthenticatedUser)

	if !ok {
		return middleware.AuthenticatedUser{}, fmt.Errorf("Invalid user type in context")
	}

	return authenticatedUser, nil
}

// GetCurrentActor converts the authenticated user into the orchestrator
// actor shape.
func GetCurrentActor(ctx *gin.Context) (incidents.Actor, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return incidents.Actor{}, err
	}

	return incidents.Actor{ID: user.ID, TenantID: user.TenantID, Role: user.Role}, nil
}
