package utils

import (
	"context"
)

// ContextActorIDKey is the key for the authenticated actor ID in the context.
const ContextActorIDKey = "actor_id"

// ContextRolesKey is the key for the authenticated actor roles in the context.
const ContextRolesKey = "roles"

// GetAuthenticatedActorID retrieves the authenticated actor ID from the context.
func GetAuthenticatedActorID(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(ContextActorIDKey).(string)
	return actorID, ok
}

// IsStaff checks if the given roles include a staff-equivalent role.
func IsStaff(roles []string) bool {
	for _, r := range roles {
		if r == "admin" || r == "moderator" {
			return true
		}
	}
	return false
}

// GetContextFields extracts common fields from context for logging and error context.
func GetContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}
	if actorID, ok := ctx.Value(ContextActorIDKey).(string); ok && actorID != "" {
		fields["actor_id"] = actorID
	}
	if roles, ok := ctx.Value(ContextRolesKey).([]string); ok && len(roles) > 0 {
		fields["roles"] = roles
	}
	if reqID, ok := ctx.Value("request_id").(string); ok && reqID != "" {
		fields["request_id"] = reqID
	}
	return fields
}
