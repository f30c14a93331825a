package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/service/reviewable"
	"github.com/openagora/agora/pkg/logger"
	"github.com/openagora/agora/pkg/utils"
)

const actorContextKey = "review_actor"

// RequestIDMiddleware tags every request with an id, echoed in the response
// header and attached to the request context for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := context.WithValue(c.Request.Context(), "request_id", id)
		c.Request = c.Request.WithContext(logger.WithContext(ctx, "http"))
		c.Next()
	}
}

// AuthMiddleware authenticates the request with a bearer JWT and materializes
// the acting user for downstream handlers. Tokens are HMAC-signed by the
// platform's auth service; this surface only verifies and reads them.
func AuthMiddleware(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Warn("rejected request with invalid token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		actor := actorFromClaims(claims)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing subject"})
			return
		}
		c.Set(actorContextKey, actor)
		c.Set(utils.ContextActorIDKey, actor.ID)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), utils.ContextActorIDKey, actor.ID))
		c.Next()
	}
}

func actorFromClaims(claims jwt.MapClaims) reviewable.Actor {
	actor := reviewable.Actor{}
	if sub, ok := claims["sub"].(string); ok {
		actor.ID = sub
	}
	if username, ok := claims["username"].(string); ok {
		actor.Username = username
	}
	if staff, ok := claims["staff"].(bool); ok {
		actor.Staff = staff
	}
	if admin, ok := claims["admin"].(bool); ok {
		actor.Admin = admin
		if admin {
			actor.Staff = true
		}
	}
	if bonus, ok := claims["flag_weight_bonus"].(float64); ok {
		actor.FlagWeightBonus = bonus
	}
	if groups, ok := claims["groups"].([]interface{}); ok {
		for _, g := range groups {
			if id, ok := g.(float64); ok {
				actor.GroupIDs = append(actor.GroupIDs, int64(id))
			}
		}
	}
	// Older tokens carry roles instead of boolean claims.
	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		roles := make([]string, 0, len(rawRoles))
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				roles = append(roles, role)
			}
		}
		if utils.IsStaff(roles) {
			actor.Staff = true
		}
	}
	return actor
}

func actorFrom(c *gin.Context) reviewable.Actor {
	if v, ok := c.Get(actorContextKey); ok {
		if actor, ok := v.(reviewable.Actor); ok {
			return actor
		}
	}
	return reviewable.Actor{}
}
