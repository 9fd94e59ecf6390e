package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/models"
	"trashbin/utils"
)

const (
	ContextUserID = "userId"
	ContextUser   = "user"
	ContextRole   = "role"
)

// ErrPrincipalNotFound is returned by a resolver for unknown or deleted
// accounts.
var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalResolver loads the active account behind a token.
type PrincipalResolver func(ctx context.Context, id primitive.ObjectID) (*models.User, error)

// AuthMiddleware verifies the bearer token and rejects tokens of accounts
// that have since been deleted.
func AuthMiddleware(jwtSecret string, resolve PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		claims, err := utils.VerifyJWTToken(token, jwtSecret)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		userID, err := claims.ObjectID()
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid user ID in token")
			c.Abort()
			return
		}

		user, err := resolve(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrPrincipalNotFound) {
				utils.UnauthorizedResponse(c, "Account not found or deleted")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to load account", nil)
			}
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Set(ContextRole, user.Role)
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ContextRole)
		if !ok {
			utils.UnauthorizedResponse(c, "User role not found")
			c.Abort()
			return
		}

		if userRole, _ := role.(string); userRole != requiredRole {
			utils.ForbiddenResponse(c, "Insufficient privileges")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUserID returns the id set by AuthMiddleware.
func CurrentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}
