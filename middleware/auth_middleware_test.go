package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/models"
	"trashbin/utils"
)

const secret = "middleware-secret"

func newRouter(resolve PrincipalResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret, resolve), func(c *gin.Context) {
		id, _ := CurrentUserID(c)
		c.String(http.StatusOK, id.Hex())
	})
	r.GET("/admin", AuthMiddleware(secret, resolve), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(t *testing.T, r http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateJWTToken(user, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	active := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	deleted := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	broken := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}

	r := newRouter(func(_ context.Context, id primitive.ObjectID) (*models.User, error) {
		switch id {
		case active.ID:
			return active, nil
		case broken.ID:
			return nil, errors.New("db down")
		default:
			return nil, ErrPrincipalNotFound
		}
	})

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"active account", tokenFor(t, active), http.StatusOK},
		{"deleted account", tokenFor(t, deleted), http.StatusUnauthorized},
		{"resolver failure", tokenFor(t, broken), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(t, r, "/me", tt.token)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := request(t, r, "/me", tokenFor(t, active))
	assert.Equal(t, active.ID.Hex(), w.Body.String())
}

func TestRequireRole(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	admin := &models.User{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	r := newRouter(func(_ context.Context, id primitive.ObjectID) (*models.User, error) {
		if id == admin.ID {
			return admin, nil
		}
		return user, nil
	})

	assert.Equal(t, http.StatusForbidden, request(t, r, "/admin", tokenFor(t, user)).Code)
	assert.Equal(t, http.StatusNoContent, request(t, r, "/admin", tokenFor(t, admin)).Code)
}
