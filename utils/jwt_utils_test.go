package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/models"
)

func TestJWT_RoundTrip(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com", Role: models.RoleAdmin}
	token, err := GenerateJWTToken(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyJWTToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	id, err := claims.ObjectID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestJWT_Rejects(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}

	token, err := GenerateJWTToken(user, "secret", time.Hour)
	require.NoError(t, err)
	_, err = VerifyJWTToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateJWTToken(user, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = VerifyJWTToken(expired, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: user.ID.Hex()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = VerifyJWTToken(none, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = (&Claims{UserID: "nope"}).ObjectID()
	assert.Error(t, err)
}
