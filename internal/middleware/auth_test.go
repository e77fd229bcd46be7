package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newAuthRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := validatorStub{
		"donor-token":   {UserID: "donor-1", Role: models.RoleDonor},
		"patient-token": {UserID: "patient-1", Role: models.RolePatient},
	}
	r := gin.New()
	r.GET("/protected", JWT(tokens), RBAC(roles...), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	r.GET("/optional", OptionalJWT(tokens), func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.String(http.StatusOK, "user")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r
}

func serve(r *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newAuthRouter(models.RoleDonor)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", http.Header{"Authorization": {"Basic abc"}}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", http.Header{"Authorization": {"Bearer nope"}}).Code)

	w := serve(r, "/protected", http.Header{"Authorization": {"Bearer donor-token"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "donor-1", w.Body.String())
}

func TestJWTAcceptsQueryTokenOnlyForWebsocket(t *testing.T) {
	r := newAuthRouter(models.RoleDonor)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected?access_token=donor-token", nil).Code)

	upgrade := http.Header{"Connection": {"Upgrade"}, "Upgrade": {"websocket"}}
	assert.Equal(t, http.StatusOK, serve(r, "/protected?access_token=donor-token", upgrade).Code)
}

func TestRBACRejectsOtherRoles(t *testing.T) {
	r := newAuthRouter(models.RoleDonor)
	w := serve(r, "/protected", http.Header{"Authorization": {"Bearer patient-token"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
}

func TestOptionalJWT(t *testing.T) {
	r := newAuthRouter()
	assert.Equal(t, "anonymous", serve(r, "/optional", nil).Body.String())
	assert.Equal(t, "anonymous", serve(r, "/optional", http.Header{"Authorization": {"Bearer nope"}}).Body.String())
	assert.Equal(t, "user", serve(r, "/optional", http.Header{"Authorization": {"Bearer patient-token"}}).Body.String())
}
