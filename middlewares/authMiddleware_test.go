package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(), SessionMiddleware())
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		name, _ := utils.GetUserNameFromContext(c.Request.Context())
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"name": name, "company_id": companyId})
	})
	r.GET("/ops", RequireUser(), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter()
	planner, err := utils.JwtGenerate(7, "planner", "user", 3)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	admin, err := utils.JwtGenerate(1, "root", "admin", 0)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	cases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"anonymous", "/me", nil, http.StatusUnauthorized},
		{"not a bearer token", "/me", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"garbage token", "/me", map[string]string{"Authorization": "Bearer abc.def.ghi"}, http.StatusUnauthorized},
		{"valid token", "/me", map[string]string{"Authorization": "Bearer " + planner}, http.StatusOK},
		{"wrong role", "/ops", map[string]string{"Authorization": "Bearer " + planner}, http.StatusForbidden},
		{"admin role", "/ops", map[string]string{"Authorization": "Bearer " + admin}, http.StatusNoContent},
		{"unknown session without redis", "/me", map[string]string{"token": "abc"}, http.StatusUnauthorized},
	}
	for _, c := range cases {
		if w := serve(r, c.path, c.headers); w.Code != c.want {
			t.Fatalf("%s: got %d, want %d (%s)", c.name, w.Code, c.want, w.Body.String())
		}
	}

	w := serve(r, "/me", map[string]string{"Authorization": "Bearer " + planner})
	if body := w.Body.String(); body != `{"company_id":3,"name":"planner"}` {
		t.Fatalf("claims not placed on the context: %s", body)
	}
}
