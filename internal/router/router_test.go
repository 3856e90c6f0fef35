package router

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBuildPermissionCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	noop := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/admin/batches", noop)
	api.POST("/admin/batches/:id/process", noop)
	api.GET("/admin/authz/roles", noop)
	api.POST("/cron/payment-retries", noop)
	r.GET("/healthz", noop)

	items := buildPermissionCatalog(r)
	if len(items) != 3 {
		t.Fatalf("catalog want 3 admin entries, got %d: %+v", len(items), items)
	}
	if items[0].Module != "authz" || items[0].Permission != "GET:/admin/authz/roles" {
		t.Fatalf("unexpected first entry: %+v", items[0])
	}
	if items[2].Module != "batches" || items[2].Permission != "POST:/admin/batches/:id/process" {
		t.Fatalf("unexpected last entry: %+v", items[2])
	}
}

func TestPermissionModule(t *testing.T) {
	cases := map[string]string{
		"/admin/payments/:id": "payments",
		"/admin":              "admin",
		"/":                   "system",
		"/cron/x":             "cron",
	}
	for in, want := range cases {
		if got := permissionModule(in); got != want {
			t.Fatalf("module of %q want %q got %q", in, want, got)
		}
	}
}
