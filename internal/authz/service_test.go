package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	return svc
}

func mustEnforce(t *testing.T, svc *Service, role, obj, act string) bool {
	t.Helper()
	allow, err := svc.EnforceRole(role, obj, act)
	if err != nil {
		t.Fatalf("enforce %s %s %s failed: %v", role, act, obj, err)
	}
	return allow
}

func TestBuiltinRoleMatrix(t *testing.T) {
	svc := setupAuthzServiceTest(t)

	cases := []struct {
		role  string
		obj   string
		act   string
		allow bool
	}{
		{role: "operator", obj: "/api/v1/admin/batches/7/process", act: "post", allow: true},
		{role: "operator", obj: "/api/v1/admin/batches/7", act: "DELETE", allow: true},
		{role: "operator", obj: "/api/v1/admin/payments", act: "GET", allow: true},
		{role: "auditor", obj: "/api/v1/admin/batches/7", act: "GET", allow: true},
		{role: "auditor", obj: "/api/v1/admin/batches/7/process", act: "POST", allow: false},
		{role: "scheduler", obj: "/api/v1/admin/batches/7/process", act: "POST", allow: true},
		{role: "scheduler", obj: "/api/v1/admin/payments", act: "GET", allow: false},
		{role: "", obj: "/api/v1/admin/payments", act: "GET", allow: false},
		{role: "stranger", obj: "/api/v1/admin/payments", act: "GET", allow: false},
	}
	for _, item := range cases {
		if got := mustEnforce(t, svc, item.role, item.obj, item.act); got != item.allow {
			t.Fatalf("role=%q %s %s want=%v got=%v", item.role, item.act, item.obj, item.allow, got)
		}
	}
}

func TestBootstrapBuiltinRolesIdempotent(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	want := []string{"role:auditor", "role:operator", "role:scheduler"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("roles want=%v got=%v", want, roles)
	}
	policies, err := svc.GetRolePolicies("auditor")
	if err != nil {
		t.Fatalf("get auditor policies failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Object != "/admin/*" || policies[0].Action != "GET" {
		t.Fatalf("unexpected auditor policies: %+v", policies)
	}
}

func TestCustomRolePolicies(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("finance", "/api/v1/admin/payments/:id/confirm-manual", "POST"); err != nil {
		t.Fatalf("grant policy failed: %v", err)
	}
	if !mustEnforce(t, svc, "finance", "/api/v1/admin/payments/42/confirm-manual", "POST") {
		t.Fatalf("expected finance allowed to confirm manual payments")
	}
	if mustEnforce(t, svc, "finance", "/api/v1/admin/payments/42", "GET") {
		t.Fatalf("expected finance denied on unrelated path")
	}

	if err := svc.RevokeRolePolicy("finance", "/admin/payments/:id/confirm-manual", "POST"); err != nil {
		t.Fatalf("revoke policy failed: %v", err)
	}
	if mustEnforce(t, svc, "finance", "/api/v1/admin/payments/42/confirm-manual", "POST") {
		t.Fatalf("expected revoked policy to deny")
	}
}

func TestBuiltinRolesImmutable(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("auditor", "/admin/batches", "POST"); !errors.Is(err, ErrRoleImmutable) {
		t.Fatalf("grant on builtin role want ErrRoleImmutable, got %v", err)
	}
	if err := svc.RevokeRolePolicy("role:operator", "/admin/*", "*"); !errors.Is(err, ErrRoleImmutable) {
		t.Fatalf("revoke on builtin role want ErrRoleImmutable, got %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/admin/payments", " "); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("blank action want ErrActionRequired, got %v", err)
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/batches/:id", want: "/admin/batches/:id"},
		{in: "/admin/batches/:id", want: "/admin/batches/:id"},
		{in: "admin/payments", want: "/admin/payments"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		if got := NormalizeObject(item.in); got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	got, err := NormalizeRole(" Finance Team ")
	if err != nil || got != "role:finance_team" {
		t.Fatalf("normalize role want role:finance_team, got=%q err=%v", got, err)
	}
	if _, err := NormalizeRole("role:"); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("bare prefix want ErrRoleRequired, got %v", err)
	}
}
