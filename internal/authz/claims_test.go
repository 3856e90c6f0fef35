package authz

import (
	"errors"
	"testing"
	"time"
)

func TestActorTokenRoundTrip(t *testing.T) {
	token, err := IssueActorToken("secret-a", "settle", 9, "operator", time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	claims, err := ParseActorToken("secret-a", "settle", token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.ActorID != 9 || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseActorTokenRejects(t *testing.T) {
	valid, err := IssueActorToken("secret-a", "settle", 9, "operator", time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	expired, err := IssueActorToken("secret-a", "settle", 9, "operator", -time.Minute)
	if err != nil {
		t.Fatalf("issue expired token failed: %v", err)
	}
	noRole, err := IssueActorToken("secret-a", "settle", 9, "", time.Hour)
	if err != nil {
		t.Fatalf("issue roleless token failed: %v", err)
	}

	cases := []struct {
		name   string
		secret string
		issuer string
		token  string
	}{
		{name: "wrong secret", secret: "secret-b", issuer: "settle", token: valid},
		{name: "wrong issuer", secret: "secret-a", issuer: "other", token: valid},
		{name: "expired", secret: "secret-a", issuer: "settle", token: expired},
		{name: "missing role", secret: "secret-a", issuer: "settle", token: noRole},
		{name: "garbage", secret: "secret-a", issuer: "", token: "not-a-jwt"},
		{name: "empty secret", secret: "", issuer: "", token: valid},
	}
	for _, item := range cases {
		if _, err := ParseActorToken(item.secret, item.issuer, item.token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: want ErrTokenInvalid, got %v", item.name, err)
		}
	}
}
