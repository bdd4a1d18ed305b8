package permissions

import (
	"context"
	"errors"
	"testing"

	"shopbot/internal/models"
)

type stubRuleStore struct {
	forCommandFn func(ctx context.Context, guildID, command string) ([]models.PermissionRule, error)
}

func (s stubRuleStore) ForCommand(ctx context.Context, guildID, command string) ([]models.PermissionRule, error) {
	return s.forCommandFn(ctx, guildID, command)
}

func allowUser(id string) models.PermissionRule {
	return models.PermissionRule{TargetID: id, TargetType: models.TargetUser, Effect: models.EffectAllow, Command: "buy"}
}

func denyRole(id string) models.PermissionRule {
	return models.PermissionRule{TargetID: id, TargetType: models.TargetRole, Effect: models.EffectDeny, Command: models.AllCommands}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		rules   []models.PermissionRule
		subject Subject
		want    bool
	}{
		{name: "no rules", subject: Subject{UserID: "u1"}, want: true},
		{name: "allow list excludes others", rules: []models.PermissionRule{allowUser("u2")}, subject: Subject{UserID: "u1"}, want: false},
		{name: "allow list includes target", rules: []models.PermissionRule{allowUser("u1")}, subject: Subject{UserID: "u1"}, want: true},
		{name: "deny beats allow", rules: []models.PermissionRule{allowUser("u1"), denyRole("r1")}, subject: Subject{UserID: "u1", RoleIDs: []string{"r1"}}, want: false},
		{name: "deny other role", rules: []models.PermissionRule{denyRole("r1")}, subject: Subject{UserID: "u1", RoleIDs: []string{"r2"}}, want: true},
		{name: "admin bypasses deny", rules: []models.PermissionRule{denyRole("r1")}, subject: Subject{UserID: "u1", RoleIDs: []string{"r1"}, IsAdmin: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.rules, tt.subject); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicyAllowed(t *testing.T) {
	var gotCommand string
	policy := NewPolicy(stubRuleStore{forCommandFn: func(_ context.Context, guildID, command string) ([]models.PermissionRule, error) {
		gotCommand = command
		return []models.PermissionRule{denyRole("r1")}, nil
	}})

	ok, err := policy.Allowed(context.Background(), "g1", "sell", Subject{UserID: "u1", RoleIDs: []string{"r1"}})
	if err != nil || ok {
		t.Fatalf("expected denial, got %v %v", ok, err)
	}
	if gotCommand != "sell" {
		t.Fatalf("expected rules for sell, got %q", gotCommand)
	}
}

func TestPolicyAdminSkipsStore(t *testing.T) {
	policy := NewPolicy(stubRuleStore{forCommandFn: func(context.Context, string, string) ([]models.PermissionRule, error) {
		t.Fatal("store should not be consulted for administrators")
		return nil, nil
	}})
	if ok, err := policy.Allowed(context.Background(), "g1", "buy", Subject{IsAdmin: true}); !ok || err != nil {
		t.Fatalf("expected admin to pass, got %v %v", ok, err)
	}
}

func TestPolicyStoreError(t *testing.T) {
	boom := errors.New("db down")
	policy := NewPolicy(stubRuleStore{forCommandFn: func(context.Context, string, string) ([]models.PermissionRule, error) {
		return nil, boom
	}})
	if ok, err := policy.Allowed(context.Background(), "g1", "buy", Subject{UserID: "u1"}); ok || !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v %v", ok, err)
	}
}

func TestCommandKey(t *testing.T) {
	for in, want := range map[string]string{"*": "*", "ALL": "*", "все": "*", " Buy ": "buy"} {
		if got := CommandKey(in); got != want {
			t.Fatalf("CommandKey(%q) = %q, want %q", in, got, want)
		}
	}
}
