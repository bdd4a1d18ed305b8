package permissions

import (
	"context"
	"strings"

	"shopbot/internal/models"
)

// RuleStore returns the rules for one command plus the all-commands rules.
type RuleStore interface {
	ForCommand(ctx context.Context, guildID, command string) ([]models.PermissionRule, error)
}

// Subject is the member invoking a command.
type Subject struct {
	UserID  string
	RoleIDs []string
	IsAdmin bool
}

type Policy struct {
	rules RuleStore
}

func NewPolicy(rules RuleStore) *Policy {
	return &Policy{rules: rules}
}

// Allowed reports whether subject may run command in the guild.
func (p *Policy) Allowed(ctx context.Context, guildID, command string, subject Subject) (bool, error) {
	if subject.IsAdmin {
		return true, nil
	}
	rules, err := p.rules.ForCommand(ctx, guildID, command)
	if err != nil {
		return false, err
	}
	return Evaluate(rules, subject), nil
}

// Evaluate applies the rules: a matching deny always wins, and once any
// allow rule exists only matching targets pass.
func Evaluate(rules []models.PermissionRule, subject Subject) bool {
	if subject.IsAdmin {
		return true
	}
	hasAllow := false
	allowed := false
	for _, rule := range rules {
		match := matches(rule, subject)
		switch rule.Effect {
		case models.EffectDeny:
			if match {
				return false
			}
		case models.EffectAllow:
			hasAllow = true
			if match {
				allowed = true
			}
		}
	}
	return !hasAllow || allowed
}

func matches(rule models.PermissionRule, subject Subject) bool {
	switch rule.TargetType {
	case models.TargetUser:
		return rule.TargetID == subject.UserID
	case models.TargetRole:
		for _, id := range subject.RoleIDs {
			if id == rule.TargetID {
				return true
			}
		}
	}
	return false
}

// CommandKey canonicalizes a command name typed by an admin. The words for
// "everything" map to the all-commands rule.
func CommandKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "*", "all", "все":
		return models.AllCommands
	}
	return name
}
