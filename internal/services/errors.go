package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrDuplicateName   = errors.New("an item with this name already exists")
	ErrUnknownCostItem = errors.New("barter cost references an unknown item")
	ErrSelfTransfer    = errors.New("cannot pay yourself")
	ErrBotTarget       = errors.New("cannot pay a bot")

	// ErrCommitFailed means validation passed but a write did not apply;
	// nothing was changed and the caller may try again.
	ErrCommitFailed = errors.New("transaction could not be completed")

	ErrPolicyDenied    = errors.New("not allowed")
	ErrItemNotListed   = errors.New("item is not listed in the shop")
	ErrMissingBuyRole  = errors.New("a required role is missing to buy this item")
	ErrMissingSellRole = errors.New("a required role is missing to sell this item")
	ErrSellDisallowed  = errors.New("this item cannot be sold")

	ErrInsufficient = errors.New("insufficient resources")
	ErrWorkCooldown = errors.New("work is on cooldown")
)

// PolicyError reports why the member may not perform the operation. Roles
// lists the role ids any one of which would have allowed it.
type PolicyError struct {
	Reason error
	Roles  []string
}

func (e *PolicyError) Error() string {
	return e.Reason.Error()
}

func (e *PolicyError) Unwrap() error { return e.Reason }

func (e *PolicyError) Is(target error) bool { return target == ErrPolicyDenied }

func denied(reason error, roles ...string) error {
	return &PolicyError{Reason: reason, Roles: roles}
}

const (
	ResourceBalance   = "balance"
	ResourceItems     = "items"
	ResourceStock     = "stock"
	ResourceQuota     = "quota"
	ResourceInventory = "inventory"
)

type Shortfall struct {
	ItemID    int64
	Name      string
	Required  int64
	Available int64
}

// InsufficientError reports the exact shortfall of a resource. For barter
// costs every short component is listed.
type InsufficientError struct {
	Resource   string
	Required   int64
	Available  int64
	Shortfalls []Shortfall
}

func (e *InsufficientError) Error() string {
	if len(e.Shortfalls) > 0 {
		parts := make([]string, 0, len(e.Shortfalls))
		for _, s := range e.Shortfalls {
			label := s.Name
			if label == "" {
				label = fmt.Sprintf("#%d", s.ItemID)
			}
			parts = append(parts, fmt.Sprintf("%s %d/%d", label, s.Available, s.Required))
		}
		return fmt.Sprintf("insufficient %s: %s", e.Resource, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("insufficient %s: available %d, required %d", e.Resource, e.Available, e.Required)
}

func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficient }

type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("work is on cooldown for %s", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrWorkCooldown }
