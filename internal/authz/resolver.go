// Package authz resolves (role, resource, action) triples to allow/deny
// decisions through an ordered list of tiers.
//
// Tiers are consulted in order and the first definitive answer wins. A tier
// that cannot answer (unreachable service, no matching row, disabled) yields
// to the next one. When no tier answers the request is denied.
package authz

import (
	"context"

	"veritas/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Tier is one source of authorization decisions. ok is false when the tier
// has no definitive answer.
type Tier interface {
	Name() string
	Decide(ctx context.Context, role, resource, action string) (allowed bool, ok bool)
	Actions(ctx context.Context, role string) (actions []models.Action, ok bool)
}

// SourceDefaultDeny is the Decision source when no tier answered.
const SourceDefaultDeny = "default_deny"

// Decision is the outcome of a check together with the tier that decided it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Source  string `json:"source"`
}

// Resolver walks its tiers in order.
type Resolver struct {
	tiers  []Tier
	logger Logger
}

// NewResolver creates a Resolver that consults tiers in the given order.
func NewResolver(logger Logger, tiers ...Tier) *Resolver {
	return &Resolver{tiers: tiers, logger: logger}
}

// Check returns the first definitive decision for the triple.
func (r *Resolver) Check(ctx context.Context, role, resource, action string) Decision {
	for _, t := range r.tiers {
		if allowed, ok := t.Decide(ctx, role, resource, action); ok {
			r.logger.Debug("authorization decided",
				"tier", t.Name(), "role", role, "resource", resource, "action", action, "allowed", allowed)
			return Decision{Allowed: allowed, Source: t.Name()}
		}
	}
	r.logger.Warn("no tier answered, denying", "role", role, "resource", resource, "action", action)
	return Decision{Allowed: false, Source: SourceDefaultDeny}
}

// Allowed reports whether role may perform action on resource.
func (r *Resolver) Allowed(ctx context.Context, role, resource, action string) bool {
	return r.Check(ctx, role, resource, action).Allowed
}

// AllowedActions lists every action the first answering tier grants to role.
// The result is empty when no tier answers.
func (r *Resolver) AllowedActions(ctx context.Context, role string) []models.Action {
	for _, t := range r.tiers {
		if actions, ok := t.Actions(ctx, role); ok {
			if actions == nil {
				actions = []models.Action{}
			}
			return actions
		}
	}
	return []models.Action{}
}
