package authz

import (
	"context"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/pkg/models"
)

// Authorizer gates operations on the resolver and records every decision.
type Authorizer struct {
	resolver *Resolver
	audit    audit.Recorder
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(resolver *Resolver, recorder audit.Recorder) *Authorizer {
	return &Authorizer{resolver: resolver, audit: recorder}
}

// Resolver returns the underlying resolver.
func (a *Authorizer) Resolver() *Resolver { return a.resolver }

// Authorize checks the actor's role, audits the decision and returns an
// AuthorizationError when access is denied.
func (a *Authorizer) Authorize(ctx context.Context, actor models.Actor, resource, action, resourceID string) error {
	d := a.resolver.Check(ctx, actor.Role, resource, action)
	a.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   resource,
		Action:     action,
		ResourceID: resourceID,
		PolicyInput: map[string]any{
			"role":     actor.Role,
			"resource": resource,
			"action":   action,
		},
		PolicyDecision: map[string]any{
			"allow":  d.Allowed,
			"source": d.Source,
		},
	})
	if !d.Allowed {
		return &apperr.AuthorizationError{Role: actor.Role, Resource: resource, Action: action}
	}
	return nil
}

// Can reports whether the actor may perform an action without auditing. It is
// used for scope decisions (own versus all) after the gating check passed.
func (a *Authorizer) Can(ctx context.Context, actor models.Actor, resource, action string) bool {
	return a.resolver.Allowed(ctx, actor.Role, resource, action)
}
