package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"veritas/backend/pkg/models"
)

const policyPath = "/v1/data/veritas/authz"

// PolicyTier queries a remote policy service. Transport failures, non-2xx
// responses, undecodable bodies and bodies without a "result" key all mean
// "no answer". A tier without a URL never answers and never logs.
type PolicyTier struct {
	url    string
	client *http.Client
	cache  DecisionCache
	logger Logger
}

// NewPolicyTier creates a PolicyTier for the service at url. Every call is
// bounded by timeout. cache may be nil.
func NewPolicyTier(url string, timeout time.Duration, cache DecisionCache, logger Logger) *PolicyTier {
	return &PolicyTier{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		logger: logger,
	}
}

func (p *PolicyTier) Name() string { return "policy" }

// Decide asks the policy service for a single decision.
func (p *PolicyTier) Decide(ctx context.Context, role, resource, action string) (bool, bool) {
	if p.url == "" {
		return false, false
	}
	key := cacheKey(role, resource, action)
	if p.cache != nil {
		if allowed, ok := p.cache.Get(ctx, key); ok {
			return allowed, true
		}
	}

	var body struct {
		Result *bool `json:"result"`
	}
	input := map[string]string{"role": role, "resource": resource, "action": action}
	if err := p.query(ctx, "/allow", input, &body); err != nil {
		p.logger.Warn("policy service unavailable", "error", err)
		return false, false
	}
	if body.Result == nil {
		return false, false
	}
	if p.cache != nil {
		p.cache.Set(ctx, key, *body.Result)
	}
	return *body.Result, true
}

// Actions asks the policy service for every action allowed to role.
func (p *PolicyTier) Actions(ctx context.Context, role string) ([]models.Action, bool) {
	if p.url == "" {
		return nil, false
	}
	var body struct {
		Result *[]models.Action `json:"result"`
	}
	if err := p.query(ctx, "/allowed_actions", map[string]string{"role": role}, &body); err != nil {
		p.logger.Warn("policy service unavailable", "error", err)
		return nil, false
	}
	if body.Result == nil {
		return nil, false
	}
	return *body.Result, true
}

func (p *PolicyTier) query(ctx context.Context, rule string, input map[string]string, out any) error {
	requestBody, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+policyPath+rule, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("policy query failed: status code %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func cacheKey(role, resource, action string) string {
	return "authz:" + role + ":" + resource + "/" + action
}
