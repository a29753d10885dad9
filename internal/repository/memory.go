package repository

import (
	"context"
	"sort"
	"sync"

	"veritas/backend/pkg/models"
)

// MemoryStore is an in-process Repository used by tests and by the server when no
// database is configured. Listings that are newest-first in Postgres are newest-first
// here by insertion order.
type MemoryStore struct {
	mu sync.RWMutex

	workflows  []*models.Workflow
	executions []*models.WorkflowExecution
	steps      []*models.ExecutionStep
	documents  []*models.Document
	analyses   []*models.AnalysisResult
	prompts    []*models.PromptVersion
	roles      []*models.Role
	perms      []*models.Permission
	toggles    map[[2]string]bool
	audit      []*models.AuditLog
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{toggles: make(map[[2]string]bool)}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == "" {
		wf.ID = newID()
	}
	wf.CreatedAt = now()
	wf.UpdatedAt = wf.CreatedAt
	cp := *wf
	m.workflows = append(m.workflows, &cp)
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, wf := range m.workflows {
		if wf.ID == id {
			cp := *wf
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListWorkflows(_ context.Context, createdBy string) ([]*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Workflow
	for i := len(m.workflows) - 1; i >= 0; i-- {
		wf := m.workflows[i]
		if createdBy == "" || wf.CreatedBy == createdBy {
			cp := *wf
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.workflows {
		if existing.ID == wf.ID {
			wf.UpdatedAt = now()
			wf.CreatedAt = existing.CreatedAt
			wf.CreatedBy = existing.CreatedBy
			cp := *wf
			m.workflows[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, wf := range m.workflows {
		if wf.ID == id {
			m.workflows = append(m.workflows[:i], m.workflows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateExecution(_ context.Context, exec *models.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.ID == "" {
		exec.ID = newID()
	}
	exec.CreatedAt = now()
	cp := *exec
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *MemoryStore) UpdateExecution(_ context.Context, exec *models.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.executions {
		if existing.ID == exec.ID {
			cp := *existing
			cp.DocumentID = exec.DocumentID
			cp.Status = exec.Status
			cp.FinishedAt = exec.FinishedAt
			cp.ErrorMessage = exec.ErrorMessage
			m.executions[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, exec := range m.executions {
		if exec.ID == id {
			cp := *exec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListExecutions(_ context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.WorkflowExecution
	for i := len(m.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if exec := m.executions[i]; exec.WorkflowID == workflowID {
			cp := *exec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateStep(_ context.Context, step *models.ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.steps {
		if existing.ExecutionID == step.ExecutionID && existing.Sequence == step.Sequence {
			return ErrDuplicateSequence
		}
	}
	if step.ID == "" {
		step.ID = newID()
	}
	step.CreatedAt = now()
	cp := *step
	m.steps = append(m.steps, &cp)
	return nil
}

func (m *MemoryStore) UpdateStep(_ context.Context, step *models.ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.steps {
		if existing.ID == step.ID {
			cp := *existing
			cp.Status = step.Status
			cp.FinishedAt = step.FinishedAt
			cp.OutputPayload = step.OutputPayload
			cp.LatencySeconds = step.LatencySeconds
			cp.ErrorMessage = step.ErrorMessage
			m.steps[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListSteps(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ExecutionStep
	for _, step := range m.steps {
		if step.ExecutionID == executionID {
			cp := *step
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = newID()
	}
	doc.CreatedAt = now()
	cp := *doc
	m.documents = append(m.documents, &cp)
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.documents {
		if doc.ID == id {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListDocuments(_ context.Context, uploadedBy string) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Document
	for i := len(m.documents) - 1; i >= 0; i-- {
		if doc := m.documents[i]; uploadedBy == "" || doc.UploadedBy == uploadedBy {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, doc := range m.documents {
		if doc.ID == id {
			m.documents = append(m.documents[:i], m.documents[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateAnalysisResult(_ context.Context, res *models.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.ID == "" {
		res.ID = newID()
	}
	res.CreatedAt = now()
	cp := *res
	m.analyses = append(m.analyses, &cp)
	return nil
}

func (m *MemoryStore) GetAnalysisResult(_ context.Context, id string) (*models.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, res := range m.analyses {
		if res.ID == id {
			cp := *res
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) LatestComplianceResult(_ context.Context, documentID string) (*models.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.analyses) - 1; i >= 0; i-- {
		if res := m.analyses[i]; res.DocumentID == documentID && res.Score != nil {
			cp := *res
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetActivePrompt(_ context.Context, analysisType string) (*models.PromptVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.prompts) - 1; i >= 0; i-- {
		if p := m.prompts[i]; p.AnalysisType == analysisType && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListPrompts(_ context.Context, analysisType string) ([]*models.PromptVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.PromptVersion
	for i := len(m.prompts) - 1; i >= 0; i-- {
		if p := m.prompts[i]; analysisType == "" || p.AnalysisType == analysisType {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePrompt(_ context.Context, p *models.PromptVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now()
	if p.IsActive {
		m.deactivatePrompts(p.AnalysisType)
	}
	cp := *p
	m.prompts = append(m.prompts, &cp)
	return nil
}

func (m *MemoryStore) ActivatePrompt(_ context.Context, id string) (*models.PromptVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prompts {
		if p.ID == id {
			m.deactivatePrompts(p.AnalysisType)
			p.IsActive = true
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) deactivatePrompts(analysisType string) {
	for _, p := range m.prompts {
		if p.AnalysisType == analysisType {
			p.IsActive = false
		}
	}
}

func (m *MemoryStore) ListRoles(context.Context) ([]*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetRole(_ context.Context, id string) (*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.roles {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetRoleByName(_ context.Context, name string) (*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r := m.roleByName(name); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) roleByName(name string) *models.Role {
	for _, r := range m.roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (m *MemoryStore) permByName(name string) *models.Permission {
	for _, p := range m.perms {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (m *MemoryStore) ListPermissions(context.Context) ([]*models.Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedPermissions(), nil
}

func (m *MemoryStore) sortedPermissions() []*models.Permission {
	out := make([]*models.Permission, 0, len(m.perms))
	for _, p := range m.perms {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *MemoryStore) UpsertRole(_ context.Context, role *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.roleByName(role.Name); existing != nil {
		existing.DisplayName = role.DisplayName
		role.ID = existing.ID
		return nil
	}
	if role.ID == "" {
		role.ID = newID()
	}
	cp := *role
	m.roles = append(m.roles, &cp)
	return nil
}

func (m *MemoryStore) UpsertPermission(_ context.Context, perm *models.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.permByName(perm.Name); existing != nil {
		existing.DisplayName = perm.DisplayName
		existing.Module = perm.Module
		perm.ID = existing.ID
		return nil
	}
	if perm.ID == "" {
		perm.ID = newID()
	}
	cp := *perm
	m.perms = append(m.perms, &cp)
	return nil
}

func (m *MemoryStore) LookupRolePermission(_ context.Context, roleName, permissionName string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, p := m.roleByName(roleName), m.permByName(permissionName)
	if r == nil || p == nil {
		return false, false, nil
	}
	allowed, found := m.toggles[[2]string{r.ID, p.ID}]
	return allowed, found, nil
}

func (m *MemoryStore) ListAllowedPermissions(_ context.Context, roleName string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.roleByName(roleName)
	if r == nil {
		return nil, false, nil
	}
	var (
		names   []string
		hasRows bool
	)
	for _, p := range m.perms {
		allowed, found := m.toggles[[2]string{r.ID, p.ID}]
		if !found {
			continue
		}
		hasRows = true
		if allowed {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, hasRows, nil
}

func (m *MemoryStore) ListRolePermissions(_ context.Context, roleID string) ([]*models.RolePermissionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perms := m.sortedPermissions()
	out := make([]*models.RolePermissionView, 0, len(perms))
	for _, p := range perms {
		out = append(out, &models.RolePermissionView{
			Permission: *p,
			Allowed:    m.toggles[[2]string{roleID, p.ID}],
		})
	}
	return out, nil
}

func (m *MemoryStore) SetRolePermissions(_ context.Context, roleID string, updates []models.RolePermission) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		m.toggles[[2]string{roleID, u.PermissionID}] = u.Allowed
	}
	return len(updates), nil
}

func (m *MemoryStore) AppendAuditLog(_ context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *MemoryStore) ListAuditLogs(_ context.Context, f AuditFilter) ([]*models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		out     []*models.AuditLog
		skipped int
	)
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if !matches(f.UserID, e.UserID) || !matches(f.Resource, e.Resource) || !matches(f.Action, e.Action) {
			continue
		}
		if f.ResourceID != "" && (e.ResourceID == nil || *e.ResourceID != f.ResourceID) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func matches(filter, value string) bool {
	return filter == "" || filter == value
}

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)
