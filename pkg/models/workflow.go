package models

import (
	"time"
)

// NodeKind is the closed set of processing steps a workflow graph may contain.
type NodeKind string

const (
	NodeDocumentUpload  NodeKind = "document_upload"
	NodeExtractText     NodeKind = "extract_text"
	NodeAnalyzeGDPR     NodeKind = "analyze_gdpr"
	NodeAnalyzeCCPA     NodeKind = "analyze_ccpa"
	NodeScoreCompliance NodeKind = "score_compliance"

	// NodeUnknown is returned by ParseNodeKind for any unsupported tag.
	NodeUnknown NodeKind = ""
)

// ParseNodeKind maps a stored type tag onto a NodeKind. Matching is exact.
func ParseNodeKind(tag string) NodeKind {
	switch k := NodeKind(tag); k {
	case NodeDocumentUpload, NodeExtractText, NodeAnalyzeGDPR, NodeAnalyzeCCPA, NodeScoreCompliance:
		return k
	}
	return NodeUnknown
}

// IsAnalysis reports whether the node consumes upstream output and so cannot be a graph root.
func (k NodeKind) IsAnalysis() bool {
	return k == NodeAnalyzeGDPR || k == NodeAnalyzeCCPA || k == NodeScoreCompliance
}

// Position is the canvas location of a node. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the React Flow data payload of a node.
type NodeData struct {
	Label  string         `json:"label,omitempty"`
	Type   string         `json:"type,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Node is one typed unit of work in a workflow graph.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// TypeTag returns the tag that determines the node kind. Graph editors store generic
// nodes as type "default" with the real tag under data.type.
func (n Node) TypeTag() string {
	if (n.Type == "" || n.Type == "default") && n.Data.Type != "" {
		return n.Data.Type
	}
	return n.Type
}

// Kind resolves the node's NodeKind.
func (n Node) Kind() NodeKind {
	return ParseNodeKind(n.TypeTag())
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"sourceHandle,omitempty"`
	TargetHandle *string `json:"targetHandle,omitempty"`
}

// Workflow is a user-authored processing graph.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowExecution represents one triggered run of a workflow
type WorkflowExecution struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	DocumentID   *string    `json:"document_id"`
	Status       RunStatus  `json:"status"`
	TriggeredBy  string     `json:"triggered_by"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ExecutionStep records one node visited during a run. Sequence is the
// zero-based position of the step within its execution.
type ExecutionStep struct {
	ID             string         `json:"id"`
	ExecutionID    string         `json:"execution_id"`
	NodeID         string         `json:"node_id"`
	NodeType       string         `json:"node_type"`
	Sequence       int            `json:"sequence"`
	Status         RunStatus      `json:"status"`
	StartedAt      *time.Time     `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	InputPayload   map[string]any `json:"input_payload"`
	OutputPayload  map[string]any `json:"output_payload"`
	LatencySeconds *float64       `json:"latency_seconds"`
	ErrorMessage   *string        `json:"error_message"`
	CreatedAt      time.Time      `json:"created_at"`
}
