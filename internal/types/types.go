// Package types provides shared type definitions used across knowShowGo packages.
// This package exists to break import cycles between store, ksg, procedure, and
// agent. Types in this package should be foundational data structures with no
// complex dependencies.
package types

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

var (
	// ErrInvalidArgument means the caller passed malformed input. Surfaced
	// immediately, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means a referenced uuid is missing. Surfaces as a step
	// error so the adaptation loop may recover.
	ErrNotFound = errors.New("not found")

	// ErrLLMFailure means the provider errored or returned unparseable
	// output. Routes to the fallback/reuse path.
	ErrLLMFailure = errors.New("llm failure")

	// ErrToolFailure means a tool raised; the adaptation loop retries up
	// to the configured cap.
	ErrToolFailure = errors.New("tool failure")

	// ErrBlocked means the shell policy rejected a command. Surfaced
	// unchanged, never retried.
	ErrBlocked = errors.New("blocked by policy")

	// ErrInternal means unexpected state, e.g. a dependency cycle in an
	// allegedly-validated procedure. Aborts the request.
	ErrInternal = errors.New("internal error")
)

// =============================================================================
// NODE KINDS
// =============================================================================

const (
	KindConcept      = "Concept"
	KindPrototype    = "Prototype"
	KindProcedure    = "Procedure"
	KindStep         = "Step"
	KindTask         = "Task"
	KindEvent        = "Event"
	KindPerson       = "Person"
	KindMessage      = "Message"
	KindCredential   = "Credential"
	KindFormData     = "FormData"
	KindFormPattern  = "FormPattern"
	KindQueue        = "Queue"
	KindProcedureRun = "ProcedureRun"
	KindSchema       = "Schema"
	KindNode         = "Node" // graph-schema procedure node
)

// =============================================================================
// EDGE RELATIONS
// =============================================================================

const (
	RelInstantiates    = "instantiates"
	RelInheritsFrom    = "inherits_from"
	RelHasStep         = "has_step"
	RelHasNode         = "has_node"
	RelDependsOn       = "depends_on"
	RelBranchTrue      = "branch_true"
	RelBranchFalse     = "branch_false"
	RelLoopBack        = "loop_back"
	RelCallsProcedure  = "calls_procedure"
	RelHasSubprocedure = "has_subprocedure"
	RelHasPattern      = "has_pattern"
	RelAdaptedFrom     = "adapted_from"
	RelRunOf           = "run_of"
	RelConformsTo      = "conforms_to"

	// AssociationPrefix namespaces free-form association edges, e.g.
	// "association:generalized_from".
	AssociationPrefix = "association:"
)

// AssociationRel builds a namespaced association relation name.
func AssociationRel(name string) string {
	return AssociationPrefix + name
}

// =============================================================================
// NODE / EDGE / PROVENANCE
// =============================================================================

// Props is the heterogeneous property bag carried by nodes and edges.
// All mutation goes through the memory store; callers hold uuids, not
// pointers into the store.
type Props map[string]interface{}

// Clone returns a shallow copy. Nested maps and slices remain shared;
// the store deep-copies on upsert via JSON round-trip.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns props[key] as a string, or "" when absent or non-string.
func (p Props) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Bool returns props[key] as a bool, false when absent.
func (p Props) Bool(key string) bool {
	if p == nil {
		return false
	}
	b, _ := p[key].(bool)
	return b
}

// Float returns props[key] as a float64. JSON round-trips store all numbers
// as float64, but int is accepted for values set in-process.
func (p Props) Float(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns props[key] truncated to int, 0 when absent.
func (p Props) Int(key string) int {
	f, ok := p.Float(key)
	if !ok {
		return 0
	}
	return int(f)
}

// Node is a typed entity in the semantic memory graph.
type Node struct {
	UUID      string    `json:"uuid"`
	Kind      string    `json:"kind"`
	Labels    []string  `json:"labels,omitempty"`
	Props     Props     `json:"props,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsPrototype reports whether the node is a seeded prototype.
func (n *Node) IsPrototype() bool {
	return n.Kind == KindPrototype || n.Props.Bool("isPrototype")
}

// Edge links two nodes by uuid. Both endpoints must exist in the store;
// dangling edges are a bug.
type Edge struct {
	UUID     string  `json:"uuid"`
	FromNode string  `json:"from_node"`
	ToNode   string  `json:"to_node"`
	Rel      string  `json:"rel"`
	Props    Props   `json:"props,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

// ProvenanceSource enumerates where a write originated.
type ProvenanceSource string

const (
	SourceUser ProvenanceSource = "user"
	SourceTool ProvenanceSource = "tool"
	SourceDoc  ProvenanceSource = "doc"
)

// Provenance is attached to every upsert. It is recorded on affected
// entities, not stored as a node.
type Provenance struct {
	Source     ProvenanceSource `json:"source"`
	TS         time.Time        `json:"ts"`
	Confidence float64          `json:"confidence"`
	TraceID    string           `json:"trace_id"`
}

// NewProvenance stamps a provenance tuple with the current UTC time.
func NewProvenance(source ProvenanceSource, confidence float64, traceID string) Provenance {
	return Provenance{
		Source:     source,
		TS:         time.Now().UTC(),
		Confidence: confidence,
		TraceID:    traceID,
	}
}

// =============================================================================
// KIND-SPECIFIC ACCESSORS
// =============================================================================

// ProcedureView is a validated read of a Procedure node's props.
type ProcedureView struct {
	UUID         string
	Goal         string
	Tested       bool
	SuccessCount int
	FailureCount int
	LastStatus   string
	LastTraceID  string
}

// AsProcedure validates the required procedure props on read.
func AsProcedure(n *Node) (*ProcedureView, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}
	if n.Kind != KindProcedure && n.Kind != KindConcept {
		return nil, fmt.Errorf("%w: node %s has kind %s, want Procedure", ErrInvalidArgument, n.UUID, n.Kind)
	}
	return &ProcedureView{
		UUID:         n.UUID,
		Goal:         n.Props.String("goal"),
		Tested:       n.Props.Bool("tested"),
		SuccessCount: n.Props.Int("success_count"),
		FailureCount: n.Props.Int("failure_count"),
		LastStatus:   n.Props.String("last_status"),
		LastTraceID:  n.Props.String("last_trace_id"),
	}, nil
}

// StepView is a validated read of a Step node's props.
type StepView struct {
	UUID      string
	Tool      string
	Order     int
	Payload   Props
	GuardText string
	Guard     Props
	OnFail    string
}

// AsStep validates the required step props on read. Tool is mandatory.
func AsStep(n *Node) (*StepView, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}
	tool := n.Props.String("tool")
	if tool == "" {
		return nil, fmt.Errorf("%w: step %s has no tool", ErrInvalidArgument, n.UUID)
	}
	payload, _ := n.Props["payload"].(map[string]interface{})
	guard, _ := n.Props["guard"].(map[string]interface{})
	return &StepView{
		UUID:      n.UUID,
		Tool:      tool,
		Order:     n.Props.Int("order"),
		Payload:   Props(payload),
		GuardText: n.Props.String("guard_text"),
		Guard:     Props(guard),
		OnFail:    n.Props.String("on_fail"),
	}, nil
}
