package policy

import (
	"fmt"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// Registry is the immutable per-kind policy lookup. It is built once at
// process start and is safe for concurrent reads without synchronization.
type Registry struct {
	policies map[document.Kind]WorkflowPolicy
}

// NewRegistry validates the policies and builds the lookup table.
func NewRegistry(policies []WorkflowPolicy) (*Registry, error) {
	byKind := make(map[document.Kind]WorkflowPolicy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byKind[p.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate policy for kind %s", document.ErrConfiguration, p.Kind)
		}
		byKind[p.Kind] = p
	}
	if len(byKind) == 0 {
		return nil, fmt.Errorf("%w: no workflow policies configured", document.ErrConfiguration)
	}
	return &Registry{policies: byKind}, nil
}

// Policy returns the workflow policy for a document kind. An unknown kind
// is a configuration bug, not a runtime condition.
func (r *Registry) Policy(kind document.Kind) (WorkflowPolicy, error) {
	p, ok := r.policies[kind]
	if !ok {
		return WorkflowPolicy{}, fmt.Errorf("%w: no policy for kind %q", document.ErrConfiguration, kind)
	}
	return p, nil
}

// Kinds returns the kinds the registry holds policies for.
func (r *Registry) Kinds() []document.Kind {
	kinds := make([]document.Kind, 0, len(r.policies))
	for k := range r.policies {
		kinds = append(kinds, k)
	}
	return kinds
}
