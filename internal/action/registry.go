package action

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// Registry holds immutable Definitions by id and Constructors by type name.
// Re-registering a definition id or type name overwrites the prior entry
// with a logged warning rather than failing, matching the teacher's
// tolerant "last registration wins" pattern for name-keyed registries.
type Registry struct {
	mu           sync.RWMutex
	definitions  map[string]Definition
	constructors map[string]Constructor
	logger       *mxlog.Logger
}

func NewRegistry(logger *mxlog.Logger) *Registry {
	return &Registry{
		definitions:  make(map[string]Definition),
		constructors: make(map[string]Constructor),
		logger:       logger,
	}
}

func (r *Registry) RegisterDefinition(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.ID]; exists && r.logger != nil {
		r.logger.WithComponent("action_registry").Warnf("overwriting action definition %q", def.ID)
	}
	r.definitions[def.ID] = def
}

func (r *Registry) RegisterType(typeName string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[typeName]; exists && r.logger != nil {
		r.logger.WithComponent("action_registry").Warnf("overwriting action type %q", typeName)
	}
	r.constructors[typeName] = ctor
}

func (r *Registry) Definition(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[id]
	return d, ok
}

// CreateInstance builds a fresh IAction from a registered definition,
// assigning it a unique instance id distinct from the definition id so the
// same definition may be run concurrently.
func (r *Registry) CreateInstance(definitionID string) (IAction, error) {
	r.mu.RLock()
	def, ok := r.definitions[definitionID]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("action: unknown definition %q", definitionID)
	}
	ctor, ok := r.constructors[def.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownType{Type: def.Type}
	}

	instance := def
	instance.ID = uuid.New().String()
	return ctor(instance)
}

// CreateFromParameters builds an action of typeName directly from a
// parameter map, bypassing the definition registry (used by the sequence
// layer's per-step action construction).
func (r *Registry) CreateFromParameters(typeName string, parameters map[string]string, timeoutMS int64) (IAction, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownType{Type: typeName}
	}
	return ctor(Definition{
		ID:         uuid.New().String(),
		Type:       typeName,
		Parameters: parameters,
		TimeoutMS:  timeoutMS,
	})
}
