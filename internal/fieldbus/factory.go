package fieldbus

import (
	"fmt"
	"sync"

	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// Constructor builds a Driver from a protocol-specific config blob.
type Constructor func(config map[string]string) (Driver, error)

// Factory is the name->constructor registry (§4.4). Registration is
// dynamic; duplicate names are rejected.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	logger       *mxlog.Logger
}

func NewFactory(logger *mxlog.Logger) *Factory {
	return &Factory{constructors: make(map[string]Constructor), logger: logger}
}

// Register adds a named constructor. Returns an error if name is already
// registered.
func (f *Factory) Register(name string, ctor Constructor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.constructors[name]; exists {
		return fmt.Errorf("fieldbus: protocol %q already registered", name)
	}
	f.constructors[name] = ctor
	return nil
}

// Create builds a driver for name. Unknown protocols are logged as a
// warning and return a nil driver and an error.
func (f *Factory) Create(name string, config map[string]string) (Driver, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		if f.logger != nil {
			f.logger.WithComponent("fieldbus.factory").WithField("protocol", name).Warn("unknown fieldbus protocol requested")
		}
		return nil, fmt.Errorf("fieldbus: unknown protocol %q", name)
	}
	return ctor(config)
}

func (f *Factory) RegisteredProtocols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	return names
}
