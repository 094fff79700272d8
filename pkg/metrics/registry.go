package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is a process-wide collector registry. Unlike
// prometheus.DefaultRegisterer, a Registry is explicit state: tests create
// their own rather than relying on the package-global default.
type Registry struct {
	reg *prometheus.Registry
}

func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// MustRegister registers one or more collectors, panicking on a duplicate
// registration (a programmer error: metric names must be unique at
// construction time).
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.reg.MustRegister(collectors...)
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
