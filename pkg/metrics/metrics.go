package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// collectors is the registry of named collector constructors. Components
// register themselves here at startup; the daemon builds one gatherer
// over all of them.
var collectors = make(map[string]InitCollector)

// InitCollector instantiates a registered collector.
type InitCollector func() (prometheus.Collector, error)

// RegisterCollector registers a named collector constructor. Registering
// the same name twice is an error.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := collectors[name]; found {
		return errors.Errorf("collector %s already registered", name)
	}

	collectors[name] = init

	return nil
}

// NewMetricGatherer instantiates every registered collector into a fresh
// pedantic registry and returns it as a prometheus.Gatherer.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	for name, init := range collectors {
		c, err := init()
		if err != nil {
			return nil, errors.Wrapf(err, "collector %s", name)
		}
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrapf(err, "collector %s", name)
		}
	}

	return reg, nil
}
