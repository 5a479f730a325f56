package cluster

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/andydunstall/meshmaster/pkg/log"
)

// Registry contains the topics published by processes on the local node and
// the ports serving them.
//
// The registry is authoritative for the local node and is only updated by
// local registration requests.
type Registry struct {
	topics map[string]map[int]struct{}

	// mu protects the above fields.
	mu sync.RWMutex

	metrics *RegistryMetrics

	logger log.Logger
}

func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		topics:  make(map[string]map[int]struct{}),
		metrics: newRegistryMetrics(),
		logger:  logger.WithSubsystem("cluster"),
	}
}

// Register adds a publisher of topic on the given port. Registering the same
// publisher more than once has no affect.
func (r *Registry) Register(topic string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports, ok := r.topics[topic]
	if !ok {
		ports = make(map[int]struct{})
		r.topics[topic] = ports
		r.metrics.Topics.Inc()
	}
	if _, ok := ports[port]; ok {
		return
	}
	ports[port] = struct{}{}
	r.metrics.Publishers.Inc()

	r.logger.Debug(
		"registered publisher",
		zap.String("topic", topic),
		zap.Int("port", port),
	)
}

// Unregister removes the publisher of topic on the given port, if it exists.
func (r *Registry) Unregister(topic string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports, ok := r.topics[topic]
	if !ok {
		return
	}
	if _, ok := ports[port]; !ok {
		return
	}
	delete(ports, port)
	r.metrics.Publishers.Dec()

	if len(ports) == 0 {
		delete(r.topics, topic)
		r.metrics.Topics.Dec()
	}

	r.logger.Debug(
		"unregistered publisher",
		zap.String("topic", topic),
		zap.Int("port", port),
	)
}

// Ports returns the local ports publishing the topic, in ascending order.
func (r *Registry) Ports(topic string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedPorts(r.topics[topic])
}

// Snapshot returns a copy of the registered publishers, mapping each topic to
// its ports in ascending order.
//
// The returned table is owned by the caller and isn't affected by later
// registrations.
func (r *Registry) Snapshot() map[string][]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := make(map[string][]int, len(r.topics))
	for topic, ports := range r.topics {
		table[topic] = sortedPorts(ports)
	}
	return table
}

func (r *Registry) Metrics() *RegistryMetrics {
	return r.metrics
}

func sortedPorts(ports map[int]struct{}) []int {
	if len(ports) == 0 {
		return nil
	}
	sorted := make([]int, 0, len(ports))
	for port := range ports {
		sorted = append(sorted, port)
	}
	sort.Ints(sorted)
	return sorted
}
