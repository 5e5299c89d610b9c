// Package registry tracks the evaluation agents known to the orchestrator and
// answers dispatch queries by domain and region.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// Registry is an in-memory agent directory. Registration replaces any prior
// entry for the same agent id wholesale; there is no partial update.
type Registry struct {
	mu         sync.RWMutex
	agents     map[id.AgentID]models.AgentInfo
	logger     *slog.Logger
	clock      func() time.Time
	staleAfter time.Duration
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets a logger for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithStaleAfter marks agents whose last heartbeat is older than d as stale on
// read. Zero disables staleness tracking.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) {
		r.staleAfter = d
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		agents: make(map[id.AgentID]models.AgentInfo),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces an agent. The stored LastSeenAt is set to now.
func (r *Registry) Register(info models.AgentInfo) error {
	if info.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "agent id is required")
	}
	if len(info.Domains) == 0 {
		return dErrors.New(dErrors.CodeValidation, "agent must declare at least one domain")
	}
	info.LastSeenAt = r.clock()

	r.mu.Lock()
	_, replacing := r.agents[info.ID]
	r.agents[info.ID] = info
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("agent registered",
			"agent_id", info.ID,
			"domains", info.Domains,
			"regions", info.Regions,
			"replacing", replacing,
		)
	}
	return nil
}

// Deregister removes an agent. Removing an unknown agent is not an error.
func (r *Registry) Deregister(agentID id.AgentID) {
	r.mu.Lock()
	delete(r.agents, agentID)
	r.mu.Unlock()
}

// Touch refreshes an agent's LastSeenAt from a heartbeat. Returns NotFound for
// agents that never registered; heartbeats do not implicitly register.
func (r *Registry) Touch(agentID id.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, found := r.agents[agentID]
	if !found {
		return dErrors.Newf(dErrors.CodeNotFound, "agent %q is not registered", agentID)
	}
	info.LastSeenAt = r.clock()
	r.agents[agentID] = info
	return nil
}

// Get returns a registered agent by id.
func (r *Registry) Get(agentID id.AgentID) (models.AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, found := r.agents[agentID]
	if found {
		info.Stale = r.isStale(info)
	}
	return info, found
}

// AgentsForDomain returns the agents serving a domain, highest priority first.
// When region is non-empty only agents declaring that region (or no region
// restriction at all) qualify.
func (r *Registry) AgentsForDomain(domain id.AssessmentType, region id.Region) []models.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []models.AgentInfo
	for _, info := range r.agents {
		if !servesDomain(info, domain) {
			continue
		}
		if region != "" && !servesRegion(info, region) {
			continue
		}
		matched = append(matched, info)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

// List returns every registered agent ordered by id.
func (r *Registry) List() []models.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]models.AgentInfo, 0, len(r.agents))
	for _, info := range r.agents {
		info.Stale = r.isStale(info)
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) isStale(info models.AgentInfo) bool {
	if r.staleAfter <= 0 {
		return false
	}
	return r.clock().Sub(info.LastSeenAt) > r.staleAfter
}

func servesDomain(info models.AgentInfo, domain id.AssessmentType) bool {
	for _, d := range info.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

func servesRegion(info models.AgentInfo, region id.Region) bool {
	if len(info.Regions) == 0 {
		return true
	}
	for _, r := range info.Regions {
		if r == region {
			return true
		}
	}
	return false
}
