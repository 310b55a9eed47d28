package coordinator

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
)

const agentsBucket = "agents"

// DefaultHeartbeatTimeout marks agents unhealthy when heartbeats stop.
const DefaultHeartbeatTimeout = 30 * time.Second

// AgentRegistration is the payload a joining agent presents.
type AgentRegistration struct {
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	MaxConcurrentTasks int               `json:"max_concurrent_tasks"`
	Endpoint           string            `json:"endpoint,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Heartbeat is a liveness report from an agent.
type Heartbeat struct {
	AgentID      string            `json:"agent_id"`
	Status       types.AgentStatus `json:"status"`
	CurrentTasks int               `json:"current_tasks"`
}

// Registry tracks remote agents over a KV backend.
type Registry struct {
	mu               sync.Mutex
	kv               KV
	heartbeatTimeout time.Duration
	logger           zerolog.Logger
}

// NewRegistry creates a Registry. A non-positive timeout uses the default.
func NewRegistry(kv KV, heartbeatTimeout time.Duration) *Registry {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &Registry{
		kv:               kv,
		heartbeatTimeout: heartbeatTimeout,
		logger:           log.WithComponent("registry"),
	}
}

func (r *Registry) putAgent(agent *types.AgentInfo) error {
	data, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("failed to encode agent: %w", err)
	}
	return r.kv.HSet(agentsBucket, agent.AgentID, data)
}

func (r *Registry) getAgent(agentID string) (*types.AgentInfo, error) {
	data, err := r.kv.HGet(agentsBucket, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: agent %s", types.ErrNotFound, agentID)
	}
	var agent types.AgentInfo
	if err := json.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("failed to decode agent %s: %w", agentID, err)
	}
	return &agent, nil
}

func (r *Registry) allAgents() ([]*types.AgentInfo, error) {
	records, err := r.kv.HGetAll(agentsBucket)
	if err != nil {
		return nil, err
	}
	out := make([]*types.AgentInfo, 0, len(records))
	for id, data := range records {
		var agent types.AgentInfo
		if err := json.Unmarshal(data, &agent); err != nil {
			r.logger.Warn().Err(err).Str("agent_id", id).Msg("skipping corrupt agent record")
			continue
		}
		out = append(out, &agent)
	}
	return out, nil
}

// Register adds an agent and returns its assigned info.
func (r *Registry) Register(reg AgentRegistration) (*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.Name == "" {
		return nil, fmt.Errorf("%w: agent name must not be empty", types.ErrValidation)
	}
	if reg.MaxConcurrentTasks <= 0 {
		reg.MaxConcurrentTasks = 1
	}
	agent := &types.AgentInfo{
		AgentID:            uuid.New().String(),
		Name:               reg.Name,
		Capabilities:       append([]string(nil), reg.Capabilities...),
		Status:             types.AgentOnline,
		MaxConcurrentTasks: reg.MaxConcurrentTasks,
		LastHeartbeat:      time.Now(),
		Endpoint:           reg.Endpoint,
		Metadata:           reg.Metadata,
	}
	if err := r.putAgent(agent); err != nil {
		return nil, err
	}
	metrics.AgentsByStatus.WithLabelValues(string(types.AgentOnline)).Inc()
	r.logger.Info().Str("agent_id", agent.AgentID).Str("name", agent.Name).Msg("agent registered")
	return agent, nil
}

// Deregister removes an agent.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, err := r.getAgent(agentID)
	if err != nil {
		return err
	}
	if err := r.kv.HDel(agentsBucket, agentID); err != nil {
		return err
	}
	metrics.AgentsByStatus.WithLabelValues(string(agent.Status)).Dec()
	r.logger.Info().Str("agent_id", agentID).Msg("agent deregistered")
	return nil
}

// GetAgent returns one agent by id.
func (r *Registry) GetAgent(agentID string) (*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAgent(agentID)
}

// ListAgents returns agents, optionally filtered by status.
func (r *Registry) ListAgents(status types.AgentStatus) ([]*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents, err := r.allAgents()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return agents, nil
	}
	filtered := agents[:0]
	for _, a := range agents {
		if a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// FindAgentsByCapability returns agents declaring the capability.
func (r *Registry) FindAgentsByCapability(capability string) ([]*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents, err := r.allAgents()
	if err != nil {
		return nil, err
	}
	matched := agents[:0]
	for _, a := range agents {
		if a.HasCapability(capability) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// FindAvailableAgent selects the ONLINE agent with spare capacity and all
// required capabilities that has the fewest current tasks. Ties break on
// the lexically smallest agent id.
func (r *Registry) FindAvailableAgent(requiredCapabilities []string) (*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findAvailableLocked(requiredCapabilities)
}

// ClaimAvailableAgent selects an available agent and reserves one task
// slot on it in the same critical section, so concurrent dispatchers
// cannot push an agent past its max_concurrent_tasks.
func (r *Registry) ClaimAvailableAgent(requiredCapabilities []string) (*types.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, err := r.findAvailableLocked(requiredCapabilities)
	if err != nil {
		return nil, err
	}
	agent.CurrentTasks++
	if err := r.putAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (r *Registry) findAvailableLocked(requiredCapabilities []string) (*types.AgentInfo, error) {
	agents, err := r.allAgents()
	if err != nil {
		return nil, err
	}
	var best *types.AgentInfo
	for _, a := range agents {
		if a.Status != types.AgentOnline || a.CurrentTasks >= a.MaxConcurrentTasks {
			continue
		}
		capable := true
		for _, c := range requiredCapabilities {
			if !a.HasCapability(c) {
				capable = false
				break
			}
		}
		if !capable {
			continue
		}
		if best == nil ||
			a.CurrentTasks < best.CurrentTasks ||
			(a.CurrentTasks == best.CurrentTasks && a.AgentID < best.AgentID) {
			best = a
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no agent available", types.ErrUnavailable)
	}
	return best, nil
}

// RecordHeartbeat updates liveness fields. Returns false for unknown
// agents.
func (r *Registry) RecordHeartbeat(hb Heartbeat) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, err := r.getAgent(hb.AgentID)
	if err != nil {
		return false, nil
	}
	prev := agent.Status
	if hb.Status != "" {
		agent.Status = hb.Status
	}
	if hb.CurrentTasks >= 0 {
		agent.CurrentTasks = hb.CurrentTasks
	}
	agent.LastHeartbeat = time.Now()
	if err := r.putAgent(agent); err != nil {
		return false, err
	}
	if prev != agent.Status {
		metrics.AgentsByStatus.WithLabelValues(string(prev)).Dec()
		metrics.AgentsByStatus.WithLabelValues(string(agent.Status)).Inc()
	}
	return true, nil
}

// CheckHealth marks ONLINE/BUSY agents with stale heartbeats UNHEALTHY and
// returns the ids that flipped.
func (r *Registry) CheckHealth() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents, err := r.allAgents()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-r.heartbeatTimeout)
	var newlyUnhealthy []string
	for _, a := range agents {
		if a.Status != types.AgentOnline && a.Status != types.AgentBusy {
			continue
		}
		if a.LastHeartbeat.After(cutoff) {
			continue
		}
		prev := a.Status
		a.Status = types.AgentUnhealthy
		if err := r.putAgent(a); err != nil {
			return newlyUnhealthy, err
		}
		metrics.AgentsByStatus.WithLabelValues(string(prev)).Dec()
		metrics.AgentsByStatus.WithLabelValues(string(types.AgentUnhealthy)).Inc()
		newlyUnhealthy = append(newlyUnhealthy, a.AgentID)
		l := log.WithAgentID(a.AgentID)
		l.Warn().Msg("agent marked unhealthy")
	}
	return newlyUnhealthy, nil
}

// AdjustCurrentTasks adds delta to an agent's in-flight count, clamping
// at zero.
func (r *Registry) AdjustCurrentTasks(agentID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, err := r.getAgent(agentID)
	if err != nil {
		return err
	}
	agent.CurrentTasks += delta
	if agent.CurrentTasks < 0 {
		agent.CurrentTasks = 0
	}
	return r.putAgent(agent)
}
