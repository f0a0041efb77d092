// Package agentdocker implements the adapters.Agent port by sandboxing
// each spawned agent instance in its own Docker container. NewManager
// never hard-fails: any Docker problem leaves available=false and every
// method returns a clear error instead, so the rest of the runtime
// keeps serving. Containers carry herd labels so they can be found and
// reaped later.
package agentdocker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/fleetherd/herd/internal/adapters"
)

const (
	labelInstance = "herd.instance"
	labelManaged  = "herd.managed-by"
	managedValue  = "herd"
)

// SpawnContext is the full identity/briefing bundle herd_spawn must
// assemble before an agent instance is allowed to start — role
// definition, craft standards, project guidelines, assignment,
// environment, and skill list. A spawn with any of these empty is a
// bug, not a degraded-but-valid state.
type SpawnContext struct {
	RoleDefinition    string
	CraftStandards    string
	ProjectGuidelines string
	Assignment        string
	Environment       map[string]string
	Skills            []string
}

// Validate reports the first missing field, or nil if the context is
// complete enough to spawn from.
func (c SpawnContext) Validate() error {
	switch {
	case strings.TrimSpace(c.RoleDefinition) == "":
		return fmt.Errorf("agentdocker: spawn context missing role definition")
	case strings.TrimSpace(c.CraftStandards) == "":
		return fmt.Errorf("agentdocker: spawn context missing craft standards")
	case strings.TrimSpace(c.ProjectGuidelines) == "":
		return fmt.Errorf("agentdocker: spawn context missing project guidelines")
	case strings.TrimSpace(c.Assignment) == "":
		return fmt.Errorf("agentdocker: spawn context missing assignment")
	case len(c.Environment) == 0:
		return fmt.Errorf("agentdocker: spawn context missing environment")
	case len(c.Skills) == 0:
		return fmt.Errorf("agentdocker: spawn context missing skill list")
	}
	return nil
}

// Manager sandboxes agent instances as Docker containers. Constructed
// with NewManager, which never hard-fails: if Docker can't be reached,
// Manager.available is false and every method returns a clear error
// instead of panicking, so the rest of the runtime keeps serving.
type Manager struct {
	client    *client.Client
	image     string
	mu        sync.Mutex
	available bool

	contexts map[string]SpawnContext // instanceID -> context, recorded by SpawnWithContext
}

// NewManager attempts to connect to the local Docker daemon. On any
// failure it returns a Manager with available=false rather than an
// error — callers check IsAvailable() and degrade gracefully.
func NewManager(image string) (*Manager, error) {
	m := &Manager{image: image, contexts: make(map[string]SpawnContext)}
	if image == "" {
		m.image = "herd/agent-sandbox:latest"
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return m, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return m, nil
	}
	m.client = cli
	m.available = true
	return m, nil
}

// IsAvailable reports whether the Docker daemon is reachable.
func (m *Manager) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// SpawnWithContext validates spawnCtx before touching Docker at all, per
// SpawnContext.Validate.
func (m *Manager) SpawnWithContext(ctx context.Context, role, ticketID string, model string, spawnCtx SpawnContext) (adapters.SpawnResult, error) {
	if err := spawnCtx.Validate(); err != nil {
		return adapters.SpawnResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: docker daemon unavailable")
	}

	instanceID := newInstanceID()
	env := make([]string, 0, len(spawnCtx.Environment))
	for k, v := range spawnCtx.Environment {
		env = append(env, k+"="+v)
	}

	resp, err := m.client.ContainerCreate(ctx, &container.Config{
		Image: m.image,
		Env:   env,
		Labels: map[string]string{
			labelInstance: instanceID,
			labelManaged:  managedValue,
		},
	}, nil, nil, nil, "herd-"+instanceID)
	if err != nil {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: create container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: start container: %w", err)
	}

	m.contexts[instanceID] = spawnCtx
	return adapters.SpawnResult{
		InstanceID: instanceID,
		Agent:      role,
		TicketID:   ticketID,
		Model:      model,
		SpawnedAt:  time.Now().UTC(),
	}, nil
}

// Spawn satisfies adapters.Agent: it starts a container with contextStr
// passed as HERD_CONTEXT and performs no SpawnContext validation.
func (m *Manager) Spawn(ctx context.Context, role, ticketID, contextStr string, model string) (adapters.SpawnResult, error) {
	instanceID := newInstanceID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: docker daemon unavailable")
	}
	resp, err := m.client.ContainerCreate(ctx, &container.Config{
		Image: m.image,
		Env:   []string{"HERD_CONTEXT=" + contextStr},
		Labels: map[string]string{
			labelInstance: instanceID,
			labelManaged:  managedValue,
		},
	}, nil, nil, nil, "herd-"+instanceID)
	if err != nil {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: create container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return adapters.SpawnResult{}, fmt.Errorf("agentdocker: start container: %w", err)
	}
	return adapters.SpawnResult{InstanceID: instanceID, Agent: role, TicketID: ticketID, Model: model, SpawnedAt: time.Now().UTC()}, nil
}

func (m *Manager) GetStatus(ctx context.Context, instanceID string) (adapters.AgentStatus, error) {
	m.mu.Lock()
	available := m.available
	m.mu.Unlock()
	if !available {
		return adapters.AgentStatus{}, fmt.Errorf("agentdocker: docker daemon unavailable")
	}

	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelInstance+"="+instanceID)),
	})
	if err != nil {
		return adapters.AgentStatus{}, fmt.Errorf("agentdocker: list containers: %w", err)
	}
	if len(containers) == 0 {
		return adapters.AgentStatus{}, fmt.Errorf("agentdocker: no container for instance %s", instanceID)
	}
	return adapters.AgentStatus{InstanceID: instanceID, State: containers[0].State}, nil
}

func (m *Manager) Stop(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	available := m.available
	m.mu.Unlock()
	if !available {
		return fmt.Errorf("agentdocker: docker daemon unavailable")
	}

	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelInstance+"="+instanceID)),
	})
	if err != nil {
		return fmt.Errorf("agentdocker: list containers: %w", err)
	}
	for _, c := range containers {
		timeout := 10
		if err := m.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			return fmt.Errorf("agentdocker: stop container %s: %w", c.ID, err)
		}
	}
	return nil
}

var instanceCounter uint64
var instanceMu sync.Mutex

func newInstanceID() string {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instanceCounter++
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceCounter)
}

var _ adapters.Agent = (*Manager)(nil)
