// Package runtime wires the coordination components into one owning
// struct: the bus, checkin registry, three stores, adapter registry,
// session manager, and tool registrar are all constructed once here and
// passed by handle into every tool handler — no hidden globals.
package runtime

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fleetherd/herd"
	"github.com/fleetherd/herd/internal/adapters"
	busmirror "github.com/fleetherd/herd/internal/bus"
	"github.com/fleetherd/herd/internal/config"
	"github.com/fleetherd/herd/internal/graph"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/registrar"
	"github.com/fleetherd/herd/internal/roles"
	"github.com/fleetherd/herd/internal/semantic"
	"github.com/fleetherd/herd/internal/session"
)

// Runtime owns every process-wide piece of coordination state.
type Runtime struct {
	Config config.Config
	Log    *slog.Logger

	Bus      *herd.Bus
	Checkins *herd.CheckinRegistry

	OpStore  *opstore.Store
	Queries  *opstore.Queries
	Semantic *semantic.Store
	Graph    *graph.Graph

	Adapters *adapters.Registry
	Sessions *session.Manager
	Roles    *roles.Store

	Tools *registrar.Registrar

	opstorePath  string
	semanticPath string
}

// New constructs a Runtime from cfg: it opens the SQLite-backed
// operational store and semantic memory, and constructs the in-process
// graph, bus (with its JSON-file durable mirror), checkin registry, and
// tool registrar. Adapter implementations and the session launcher are
// NOT wired here — callers attach whichever of
// rt.Adapters.{Store,Tickets,Notify,Repo,Agent} they have credentials
// for; the rest stay nil and report unavailable.
func New(cfg config.Config, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}

	dataDir := filepath.Join(cfg.ProjectPath, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create data dir: %w", err)
	}

	// The .duckdb/.lance extensions are cosmetic; both stores are backed
	// by modernc.org/sqlite.
	opstorePath := filepath.Join(dataDir, "operational.duckdb")
	opStore, err := opstore.Open(opstorePath)
	if err != nil {
		return nil, fmt.Errorf("runtime: open operational store: %w", err)
	}

	semanticPath := filepath.Join(dataDir, "memory.lance")
	semStore, err := semantic.Open(semanticPath)
	if err != nil {
		opStore.Close()
		return nil, fmt.Errorf("runtime: open semantic memory: %w", err)
	}

	mirrorDir := filepath.Join(dataDir, "messages")
	mirror, err := busmirror.NewJSONMirror(mirrorDir)
	if err != nil {
		opStore.Close()
		semStore.Close()
		return nil, fmt.Errorf("runtime: open bus mirror: %w", err)
	}

	rt := &Runtime{
		Config:       cfg,
		Log:          log,
		Bus:          herd.NewBus(mirror, log),
		Checkins:     herd.NewCheckinRegistry(),
		OpStore:      opStore,
		Queries:      opstore.NewQueries(opStore),
		Semantic:     semStore,
		Graph:        graph.New(),
		Adapters:     &adapters.Registry{},
		Roles:        roles.New(filepath.Join(cfg.ProjectPath, "identity")),
		Tools:        registrar.New(),
		opstorePath:  opstorePath,
		semanticPath: semanticPath,
	}
	rt.Sessions = session.New(nil, cfg.IdleTimeout, log)

	if err := rt.Roles.AttachPopulation(); err != nil {
		log.Warn("runtime: population registry unavailable, skill listing disabled", "error", err)
	}

	if info, err := opStore.StorageInfo(opstorePath); err == nil {
		log.Info("runtime: operational store opened", "storage", info.String())
	}
	return rt, nil
}

// Close releases every owned resource.
func (rt *Runtime) Close() error {
	var errs []error
	if err := rt.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rt.OpStore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rt.Semantic.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("runtime: close errors: %v", errs)
	}
	return nil
}

// HealthStatus is the /health endpoint's payload shape.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Adapters map[string]string `json:"adapters"`
	Stores   map[string]string `json:"stores"`
}

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// Health reports the liveness of every adapter slot and store.
// It never fails: every check degrades to "unavailable" instead of
// raising, matching the Graph/Semantic "never raises" contract.
func (rt *Runtime) Health() HealthStatus {
	status := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "unavailable"
	}

	return HealthStatus{
		Status:  "ok",
		Version: Version,
		Adapters: map[string]string{
			"store":   status(rt.Adapters.Store != nil),
			"notify":  status(rt.Adapters.Notify != nil),
			"tickets": status(rt.Adapters.Tickets != nil),
			"repo":    status(rt.Adapters.Repo != nil),
			"agent":   status(rt.Adapters.Agent != nil),
		},
		Stores: map[string]string{
			"operational": status(rt.OpStore != nil),
			"vector":      status(rt.Semantic != nil),
			"graph":       status(rt.Graph.IsAvailable()),
		},
	}
}
