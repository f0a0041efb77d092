// Package session implements the chat-triggered session pool: a map
// from chat-platform thread id to a long-lived subprocess, with idle
// eviction and a per-thread pending-set that guards concurrent session
// creation for the same thread. The coordinator session is itself an
// external agent process spawned and resumed via os/exec, not a library
// call.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Launcher starts and resumes the coordinator subprocess. A real
// implementation shells out to the agent CLI; tests substitute a fake.
type Launcher interface {
	// Start spawns a fresh subprocess seeded with systemPrompt and sends
	// the first user message, returning the subprocess-reported session
	// id and its first reply.
	Start(ctx context.Context, systemPrompt, firstMessage string) (sessionID, reply string, err error)
	// Resume invokes the subprocess again with a resume flag referencing
	// sessionID, feeding message and capturing the reply.
	Resume(ctx context.Context, sessionID, message string) (reply string, err error)
}

// ExecLauncher is the real Launcher: one os/exec invocation per call
// rather than a held long-lived process handle — the agent CLI itself
// manages continuity via its resume flag and on-disk session state.
type ExecLauncher struct {
	// Bin is the agent CLI binary to invoke.
	Bin string
	// SystemPromptFlag / ResumeFlag name the CLI flags used to pass the
	// system prompt and the resume session id, respectively.
	SystemPromptFlag string
	ResumeFlag       string
}

func (l ExecLauncher) Start(ctx context.Context, systemPrompt, firstMessage string) (string, string, error) {
	cmd := exec.CommandContext(ctx, l.Bin, l.SystemPromptFlag, systemPrompt, firstMessage)
	out, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("session: start subprocess: %w", err)
	}
	reply := string(out)
	return newSessionID(), reply, nil
}

func (l ExecLauncher) Resume(ctx context.Context, sessionID, message string) (string, error) {
	cmd := exec.CommandContext(ctx, l.Bin, l.ResumeFlag, sessionID, message)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("session: resume subprocess: %w", err)
	}
	return string(out), nil
}

// shutdownPhrases are recognized verbatim (case-sensitive, plain
// string equality) as a request to end the session rather than route to
// the subprocess.
var shutdownPhrases = map[string]bool{
	"go to sleep": true,
	"stand down":  true,
	"standdown":   true,
	"terminate":   true,
	"shutdown":    true,
}

// IdleTimeout is the default idle window before a session is evicted.
const IdleTimeout = 180 * time.Second

// idleSweepInterval is how often the eviction loop checks for idle
// sessions.
const idleSweepInterval = 30 * time.Second

// gracefulWait is how long terminateGraceful waits for the subprocess's own
// shutdown path before force-killing. A variable so tests don't sit
// through the full production wait.
var gracefulWait = 5 * time.Second

type entry struct {
	sessionID    string
	systemPrompt string
	lastActivity time.Time
	cancel       context.CancelFunc
}

// Manager owns the thread → subprocess map.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	pending  map[string]bool

	launcher    Launcher
	idleTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// New constructs a Manager. idleTimeout <= 0 uses IdleTimeout.
func New(launcher Launcher, idleTimeout time.Duration, log *slog.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = IdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*entry),
		pending:     make(map[string]bool),
		launcher:    launcher,
		idleTimeout: idleTimeout,
		log:         log,
		now:         time.Now,
	}
}

// SendMessage routes one chat message: shutdown phrases close the
// session, a live session gets a resume, a pending creation is waited
// out, and anything else starts a fresh subprocess.
func (m *Manager) SendMessage(ctx context.Context, threadID, text, userName, systemPrompt string) (string, error) {
	if shutdownPhrases[text] {
		m.closeSession(threadID)
		return "Acknowledged — standing down.", nil
	}

	m.mu.Lock()
	if e, ok := m.sessions[threadID]; ok {
		e.lastActivity = m.now()
		sessionID := e.sessionID
		m.mu.Unlock()
		return m.launcher.Resume(ctx, sessionID, text)
	}
	if m.pending[threadID] {
		m.mu.Unlock()
		return m.waitForPendingThenResume(ctx, threadID, text)
	}
	m.pending[threadID] = true
	m.mu.Unlock()

	sessionID, reply, err := m.launcher.Start(ctx, systemPrompt, text)

	m.mu.Lock()
	delete(m.pending, threadID)
	if err == nil {
		m.sessions[threadID] = &entry{
			sessionID:    sessionID,
			systemPrompt: systemPrompt,
			lastActivity: m.now(),
		}
	}
	m.mu.Unlock()

	return reply, err
}

// waitForPendingThenResume polls until the in-flight creation for
// threadID clears, then sends as a follow-up against the session it
// created.
func (m *Manager) waitForPendingThenResume(ctx context.Context, threadID, text string) (string, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			e, ok := m.sessions[threadID]
			pending := m.pending[threadID]
			m.mu.Unlock()
			if ok {
				return m.launcher.Resume(ctx, e.sessionID, text)
			}
			if !pending {
				// The in-flight creation failed without leaving a session;
				// fall back to starting a fresh one.
				return m.SendMessage(ctx, threadID, text, "", "")
			}
		}
	}
}

func (m *Manager) closeSession(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[threadID]; ok {
		if e.cancel != nil {
			e.cancel()
		}
		delete(m.sessions, threadID)
	}
}

// RunIdleLoop evicts sessions idle longer than idleTimeout every
// idleSweepInterval, until ctx is cancelled.
func (m *Manager) RunIdleLoop(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	now := m.now()
	m.mu.Lock()
	var idle []string
	for threadID, e := range m.sessions {
		if now.Sub(e.lastActivity) > m.idleTimeout {
			idle = append(idle, threadID)
		}
	}
	m.mu.Unlock()

	for _, threadID := range idle {
		m.log.Info("session: evicting idle session", "thread_id", threadID)
		m.terminateGraceful(threadID)
		m.closeSession(threadID)
	}
}

// terminateGraceful gives an idle session gracefulWait to wind down before
// the caller force-removes it from the map. The exec-per-call Launcher
// has no persistent process to signal, so this is a bookkeeping wait —
// a Launcher backed by a held subprocess handle would send SIGTERM here.
func (m *Manager) terminateGraceful(threadID string) {
	timer := time.NewTimer(gracefulWait)
	defer timer.Stop()
	<-timer.C
}

// ActiveThreads returns the thread ids with a live session, for
// diagnostics.
func (m *Manager) ActiveThreads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for t := range m.sessions {
		out = append(out, t)
	}
	return out
}

var sessionIDCounter uint64
var sessionIDMu sync.Mutex

func newSessionID() string {
	sessionIDMu.Lock()
	defer sessionIDMu.Unlock()
	sessionIDCounter++
	return fmt.Sprintf("sess-%d-%d", time.Now().UnixNano(), sessionIDCounter)
}
