// Command herd is the process entry point: it wires a Runtime, attaches
// whichever external adapters are configured via environment variables,
// registers every herd_* tool, and serves the tool-call transport until
// signalled to stop.
//
// One small flag.FlagSet per subcommand, signal.NotifyContext for
// graceful shutdown, and a reset path that clears durable state without
// touching the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fleetherd/herd/internal/adapters/agentdocker"
	"github.com/fleetherd/herd/internal/adapters/notify"
	"github.com/fleetherd/herd/internal/adapters/opstoreadapter"
	"github.com/fleetherd/herd/internal/adapters/repogit"
	"github.com/fleetherd/herd/internal/adapters/tickets"
	"github.com/fleetherd/herd/internal/chatbridge"
	"github.com/fleetherd/herd/internal/config"
	"github.com/fleetherd/herd/internal/handlers"
	"github.com/fleetherd/herd/internal/runtime"
	"github.com/fleetherd/herd/internal/session"
	"github.com/fleetherd/herd/internal/transport"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		serveCmd(nil)
		return
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(os.Args[2:])
	case "reset":
		resetCmd(os.Args[2:])
	case "version":
		fmt.Printf("herd %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`herd - fleet coordination runtime

Usage:
  herd <command> [options]

Commands:
  serve     Start the coordination runtime and tool-call transport
  reset     Delete all durable state (operational store, memory, bus mirror)
  version   Print version information
  help      Show this help message`)
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`Usage: herd serve [options]

Start the coordination runtime, attach configured adapters, and serve
the tool-call transport until interrupted.`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.FromEnv()
	runtime.Version = version

	rt, err := runtime.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "herd: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	attachAdapters(rt, cfg, log)

	handlers.RegisterAll(rt.Tools, rt)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.Sessions.RunIdleLoop(ctx)

	if cfg.TelegramBotToken != "" {
		bridge, err := chatbridge.NewTelegramBridge(cfg.TelegramBotToken, cfg.CoordinatorRole, rt.Sessions, rt.Roles, log)
		if err != nil {
			log.Warn("herd: telegram bridge unavailable", "error", err)
		} else {
			go bridge.Start(ctx)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := transport.New(rt, addr)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "herd: %v\n", err)
		os.Exit(1)
	}
}

// attachAdapters wires the five capability slots from whatever
// environment-provided credentials are present. A slot left unconfigured
// stays nil; tool handlers degrade to a structured NotConfigured error
// rather than failing the whole process.
func attachAdapters(rt *runtime.Runtime, cfg config.Config, log *slog.Logger) {
	// The .duckdb extension is cosmetic; the backing engine is
	// modernc.org/sqlite.
	rt.Adapters.Store = opstoreadapter.New(rt.OpStore, filepath.Join(cfg.ProjectPath, "data", "operational.duckdb"))

	if cfg.SlackBotToken != "" {
		rt.Adapters.Notify = notify.New(cfg.SlackBotToken)
	} else {
		log.Warn("herd: HERD_SLACK_BOT_TOKEN unset, notify adapter not configured")
	}

	if cfg.LinearAPIKey != "" {
		rt.Adapters.Tickets = tickets.New(cfg.LinearAPIKey)
	} else {
		log.Warn("herd: HERD_LINEAR_API_KEY unset, tickets adapter not configured")
	}

	if cfg.RepoDir != "" {
		rt.Adapters.Repo = repogit.New(cfg.RepoDir, cfg.GitHubAPIBase, cfg.GitHubToken)
	} else {
		log.Warn("herd: HERD_REPO_DIR unset, repo adapter not configured")
	}

	if mgr, err := agentdocker.NewManager(cfg.DockerImage); err != nil {
		log.Warn("herd: docker agent adapter unavailable", "error", err)
	} else {
		rt.Adapters.Agent = mgr
	}

	rt.Sessions = session.New(session.ExecLauncher{
		Bin:              firstNonEmpty(os.Getenv("HERD_AGENT_BIN"), "claude"),
		SystemPromptFlag: "--system-prompt",
		ResumeFlag:       "--resume",
	}, cfg.IdleTimeout, log)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Usage = func() {
		fmt.Println(`Usage: herd reset [options]

Delete the operational store, semantic memory, and bus mirror
under HERD_PROJECT_PATH/data. This does not affect external back-ends
(tracker, chat platform, code host).`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := config.FromEnv()
	dataDir := filepath.Join(cfg.ProjectPath, "data")

	fmt.Printf("This will delete all data under %s\n", dataDir)
	if !*yes {
		fmt.Print("Are you sure? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "herd: reset: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Reset complete.")
}
