package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/config"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
	"github.com/hpungsan/heritage/internal/logger"
	"github.com/hpungsan/heritage/internal/mcp"
	"github.com/hpungsan/heritage/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"whoami": true, "create": true, "purchase": true, "get": true, "public": true,
	"token": true, "transfer-token": true, "tokens": true, "purchases": true,
	"price": true, "ledger": true, "balance": true,
	"snapshot": true, "restore": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// Global flags and --help/--version → CLI
	if len(arg) > 1 && arg[0] == '-' {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _  _           _ _
  | || |___ _ _(_) |_ __ _ __ _ ___
  | __ / -_) '_| |  _/ _' / _' / -_)
  |_||_\___|_| |_|\__\__,_\__, \___|
                          |___/

  Time-locked capsule ledger

  Usage: heritage <command> [options]
         heritage --help

  MCP server mode requires piped input.`)
}

// newLedger builds the ledger client selected by cfg.LedgerKind.
func newLedger(cfg *config.Config, log *zap.Logger) (ledger.Client, error) {
	switch cfg.LedgerKind {
	case "", config.LedgerMemory:
		balances := make(map[identity.Identity]uint64, len(cfg.MemoryLedgerBalances))
		for text, amount := range cfg.MemoryLedgerBalances {
			account, err := identity.Parse(text)
			if err != nil {
				return nil, fmt.Errorf("memory_ledger_balances: %q: %w", text, err)
			}
			balances[account] = amount
		}
		return ledger.NewMemory(ledger.MemoryOptions{Balances: balances}), nil
	case config.LedgerHTTP:
		if cfg.LedgerURL == "" {
			return nil, fmt.Errorf("ledger_url is required when ledger_kind is %q", config.LedgerHTTP)
		}
		return ledger.NewHTTPClient(cfg.LedgerURL, ledger.HTTPConfig{
			Timeout: time.Duration(cfg.LedgerTimeoutMS) * time.Millisecond,
			Logger:  log,
		})
	default:
		return nil, fmt.Errorf("unknown ledger_kind %q", cfg.LedgerKind)
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".heritage")

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogDebug)
	defer func() { _ = log.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	client, err := newLedger(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to configure ledger: %v\n", err)
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("ignoring unknown disabled_tools", zap.Strings("tools", unknown))
	}

	svc := ops.NewService(database, client, cfg, log)

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(svc)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'heritage --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(svc, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
