package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ops"
	"github.com/hpungsan/heritage/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// svc may be nil when only help or version output is needed.
func newCLIApp(svc *ops.Service) *cli.App {
	app := &cli.App{
		Name:    "heritage",
		Usage:   "Time-locked capsule ledger",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "caller", Aliases: []string{"c"}, EnvVars: []string{"HERITAGE_CALLER"}, Usage: "Caller principal (default: config caller, else anonymous)"},
		},
		Commands: []*cli.Command{
			whoamiCmd(svc),
			createCmd(svc),
			purchaseCmd(svc),
			getCmd(svc),
			publicCmd(svc),
			tokenCmd(svc),
			transferTokenCmd(svc),
			tokensCmd(svc),
			purchasesCmd(svc),
			priceCmd(svc),
			ledgerCmd(svc),
			balanceCmd(svc),
			snapshotCmd(svc),
			restoreCmd(svc),
			serveCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// capsuleFlags are shared by create and purchase.
func capsuleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "contents", Usage: `JSON array of {"key","value"} entries (default: read from stdin)`},
		&cli.StringFlag{Name: "unlock-ms", Usage: "Unlock time in milliseconds since epoch"},
		&cli.DurationFlag{Name: "unlock-in", Usage: "Unlock after this duration from now (e.g. 720h)"},
		&cli.StringSliceFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "Recipient principal (repeatable)"},
		&cli.BoolFlag{Name: "public", Usage: "List in the public archive once unlocked"},
	}
}

// createCmd creates the create command.
func createCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a free capsule (contents from --contents or stdin)",
		Flags: capsuleFlags(),
		Action: func(c *cli.Context) error {
			input, err := capsuleInput(c, svc)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.CreateCapsule(c.Context, svc, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// purchaseCmd creates the purchase command.
func purchaseCmd(svc *ops.Service) *cli.Command {
	flags := append(capsuleFlags(),
		&cli.StringFlag{Name: "payment-target", Usage: "Account receiving the payment (default: treasury)"},
		&cli.StringFlag{Name: "ledger-ref", Usage: "Ledger the payment goes through"},
	)
	return &cli.Command{
		Name:  "purchase",
		Usage: "Pay the capsule price and create a capsule with a heritage token",
		Flags: flags,
		Action: func(c *cli.Context) error {
			input, err := capsuleInput(c, svc)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.PurchaseCapsule(c.Context, svc, ops.PurchaseInput{
				CreateInput:   input,
				PaymentTarget: c.String("payment-target"),
				LedgerRef:     c.String("ledger-ref"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// getCmd creates the get command.
func getCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a capsule as the caller sees it",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			caller, err := callerOf(c, svc)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.GetCapsule(c.Context, svc, caller, id)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// publicCmd creates the public command.
func publicCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "public",
		Usage: "List public capsules that have unlocked",
		Action: func(c *cli.Context) error {
			output, err := ops.GetPublicCapsules(c.Context, svc)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// tokenCmd creates the token command.
func tokenCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Show a heritage token (null if it does not exist)",
		ArgsUsage: "<token-id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.GetHeritageToken(c.Context, svc, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// transferTokenCmd creates the transfer-token command.
func transferTokenCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "transfer-token",
		Usage:     "Transfer a heritage token owned by the caller",
		ArgsUsage: "<token-id> <new-owner>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("new owner is required"))
			}
			caller, err := callerOf(c, svc)
			if err != nil {
				return outputError(err)
			}

			ok, err := ops.TransferHeritageToken(c.Context, svc, caller, id, c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]bool{"transferred": ok})
		},
	}
}

// tokensCmd creates the tokens command.
func tokensCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "List heritage tokens owned by the caller",
		Action: func(c *cli.Context) error {
			caller, err := callerOf(c, svc)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.GetMyTokens(c.Context, svc, caller)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// purchasesCmd creates the purchases command.
func purchasesCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "purchases",
		Usage: "List purchases made by a buyer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "buyer", Aliases: []string{"b"}, Usage: "Buyer principal (default: caller)"},
		},
		Action: func(c *cli.Context) error {
			buyer, err := principalOrCaller(c, svc, "buyer")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.GetUserPurchases(c.Context, svc, buyer)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// priceCmd creates the price command.
func priceCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Show the capsule price in ledger base units",
		Action: func(c *cli.Context) error {
			return outputJSON(c, map[string]uint64{"price": ops.GetCapsulePrice(svc)})
		},
	}
}

// ledgerCmd creates the ledger command.
func ledgerCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Show ledger metadata and the capsule price",
		Action: func(c *cli.Context) error {
			output, err := ops.LedgerInfo(c.Context, svc)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// balanceCmd creates the balance command.
func balanceCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the ledger balance of an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Usage: "Account principal (default: caller)"},
		},
		Action: func(c *cli.Context) error {
			account, err := principalOrCaller(c, svc, "account")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Balance(c.Context, svc, account)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// snapshotCmd creates the snapshot command.
func snapshotCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Write every capsule, token and purchase to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: <base>/snapshots/)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Snapshot(c.Context, svc, ops.SnapshotInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Load a snapshot file into an empty or disjoint ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Snapshot file path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Restore(c.Context, svc, ops.RestoreInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and the public archive over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(svc, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}
			if svc.Config.JWTSecret == "" {
				svc.Log.Warn("jwt_secret is not set; every API request runs as the anonymous caller")
			}
			return web.Run(srv, svc.Log)
		},
	}
}

// whoamiCmd creates the whoami command.
func whoamiCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Print the caller principal",
		Action: func(c *cli.Context) error {
			caller, err := callerOf(c, svc)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]string{"principal": ops.WhoAmI(caller)})
		},
	}
}

// Helper functions

// callerOf resolves the caller from --caller, falling back to the configured caller.
func callerOf(c *cli.Context, svc *ops.Service) (identity.Identity, error) {
	text := c.String("caller")
	if text == "" && svc != nil {
		text = svc.Config.Caller
	}
	return ops.ParseCaller(text)
}

// principalOrCaller parses the named flag as a principal, defaulting to the caller.
func principalOrCaller(c *cli.Context, svc *ops.Service, flag string) (identity.Identity, error) {
	text := c.String(flag)
	if text == "" {
		return callerOf(c, svc)
	}
	id, err := identity.Parse(text)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", flag, err))
	}
	return id, nil
}

// capsuleInput builds CreateInput from the shared capsule flags.
func capsuleInput(c *cli.Context, svc *ops.Service) (ops.CreateInput, error) {
	caller, err := callerOf(c, svc)
	if err != nil {
		return ops.CreateInput{}, err
	}

	contents := c.String("contents")
	if contents == "" {
		if !stdinHasData() {
			return ops.CreateInput{}, errors.NewInvalidRequest("contents must be given with --contents or piped via stdin")
		}
		contents, err = readStdin()
		if err != nil {
			return ops.CreateInput{}, errors.NewInternal(err)
		}
	}

	unlockMs := c.String("unlock-ms")
	switch {
	case unlockMs != "" && c.IsSet("unlock-in"):
		return ops.CreateInput{}, errors.NewInvalidRequest("use either --unlock-ms or --unlock-in, not both")
	case c.IsSet("unlock-in"):
		unlockMs = strconv.FormatInt(now(svc).Add(c.Duration("unlock-in")).UnixMilli(), 10)
	case unlockMs == "":
		return ops.CreateInput{}, errors.NewInvalidRequest("--unlock-ms or --unlock-in is required")
	}

	return ops.CreateInput{
		Caller:       caller,
		Contents:     contents,
		UnlockTimeMs: unlockMs,
		Recipients:   c.StringSlice("recipient"),
		IsPublic:     c.Bool("public"),
	}, nil
}

func now(svc *ops.Service) time.Time {
	if svc != nil && svc.Now != nil {
		return svc.Now()
	}
	return time.Now()
}

// argID parses the i-th positional argument as an id.
func argID(c *cli.Context, i int) (uint64, error) {
	if c.NArg() <= i {
		return 0, errors.NewInvalidRequest("id is required")
	}
	id, err := strconv.ParseUint(c.Args().Get(i), 10, 64)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid id %q", c.Args().Get(i)))
	}
	return id, nil
}

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if stderrors.Is(err, context.Canceled) {
		err = errors.NewCancelled("command")
	}
	var hErr *errors.HeritageError
	if stderrors.As(err, &hErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", hErr.Code, hErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
