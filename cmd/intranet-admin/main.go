package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/alumniverein/intranet-api/config"
	"github.com/alumniverein/intranet-api/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run migrations and seed development accounts (dev mode only)",
			run:         runDBSeed,
		},
		"user-create": {
			name:        "user-create",
			description: "Create a member account with a password",
			run:         runUserCreate,
		},
		"user-unlock": {
			name:        "user-unlock",
			description: "Clear the failed-login counter and lockout for an account",
			run:         runUserUnlock,
		},
		"user-set-role": {
			name:        "user-set-role",
			description: "Assign a new role to an account",
			run:         runUserSetRole,
		},
		"user-set-password": {
			name:        "user-set-password",
			description: "Replace an account password and clear any lockout",
			run:         runUserSetPassword,
		},
		"user-totp": {
			name:        "user-totp",
			description: "Enroll or disable the TOTP second factor for an account",
			run:         runUserTOTP,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stderr, "usage: intranet-admin <command> [flags]\n\ncommands:\n"); err != nil {
		return err
	}

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range names {
		if _, err := fmt.Fprintf(tw, "  %s\t%s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
