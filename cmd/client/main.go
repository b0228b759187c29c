// accessgate-client drives the client session cache against a server:
// sign in, inspect the session and ask where the user should be routed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/dtroode/accessgate/internal/client/sessioncache"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/logger"
)

const passwordEnv = "ACCESSGATE_PASSWORD"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var (
		serverURL string
		dbPath    string
		email     string
		password  string
		timeout   time.Duration
		freshness time.Duration
		grace     time.Duration
		logLevel  int
	)

	flagSet := pflag.NewFlagSet("accessgate-client", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	flagSet.StringVar(&dbPath, "db", defaultDBPath(), "session database file")
	flagSet.StringVarP(&email, "email", "e", "", "account email")
	flagSet.StringVarP(&password, "password", "p", "", "account password (or $"+passwordEnv+")")
	flagSet.DurationVar(&timeout, "timeout", sessioncache.DefaultRefreshTimeout, "request timeout")
	flagSet.DurationVar(&freshness, "freshness", sessioncache.DefaultFreshness, "entitlement snapshot freshness window")
	flagSet.DurationVar(&grace, "grace", sessioncache.DefaultGrace, "how long a stale snapshot is trusted when refresh fails")
	flagSet.IntVar(&logLevel, "log-level", 4, "slog level for diagnostics on stderr")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}
	if password == "" {
		password = os.Getenv(passwordEnv)
	}

	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	// One file holds both the credentials and the entitlement snapshot so
	// freshness and grace windows span separate invocations.
	store, err := sessioncache.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := sessioncache.NewClient(serverURL, timeout)
	cache := sessioncache.NewCache(
		store,
		store,
		client,
		clock.Real(),
		sessioncache.Options{Freshness: freshness, Grace: grace, RefreshTimeout: timeout},
		logger.NewWithWriter(os.Stderr, logLevel),
	)

	switch args[0] {
	case "register", "login":
		if email == "" || password == "" {
			return errors.New("--email and --password are required")
		}
		call := client.Login
		if args[0] == "register" {
			call = client.Register
		}
		payload, err := call(ctx, email, password)
		if err != nil {
			return err
		}
		if err := cache.SignIn(ctx, payload); err != nil {
			return err
		}
		payload.AuthToken = ""
		return printJSON(payload)

	case "callback":
		if len(args) < 2 {
			return errors.New("usage: callback <redirect-url>")
		}
		redirect, err := url.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid redirect url: %w", err)
		}
		isNew, err := cache.SignInFromCallback(ctx, redirect.Query())
		if err != nil {
			return err
		}
		return printJSON(map[string]bool{"is_new_user": isNew})

	case "whoami":
		payload, err := cache.WhoAmI(ctx)
		if err != nil {
			return err
		}
		return printJSON(payload)

	case "route":
		route, err := cache.NextRoute(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"route": string(route), "state": string(route.State())})

	case "logout":
		return cache.SignOut(ctx)

	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "accessgate-session.db"
	}
	return filepath.Join(dir, "accessgate", "session.db")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `accessgate-client manages a local session against an accessgate server.

Usage:
  accessgate-client [flags] <command>

Commands:
  register           create an account and sign in
  login              sign in with email and password
  callback <url>     sign in from an OAuth redirect URL
  whoami             show the current session from the server
  route              print where the user should be sent next
  logout             forget the local session

Flags:
%s`, flagSet.FlagUsages())
}
