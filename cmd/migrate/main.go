// Package main runs schema migrations and wallet maintenance commands.
//
// Usage:
//
//	migrate up
//	migrate down [N]
//	migrate version
//	migrate audit <account-id>
//	migrate token <account-id>
//	migrate events <type> [limit]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/auth"
	"arcade-backend/internal/config"
	"arcade-backend/internal/pkg/db"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/repository"
	"arcade-backend/internal/service"
)

const defaultTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configDir = flag.String("config", "config", "Directory containing config.yaml")
		timeout   = flag.Duration("timeout", defaultTimeout, "Maximum time for the command")
		quiet     = flag.Bool("quiet", false, "Suppress informational logs")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *quiet {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	args := flag.Args()
	if len(args) == 0 {
		return errors.New("command required (up|down|version|audit|token|events)")
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}

	if args[0] == "token" {
		if len(args) < 2 {
			return errors.New("token requires an account id")
		}
		token, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Issue(args[1])
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator := db.NewMigrator(pool.Pool)

	switch args[0] {
	case "up":
		return migrator.Up(ctx)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid down steps %q: %w", args[1], err)
			}
			steps = n
		}
		return migrator.Rollback(ctx, steps)
	case "version":
		version, dirty, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	case "audit":
		if len(args) < 2 {
			return errors.New("audit requires an account id")
		}
		return audit(ctx, pool, cfg, args[1])
	case "events":
		if len(args) < 2 {
			return errors.New("events requires an event type")
		}
		limit := 20
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[2], err)
			}
			limit = n
		}
		return recentEvents(ctx, pool, cfg, args[1], limit)
	default:
		return fmt.Errorf("unknown command %q (expected up, down, version, audit, token or events)", args[0])
	}
}

// audit reads both wallet sources for one account and prints the merged view
// with any divergent fields.
func audit(ctx context.Context, pool *db.Pool, cfg *config.Config, accountID string) error {
	policy := retry.FromConfig(cfg.Retry)
	reconciler := service.NewStatsReconciler(
		service.NewCanonicalSource(repository.NewStatsRepository(pool.Pool), policy),
		service.NewLegacySource(repository.NewLegacyRepository(pool.Pool), policy),
	)
	snap, err := reconciler.Audit(ctx, accountID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// recentEvents prints the newest analytics events of one type.
func recentEvents(ctx context.Context, pool *db.Pool, cfg *config.Config, eventType string, limit int) error {
	analytics := service.NewAnalyticsService(repository.NewEventRepository(pool.Pool), nil, retry.FromConfig(cfg.Retry))
	events, err := analytics.Recent(ctx, eventType, limit)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
