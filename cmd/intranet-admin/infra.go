package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumniverein/intranet-api/internal/bootstrap"
	"github.com/alumniverein/intranet-api/internal/data"
	"github.com/alumniverein/intranet-api/internal/devseed"
)

const defaultMigrationTimeout = 5 * time.Minute

// connectDB opens the database pool for a command run.
func connectDB(ctx *commandContext) (*pgxpool.Pool, error) {
	pool, err := bootstrap.ConnectDB(ctx.Ctx, bootstrap.DatabaseConfig{
		DBConfig: ctx.Config.Postgres,
		Logger:   ctx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return pool, nil
}

// userRepo builds a repository over the pool with the configured lockout policy.
func userRepo(ctx *commandContext, pool *pgxpool.Pool) *data.UserRepo {
	return data.NewUserRepo(pool, data.LockoutPolicy{
		Threshold: ctx.Config.Auth.Lockout.Threshold,
		Schedule:  ctx.Config.Auth.Lockout.ScheduleSeconds(),
	})
}

func runDBSeed(ctx *commandContext, _ []string) error {
	if !ctx.Config.IsDev {
		return errors.New("db-seed refuses to run outside development mode")
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrateCtx, cancel := context.WithTimeout(ctx.Ctx, defaultMigrationTimeout)
	defer cancel()
	if err := bootstrap.RunMigrations(migrateCtx, pool, ctx.Logger); err != nil {
		return err
	}

	created, err := devseed.Seed(ctx.Ctx, userRepo(ctx, pool), ctx.Logger)
	if err != nil {
		return err
	}
	ctx.Logger.InfoContext(ctx.Ctx, "development seed complete", "created", created)
	return nil
}

func runMigrations(ctx *commandContext, _ []string) error {
	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrateCtx, cancel := context.WithTimeout(ctx.Ctx, defaultMigrationTimeout)
	defer cancel()

	return bootstrap.RunMigrations(migrateCtx, pool, ctx.Logger)
}
