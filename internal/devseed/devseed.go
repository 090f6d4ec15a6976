// Package devseed populates a development database with one account per
// role so every permission level can be exercised locally. It must never
// run against production data; callers gate it behind dev mode.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// DefaultPassword is the password assigned to every seeded account.
const DefaultPassword = "password"

type seedUser struct {
	email     string
	firstName string
	lastName  string
	role      auth.Role
}

var seedUsers = []seedUser{
	{"candidate@example.com", "Carla", "Candidate", auth.RoleCandidate},
	{"member@example.com", "Mia", "Member", auth.RoleMember},
	{"alumni@example.com", "Alex", "Alumni", auth.RoleAlumni},
	{"honorary@example.com", "Hank", "Honorary", auth.RoleHonoraryMember},
	{"auditor@example.com", "Ada", "Auditor", auth.RoleAlumniAuditor},
	{"head@example.com", "Hedda", "Head", auth.RoleHead},
	{"manager@example.com", "Max", "Manager", auth.RoleManager},
	{"board.internal@example.com", "Bea", "Internal", auth.RoleBoardInternal},
	{"board.external@example.com", "Ben", "External", auth.RoleBoardExternal},
	{"board.finance@example.com", "Fia", "Finance", auth.RoleBoardFinance},
}

// Seed inserts the development accounts, skipping any that already exist.
// Returns the number of accounts created.
func Seed(ctx context.Context, users ports.UserRepository, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return 0, fmt.Errorf("hash seed password: %w", err)
	}

	created := 0
	for _, su := range seedUsers {
		if _, err := users.FindByEmail(ctx, su.email); err == nil {
			continue
		} else if !errors.Is(err, ports.ErrUserNotFound) {
			return created, fmt.Errorf("lookup %s: %w", su.email, err)
		}

		_, err := users.Insert(ctx, &model.User{
			Email:        su.email,
			PasswordHash: string(hash),
			FirstName:    su.firstName,
			LastName:     su.lastName,
			Role:         su.role,
			NotifyNews:   true,
			NotifyEvents: true,
		})
		if err != nil {
			// Concurrent seeding can race the existence check.
			if apperrors.GetCode(err) == apperrors.ErrCodeConflict {
				continue
			}
			return created, fmt.Errorf("seed %s: %w", su.email, err)
		}
		created++
		logger.InfoContext(ctx, "seeded user", "email", su.email, "role", string(su.role))
	}
	return created, nil
}
