package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
)

func runUserCreate(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("user-create", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "initial password (required)")
	firstName := fs.String("first", "", "first name")
	lastName := fs.String("last", "", "last name")
	role := fs.String("role", string(auth.RoleCandidate), "initial role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("user-create requires -email and -password")
	}
	if !auth.Known(auth.Role(*role)) {
		return fmt.Errorf("unknown role %q", *role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	id, err := userRepo(ctx, pool).Insert(ctx.Ctx, &model.User{
		Email:        *email,
		PasswordHash: string(hash),
		FirstName:    *firstName,
		LastName:     *lastName,
		Role:         auth.Role(*role),
		NotifyNews:   true,
		NotifyEvents: true,
	})
	if err != nil {
		return err
	}

	ctx.Logger.InfoContext(ctx.Ctx, "user created", "id", id, "email", model.NormalizeEmail(*email), "role", *role)
	return nil
}

func runUserUnlock(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("user-unlock", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("user-unlock requires -email")
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := userRepo(ctx, pool)
	user, err := repo.FindByEmail(ctx.Ctx, *email)
	if err != nil {
		return err
	}
	if err := repo.ResetLockout(ctx.Ctx, user.ID); err != nil {
		return err
	}

	ctx.Logger.InfoContext(ctx.Ctx, "lockout cleared", "id", user.ID, "email", user.Email)
	return nil
}

func runUserSetRole(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("user-set-role", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	role := fs.String("role", "", "new role (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *role == "" {
		return errors.New("user-set-role requires -email and -role")
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := userRepo(ctx, pool)
	user, err := repo.FindByEmail(ctx.Ctx, *email)
	if err != nil {
		return err
	}
	if err := repo.SetRole(ctx.Ctx, user.ID, auth.Role(*role)); err != nil {
		return err
	}

	ctx.Logger.InfoContext(ctx.Ctx, "role updated", "id", user.ID, "email", user.Email, "role", *role)
	return nil
}

func runUserSetPassword(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("user-set-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "new password (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("user-set-password requires -email and -password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := userRepo(ctx, pool)
	user, err := repo.FindByEmail(ctx.Ctx, *email)
	if err != nil {
		return err
	}
	if err := repo.SetPassword(ctx.Ctx, user.ID, string(hash)); err != nil {
		return err
	}

	ctx.Logger.InfoContext(ctx.Ctx, "password updated", "id", user.ID, "email", user.Email)
	return nil
}

func runUserTOTP(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("user-totp", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	disable := fs.Bool("disable", false, "disable the second factor instead of enrolling")
	issuer := fs.String("issuer", "intranet", "issuer shown in authenticator apps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("user-totp requires -email")
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := userRepo(ctx, pool)
	user, err := repo.FindByEmail(ctx.Ctx, *email)
	if err != nil {
		return err
	}

	if *disable {
		if err := repo.SetTOTP(ctx.Ctx, user.ID, nil, false); err != nil {
			return err
		}
		ctx.Logger.InfoContext(ctx.Ctx, "second factor disabled", "id", user.ID, "email", user.Email)
		return nil
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      *issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	secret := key.Secret()
	if err := repo.SetTOTP(ctx.Ctx, user.ID, &secret, true); err != nil {
		return err
	}

	// The provisioning URI goes to stdout so it can be piped into a QR tool.
	if err := writef(os.Stdout, "%s\n", key.URL()); err != nil {
		return err
	}
	ctx.Logger.InfoContext(ctx.Ctx, "second factor enrolled", "id", user.ID, "email", user.Email)
	return nil
}
