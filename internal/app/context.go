package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"taskpilot/internal/domain"
	"taskpilot/internal/engine"
	"taskpilot/internal/repo"
)

// ResolveUser picks the acting user for CLI commands. It prefers the
// override, then a single-user database. A missing override is provisioned
// on the fly with a random password so a fresh workspace works immediately.
func ResolveUser(ctx context.Context, e engine.Engine, emailOverride string) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(emailOverride))
	if email == "" {
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return domain.User{}, err
		}
		switch len(users) {
		case 0:
			email = "local@taskpilot.dev"
		case 1:
			return users[0], nil
		default:
			return domain.User{}, fmt.Errorf("multiple users exist; use --user")
		}
	}
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	return e.RegisterUser(ctx, email, randomPassword())
}

// randomPassword generates a throwaway credential for auto-provisioned
// local users. They authenticate through the CLI, not with a password.
func randomPassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
