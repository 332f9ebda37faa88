// Package caller resolves the acting user of a request.
package caller

import (
	"context"
	"fmt"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/identity"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// Resolve loads the user named in ctx. No identity is Unauthenticated; an
// unknown or deactivated account is NotFound.
func Resolve(ctx context.Context, users *repository.UserRepository) (*db.User, error) {
	name, ok := identity.From(ctx)
	if !ok {
		return nil, svcErr.Unauthenticated("missing caller identity")
	}
	u, err := users.GetByUsername(ctx, name)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, fmt.Errorf("user %q inactive: %w", name, svcErr.ErrNotFound)
	}
	return u, nil
}
