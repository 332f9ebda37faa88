package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
)

// notFound translates gorm's sentinel into the domain taxonomy.
func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, svcErr.ErrNotFound)
	}
	return err
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
