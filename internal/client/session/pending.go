package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/imgkeeper/internal/common"
)

// SetPendingEmail remembers the address a registration is waiting to be
// verified for. It survives restarts until verified or logged out.
func (s *Store) SetPendingEmail(ctx context.Context, email string) error {
	if err := s.repo.Set(ctx, common.StorageKeyPendingEmail, email); err != nil {
		return fmt.Errorf("persist pending email: %w", err)
	}
	return nil
}

// PendingEmail returns "" when no registration is pending.
func (s *Store) PendingEmail(ctx context.Context) (string, error) {
	v, _, err := s.repo.Get(ctx, common.StorageKeyPendingEmail)
	if err != nil {
		return "", fmt.Errorf("load pending email: %w", err)
	}
	return v, nil
}

func (s *Store) ClearPendingEmail(ctx context.Context) error {
	if err := s.repo.Delete(ctx, common.StorageKeyPendingEmail); err != nil {
		return fmt.Errorf("clear pending email: %w", err)
	}
	return nil
}
