// Package session holds the current credential.
//
// Store is the only writer of the credential. Every mutation is written to
// durable storage first and then applied in memory and published to the
// subscribers (route guards, the image cache) in subscription order.
//
// A Store starts out hydrating; Hydrate reads durable storage once and the
// hydrating flag stays false for the rest of the process.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/imgkeeper/internal/common"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
)

// State is what subscribers receive on every change.
type State struct {
	Credential models.Credential
	Hydrating  bool
}

type subscriber struct {
	id int
	fn func(State)
}

type Store struct {
	repo   metadata.Repository
	logger logging.Logger

	// writeMu serialises mutations so storage, memory and publication
	// happen in the same order for every writer.
	writeMu sync.Mutex

	mu        sync.RWMutex
	cred      models.Credential
	hydrating bool
	hydrated  bool

	subsMu sync.Mutex
	subs   []subscriber
	nextID int
}

// NewStore returns a store in the hydrating state.
func NewStore(repo metadata.Repository, logger logging.Logger) *Store {
	return &Store{
		repo:      repo,
		logger:    logger,
		hydrating: true,
	}
}

// Hydrate loads the persisted credential. Only the first call reads storage.
// A token whose JWT expiry has passed is removed instead of being loaded.
// A read failure still ends hydration, with no credential.
func (s *Store) Hydrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	done := s.hydrated
	s.mu.RUnlock()
	if done {
		return nil
	}

	cred, err := s.load(ctx)
	if err != nil {
		s.logger.Error(ctx, "session hydration failed", "err", err)
		cred = models.Credential{}
	}

	if cred.Present() {
		if claims, ok := ParseClaims(cred.Token); ok && claims.Expired(now()) {
			s.logger.Info(ctx, "stored token expired, dropping it", "expired_at", claims.ExpiresAt)
			if derr := s.clearCredential(ctx); derr != nil {
				s.logger.Error(ctx, "failed to drop expired token", "err", derr)
			}
			cred = models.Credential{}
		}
	}

	s.mu.Lock()
	s.cred = cred
	s.hydrating = false
	s.hydrated = true
	st := s.stateLocked()
	s.mu.Unlock()

	s.publish(st)
	return err
}

func (s *Store) load(ctx context.Context) (models.Credential, error) {
	token, ok, err := s.repo.Get(ctx, common.StorageKeyToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("load token: %w", err)
	}
	if !ok || token == "" {
		return models.Credential{}, nil
	}

	admin, _, err := s.repo.Get(ctx, common.StorageKeyIsAdmin)
	if err != nil {
		return models.Credential{}, fmt.Errorf("load admin flag: %w", err)
	}
	return models.Credential{Token: token, Admin: models.ParseAdminFlag(admin)}, nil
}

func (s *Store) IsHydrating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrating
}

func (s *Store) Credential() models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Token makes the store an api.TokenSource.
func (s *Store) Token() string {
	return s.Credential().Token
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{Credential: s.cred, Hydrating: s.hydrating}
}

// SetCredential persists c and then makes it current. An empty token is
// the same as Logout without touching the pending email.
func (s *Store) SetCredential(ctx context.Context, c models.Credential) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !c.Present() {
		if err := s.clearCredential(ctx); err != nil {
			return err
		}
	} else {
		err := s.repo.Atomic(ctx, func(ctx context.Context, repo metadata.Repository) error {
			if err := repo.Set(ctx, common.StorageKeyToken, c.Token); err != nil {
				return err
			}
			if c.Admin == models.AdminUnknown {
				return repo.Delete(ctx, common.StorageKeyIsAdmin)
			}
			return repo.Set(ctx, common.StorageKeyIsAdmin, c.Admin.String())
		})
		if err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}

	s.apply(c)
	return nil
}

// Logout wipes durable storage, pending email included, and clears the
// credential.
func (s *Store) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	s.apply(models.Credential{})
	return nil
}

// Expire clears the credential when token is still the current one and
// reports whether it did. Concurrent rejections of the same token therefore
// clear and publish once. Memory is cleared even if storage cannot be
// written; the failure is logged.
func (s *Store) Expire(ctx context.Context, token string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if token == "" || s.Credential().Token != token {
		return false
	}

	if err := s.clearCredential(ctx); err != nil {
		s.logger.Error(ctx, "failed to clear rejected credential", "err", err)
	}
	s.logger.Info(ctx, "credential rejected by server, signed out")
	s.apply(models.Credential{})
	return true
}

func (s *Store) clearCredential(ctx context.Context) error {
	err := s.repo.Atomic(ctx, func(ctx context.Context, repo metadata.Repository) error {
		if err := repo.Delete(ctx, common.StorageKeyToken); err != nil {
			return err
		}
		return repo.Delete(ctx, common.StorageKeyIsAdmin)
	})
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// apply is called with writeMu held.
func (s *Store) apply(c models.Credential) {
	s.mu.Lock()
	s.cred = c
	st := s.stateLocked()
	s.mu.Unlock()

	s.publish(st)
}

// Subscribe registers fn for every future change and returns a function
// that removes it. fn runs synchronously on the mutating goroutine and must
// not mutate the store.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeWithState is Subscribe that first hands fn the current state.
// No change can be published between that delivery and the first one fn
// receives from a mutation. It must not be called from a subscriber.
func (s *Store) SubscribeWithState(fn func(State)) func() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	unsubscribe := s.Subscribe(fn)
	fn(s.State())
	return unsubscribe
}

func (s *Store) publish(st State) {
	s.subsMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
}
