// Package users owns user profiles and the username index.
//
// Profiles live in the users bucket keyed by identity; the usernames bucket
// maps each canonical username back to its owner. Both buckets change in the
// same kv transaction, which keeps the index bijective.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/profile"
	"github.com/louisbranch/townsquare/internal/services/social/username"
)

const (
	usersBucket     = "users"
	usernamesBucket = "usernames"
)

// ErrStoreNotConfigured indicates the store is missing its kv backend.
var ErrStoreNotConfigured = errors.New("user store is not configured")

// UserProfile is one identity's public profile.
type UserProfile struct {
	Identity    identity.Identity `json:"identity"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name"`
	Bio         string            `json:"bio"`
	AvatarURL   string            `json:"avatar_url"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	IsVerified  bool              `json:"is_verified"`
}

// CreateUserInput carries the fields of a new profile.
type CreateUserInput struct {
	Username    string
	DisplayName string
	Bio         string
	AvatarURL   string
}

// UpdateUserInput carries optional profile changes. Nil fields are left as is.
type UpdateUserInput struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

// Store persists user profiles.
type Store struct {
	db    kv.Store
	clock func() time.Time
}

// New prepares the user buckets in db.
func New(ctx context.Context, db kv.Store, clock func() time.Time) (*Store, error) {
	if db == nil {
		return nil, ErrStoreNotConfigured
	}
	if clock == nil {
		clock = time.Now
	}
	if err := db.EnsureBuckets(ctx, usersBucket, usernamesBucket); err != nil {
		return nil, fmt.Errorf("ensure user buckets: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// CreateUser registers a profile for caller under a unique username.
func (s *Store) CreateUser(ctx context.Context, caller identity.Identity, input CreateUserInput) (UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return UserProfile{}, err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return UserProfile{}, err
	}
	canonical, err := username.Canonicalize(input.Username)
	if err != nil {
		return UserProfile{}, err
	}
	normalized, err := profile.Normalize(input.DisplayName, input.Bio, input.AvatarURL)
	if err != nil {
		return UserProfile{}, err
	}

	now := s.now()
	record := UserProfile{
		Identity:    caller,
		Username:    canonical,
		DisplayName: normalized.DisplayName,
		Bio:         normalized.Bio,
		AvatarURL:   normalized.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.Update(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, usersBucket, usernamesBucket)
		if err != nil {
			return err
		}
		profiles, names := buckets[0], buckets[1]

		exists, err := profiles.Has(identityKey(caller))
		if err != nil {
			return err
		}
		if exists {
			return apperrors.New(apperrors.CodeAlreadyExists, "profile already exists")
		}

		owner, err := names.Get([]byte(canonical))
		switch {
		case errors.Is(err, kv.ErrNotFound):
		case err != nil:
			return err
		case identity.Identity(owner) != caller:
			return apperrors.WithMetadata(apperrors.CodeUsernameTaken, "username is taken", map[string]string{
				"Username": canonical,
			})
		}

		if err := kv.PutJSON(profiles, identityKey(caller), record); err != nil {
			return err
		}
		return names.Put([]byte(canonical), identityKey(caller))
	})
	if err != nil {
		return UserProfile{}, fmt.Errorf("create user: %w", err)
	}
	return record, nil
}

// UpdateUser applies the supplied profile fields and refreshes UpdatedAt.
func (s *Store) UpdateUser(ctx context.Context, caller identity.Identity, input UpdateUserInput) (UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return UserProfile{}, err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return UserProfile{}, err
	}

	var updated UserProfile
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		profiles, err := tx.Bucket(usersBucket)
		if err != nil {
			return err
		}
		record, err := getProfile(profiles, caller)
		if err != nil {
			return err
		}
		if input.DisplayName != nil {
			if record.DisplayName, err = profile.NormalizeDisplayName(*input.DisplayName); err != nil {
				return err
			}
		}
		if input.Bio != nil {
			if record.Bio, err = profile.NormalizeBio(*input.Bio); err != nil {
				return err
			}
		}
		if input.AvatarURL != nil {
			if record.AvatarURL, err = profile.NormalizeAvatarURL(*input.AvatarURL); err != nil {
				return err
			}
		}
		record.UpdatedAt = s.now()
		if err := kv.PutJSON(profiles, identityKey(caller), record); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return UserProfile{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// SetVerified flips the verified badge on an existing profile.
func (s *Store) SetVerified(ctx context.Context, id identity.Identity, verified bool) (UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return UserProfile{}, err
	}
	var updated UserProfile
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		profiles, err := tx.Bucket(usersBucket)
		if err != nil {
			return err
		}
		record, err := getProfile(profiles, id)
		if err != nil {
			return err
		}
		if record.IsVerified != verified {
			record.IsVerified = verified
			record.UpdatedAt = s.now()
			if err := kv.PutJSON(profiles, identityKey(id), record); err != nil {
				return err
			}
		}
		updated = record
		return nil
	})
	if err != nil {
		return UserProfile{}, fmt.Errorf("set verified: %w", err)
	}
	return updated, nil
}

// GetUser returns the profile owned by id.
func (s *Store) GetUser(ctx context.Context, id identity.Identity) (UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return UserProfile{}, err
	}
	var record UserProfile
	err := s.db.View(ctx, func(tx kv.Tx) error {
		profiles, err := tx.Bucket(usersBucket)
		if err != nil {
			return err
		}
		record, err = getProfile(profiles, id)
		return err
	})
	if err != nil {
		return UserProfile{}, fmt.Errorf("get user: %w", err)
	}
	return record, nil
}

// GetUserByUsername resolves name through the username index.
func (s *Store) GetUserByUsername(ctx context.Context, name string) (UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return UserProfile{}, err
	}
	canonical, err := username.Canonicalize(name)
	if err != nil {
		return UserProfile{}, notFound()
	}
	var record UserProfile
	err = s.db.View(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, usersBucket, usernamesBucket)
		if err != nil {
			return err
		}
		profiles, names := buckets[0], buckets[1]
		owner, err := names.Get([]byte(canonical))
		if errors.Is(err, kv.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return err
		}
		record, err = getProfile(profiles, identity.Identity(owner))
		return err
	})
	if err != nil {
		return UserProfile{}, fmt.Errorf("get user by username: %w", err)
	}
	return record, nil
}

// UsernameAvailable reports whether name is valid and unclaimed.
func (s *Store) UsernameAvailable(ctx context.Context, name string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	canonical, err := username.Canonicalize(name)
	if err != nil {
		return false, nil
	}
	var taken bool
	err = s.db.View(ctx, func(tx kv.Tx) error {
		names, err := tx.Bucket(usernamesBucket)
		if err != nil {
			return err
		}
		taken, err = names.Has([]byte(canonical))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return !taken, nil
}

// ListUsers returns every profile in identity key order.
func (s *Store) ListUsers(ctx context.Context) ([]UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var out []UserProfile
	err := s.db.View(ctx, func(tx kv.Tx) error {
		profiles, err := tx.Bucket(usersBucket)
		if err != nil {
			return err
		}
		return profiles.ForEach(func(key, value []byte) error {
			record, err := kv.DecodeJSON[UserProfile](value)
			if err != nil {
				return fmt.Errorf("decode user %q: %w", key, err)
			}
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func getProfile(profiles kv.Bucket, id identity.Identity) (UserProfile, error) {
	if id.IsAnonymous() {
		return UserProfile{}, notFound()
	}
	record, err := kv.GetJSON[UserProfile](profiles, identityKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return UserProfile{}, notFound()
	}
	return record, err
}

func identityKey(id identity.Identity) []byte {
	return []byte(id)
}

func notFound() error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "user not found", map[string]string{"Resource": "user"})
}
