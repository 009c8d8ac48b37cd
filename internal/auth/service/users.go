package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/pkg/cryptox"
	"github.com/tallystack/tallyauth/pkg/idx"
)

const minPasswordLength = 8

var (
	ErrUsernameTaken   = errors.New("username or email already in use")
	ErrWeakPassword    = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidUsername = errors.New("username must not be empty")
)

// CreateUserInput is a new account request. Role defaults to RoleUser.
type CreateUserInput struct {
	Username string
	Email    string
	FullName string
	Role     domain.Role
	Password string
}

// UpdateUserInput mutates a profile; nil fields are left untouched.
type UpdateUserInput struct {
	Email    *string
	FullName *string
	Role     *domain.Role
	Active   *bool
}

// UserService implements role-gated account administration. Every operation
// takes the acting profile and evaluates the policy table before touching
// the store.
type UserService struct {
	Store    store.Store
	Verifier identity.Verifier
	Guard    *LockoutGuard
	Sessions *SessionManager
	Activity *ActivityService

	Now func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateUser provisions a new account with its credential in one
// transaction. Root accounts cannot be created this way; there is exactly
// one and it comes from bootstrap.
func (s *UserService) CreateUser(ctx context.Context, actor domain.Profile, in CreateUserInput) (domain.Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = domain.RoleUser
	}

	if in.Role == domain.RoleRoot || !in.Role.Valid() {
		return domain.Profile{}, ErrInvalidRole
	}
	if !domain.Can(actor.Role, domain.ActionCreateUser, in.Role) {
		return domain.Profile{}, domain.ErrPermissionDenied("cannot create users")
	}
	if in.Username == "" {
		return domain.Profile{}, ErrInvalidUsername
	}
	if len(in.Password) < minPasswordLength {
		return domain.Profile{}, ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	p := domain.Profile{
		ID:        idx.New().String(),
		Username:  in.Username,
		Email:     in.Email,
		FullName:  in.FullName,
		Role:      in.Role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Profiles().CreateProfile(ctx, p); err != nil {
			return err
		}
		return tx.Credentials().CreateCredential(ctx, p.ID, hash)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Profile{}, ErrUsernameTaken
		}
		return domain.Profile{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   actor.ID,
		Username:    actor.Username,
		Type:        domain.ActivityUserCreated,
		Description: fmt.Sprintf("created account %q with role %s", p.Username, p.Role),
		Details:     map[string]any{"target_id": p.ID},
	})
	return p, nil
}

// UpdateUser applies the non-nil fields of in to the target profile. The
// root profile can never be demoted or deactivated, and no account can be
// promoted to root.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Profile, targetID string, in UpdateUserInput) (domain.Profile, error) {
	target, err := s.Store.Profiles().GetProfileByID(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return domain.Profile{}, domain.ErrProfileNotFound()
		}
		return domain.Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}

	if !domain.Can(actor.Role, domain.ActionUpdateUser, target.Role) {
		return domain.Profile{}, domain.ErrPermissionDenied("cannot update this account")
	}

	if in.Role != nil {
		newRole := *in.Role
		if !newRole.Valid() || newRole == domain.RoleRoot {
			return domain.Profile{}, ErrInvalidRole
		}
		if target.Role == domain.RoleRoot {
			return domain.Profile{}, domain.ErrPermissionDenied("the root account cannot change role")
		}
	}
	if in.Active != nil && !*in.Active && target.Role == domain.RoleRoot {
		return domain.Profile{}, domain.ErrPermissionDenied("the root account cannot be deactivated")
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if in.Email != nil || in.FullName != nil {
			email, fullName := target.Email, target.FullName
			if in.Email != nil {
				email = strings.TrimSpace(*in.Email)
			}
			if in.FullName != nil {
				fullName = *in.FullName
			}
			if err := tx.Profiles().UpdateContact(ctx, targetID, email, fullName); err != nil {
				return err
			}
			target.Email, target.FullName = email, fullName
		}
		if in.Role != nil {
			if err := tx.Profiles().UpdateRole(ctx, targetID, *in.Role); err != nil {
				return err
			}
			target.Role = *in.Role
		}
		if in.Active != nil {
			if err := tx.Profiles().SetActive(ctx, targetID, *in.Active); err != nil {
				return err
			}
			target.Active = *in.Active
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Profile{}, ErrUsernameTaken
		}
		return domain.Profile{}, fmt.Errorf("failed to update user: %w", err)
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   actor.ID,
		Username:    actor.Username,
		Type:        domain.ActivityUserUpdated,
		Description: fmt.Sprintf("updated account %q", target.Username),
		Details:     map[string]any{"target_id": target.ID},
	})
	return target, nil
}

// DeleteUser removes an account. The default is a soft delete (deactivate);
// hard deletion permanently removes the profile and its credential and is
// reserved for root. The root account itself is never deletable, by anyone.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Profile, targetID string, hard bool) error {
	target, err := s.Store.Profiles().GetProfileByID(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrProfileNotFound()
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if target.Role == domain.RoleRoot {
		return domain.ErrPermissionDenied("the root account cannot be deleted")
	}

	action := domain.ActionDeleteUser
	if hard {
		action = domain.ActionHardDeleteUser
	}
	if !domain.Can(actor.Role, action, target.Role) {
		return domain.ErrPermissionDenied("cannot delete this account")
	}

	if hard {
		err = s.Store.Profiles().DeleteProfile(ctx, targetID)
	} else {
		err = s.Store.Profiles().SetActive(ctx, targetID, false)
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   actor.ID,
		Username:    actor.Username,
		Type:        domain.ActivityUserDeleted,
		Description: fmt.Sprintf("deleted account %q", target.Username),
		Details:     map[string]any{"target_id": target.ID, "hard": hard},
	})
	return nil
}

// ListUsers returns all profiles, newest first.
func (s *UserService) ListUsers(ctx context.Context, actor domain.Profile) ([]domain.Profile, error) {
	if !domain.Can(actor.Role, domain.ActionListUsers, "") {
		return nil, domain.ErrPermissionDenied("cannot list users")
	}
	profiles, err := s.Store.Profiles().ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// UnlockAccount clears a lockout early on behalf of an administrator.
func (s *UserService) UnlockAccount(ctx context.Context, actor domain.Profile, targetID string) error {
	target, err := s.Store.Profiles().GetProfileByID(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrProfileNotFound()
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if !domain.Can(actor.Role, domain.ActionUnlockAccount, target.Role) {
		return domain.ErrPermissionDenied("cannot unlock this account")
	}

	if err := s.Guard.Reset(ctx, targetID); err != nil {
		return err
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   actor.ID,
		Username:    actor.Username,
		Type:        domain.ActivityAccountUnlocked,
		Description: fmt.Sprintf("unlocked account %q", target.Username),
		Details:     map[string]any{"target_id": target.ID},
	})
	return nil
}

// ChangePassword rotates the caller's own credential after re-proving the
// current one. It also clears a forced-change flag left by bootstrap.
func (s *UserService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	p, err := s.Store.Profiles().GetProfileByID(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrProfileNotFound()
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if err := s.Verifier.Verify(ctx, accountID, oldPassword); err != nil {
		if errors.Is(err, identity.ErrBadCredential) {
			return domain.ErrPermissionDenied("current password is incorrect")
		}
		return domain.ErrUpstreamUnavailable(err)
	}

	if err := s.Verifier.UpdateCredential(ctx, accountID, newPassword); err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}

	if s.Sessions != nil {
		s.Sessions.ClearPasswordChangeRequired()
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   accountID,
		Username:    p.Username,
		Type:        domain.ActivityPasswordChange,
		Description: "password changed",
	})
	return nil
}
