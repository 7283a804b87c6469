package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// AccountDirectory owns users and their sessions
type AccountDirectory struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	locks    keyedMutex
	bootMu   sync.Mutex
	sessions SessionTable
	store    Store
	config   AccountConfig
	now      func() time.Time
	logger   *logrus.Logger
}

// AccountConfig holds account policy knobs
type AccountConfig struct {
	BcryptCost int
	// BootstrapPrivilege is granted to the first account; zero selects
	// models.MaxPrivilege
	BootstrapPrivilege int
}

// DefaultAccountConfig returns default configuration
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		BcryptCost:         bcrypt.DefaultCost,
		BootstrapPrivilege: models.MaxPrivilege,
	}
}

// NewAccountDirectory creates an empty directory
func NewAccountDirectory(sessions SessionTable, store Store, config AccountConfig, logger *logrus.Logger) *AccountDirectory {
	return &AccountDirectory{
		users:    make(map[string]*models.User),
		sessions: sessions,
		store:    store,
		config:   config,
		now:      time.Now,
		logger:   logger,
	}
}

func (a *AccountDirectory) lookup(username string) (*models.User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[username]
	return u, ok
}

func (a *AccountDirectory) isEmpty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users) == 0
}

// RequireSession fails with ErrNotLoggedIn unless the user is logged in
func (a *AccountDirectory) RequireSession(ctx context.Context, username string) (*models.User, error) {
	active, err := a.sessions.Active(ctx, username)
	if err != nil {
		return nil, storageFailure("session lookup", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: %s", ErrNotLoggedIn, username)
	}
	u, ok := a.lookup(username)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoggedIn, username)
	}
	return u, nil
}

// AddUser registers an account. The very first account needs no caller and
// is granted the bootstrap privilege; every later one needs a logged-in
// caller whose privilege is strictly higher than the new account's.
func (a *AccountDirectory) AddUser(ctx context.Context, req models.NewUserRequest) (*models.Profile, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidArgument(err)
	}

	unlock := a.locks.Lock(req.Username)
	defer unlock()

	if _, exists := a.lookup(req.Username); exists {
		return nil, fmt.Errorf("%w: user %s", ErrDuplicate, req.Username)
	}

	bootstrap := a.isEmpty()
	if bootstrap {
		a.bootMu.Lock()
		defer a.bootMu.Unlock()
		bootstrap = a.isEmpty()
	}

	privilege := req.Privilege
	if bootstrap {
		privilege = a.config.BootstrapPrivilege
	} else {
		caller, err := a.RequireSession(ctx, req.Caller)
		if err != nil {
			return nil, err
		}
		if caller.Privilege <= req.Privilege {
			return nil, fmt.Errorf("%w: %s (privilege %d) cannot create privilege %d",
				ErrPrivilegeDenied, caller.Username, caller.Privilege, req.Privilege)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := a.now().UTC()
	user := &models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Name:         req.Name,
		Mail:         req.Mail,
		Privilege:    privilege,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, storageFailure("create user", err)
	}

	a.mu.Lock()
	a.users[user.Username] = user
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"username":  user.Username,
		"privilege": user.Privilege,
		"bootstrap": bootstrap,
	}).Info("User added")

	return user.ToProfile(), nil
}

// Login opens a session after checking the password
func (a *AccountDirectory) Login(ctx context.Context, username, password string) error {
	user, ok := a.lookup(username)
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("%w: wrong password for %s", ErrBadCredential, username)
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}

	started, err := a.sessions.Begin(ctx, username)
	if err != nil {
		return storageFailure("begin session", err)
	}
	if !started {
		return fmt.Errorf("%w: %s", ErrAlreadyLoggedIn, username)
	}

	a.logger.WithField("username", username).Debug("User logged in")
	return nil
}

// Logout closes the user's session
func (a *AccountDirectory) Logout(ctx context.Context, username string) error {
	ended, err := a.sessions.End(ctx, username)
	if err != nil {
		return storageFailure("end session", err)
	}
	if !ended {
		return fmt.Errorf("%w: %s", ErrNotLoggedIn, username)
	}
	a.logger.WithField("username", username).Debug("User logged out")
	return nil
}

// authorize checks that caller may read or change target's profile
func (a *AccountDirectory) authorize(ctx context.Context, caller, target string) (*models.User, *models.User, error) {
	callerUser, err := a.RequireSession(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	targetUser, ok := a.lookup(target)
	if !ok {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, target)
	}
	if caller != target && callerUser.Privilege <= targetUser.Privilege {
		return nil, nil, fmt.Errorf("%w: %s cannot access %s", ErrPrivilegeDenied, caller, target)
	}
	return callerUser, targetUser, nil
}

// QueryProfile returns the target's profile
func (a *AccountDirectory) QueryProfile(ctx context.Context, caller, target string) (*models.Profile, error) {
	_, user, err := a.authorize(ctx, caller, target)
	if err != nil {
		return nil, err
	}
	return user.ToProfile(), nil
}

// ModifyProfile applies the present fields of the update. A privilege
// change must stay strictly below the caller's own privilege.
func (a *AccountDirectory) ModifyProfile(ctx context.Context, caller, target string, update models.ProfileUpdate) (*models.Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, invalidArgument(err)
	}

	unlock := a.locks.Lock(target)
	defer unlock()

	callerUser, current, err := a.authorize(ctx, caller, target)
	if err != nil {
		return nil, err
	}
	if update.Privilege != nil && callerUser.Privilege <= *update.Privilege {
		return nil, fmt.Errorf("%w: %s cannot grant privilege %d", ErrPrivilegeDenied, caller, *update.Privilege)
	}
	if update.IsEmpty() {
		return current.ToProfile(), nil
	}

	next := *current
	if update.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), a.config.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		next.PasswordHash = string(hash)
	}
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Mail != nil {
		next.Mail = *update.Mail
	}
	if update.Privilege != nil {
		next.Privilege = *update.Privilege
	}
	next.UpdatedAt = a.now().UTC()

	if err := a.store.UpdateUser(ctx, &next); err != nil {
		return nil, storageFailure("update user", err)
	}

	a.mu.Lock()
	a.users[target] = &next
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"caller": caller,
		"target": target,
	}).Info("Profile modified")

	return next.ToProfile(), nil
}

func (a *AccountDirectory) restore(users []models.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = make(map[string]*models.User, len(users))
	for i := range users {
		u := users[i]
		a.users[u.Username] = &u
	}
}

func (a *AccountDirectory) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = make(map[string]*models.User)
}

// count is the number of registered users
func (a *AccountDirectory) count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}
