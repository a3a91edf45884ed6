package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/repository"
)

// stubUserRepo is an in-memory port.UserRepository.
type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User

	createErr error
	lastLogin map[string]time.Time
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	repo := &stubUserRepo{
		users:     make(map[string]*domain.User),
		lastLogin: make(map[string]time.Time),
	}
	for _, u := range users {
		copied := *u
		repo.users[u.ID] = &copied
	}
	return repo
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicate
		}
		if existing.Phone != nil && user.Phone != nil && *existing.Phone == *user.Phone {
			return repository.ErrDuplicate
		}
	}
	copied := user
	r.users[user.ID] = &copied
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Phone != nil && *user.Phone == phone {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = changedAt
	return nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	login := at
	user.LastLoginAt = &login
	r.lastLogin[id] = at
	return nil
}

func (r *stubUserRepo) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.FullName != nil {
		user.FullName = *update.FullName
	}
	if update.Phone != nil {
		phone := *update.Phone
		user.Phone = &phone
		user.PhoneVerified = false
	}
	if update.City != nil {
		user.City = update.City
	}
	if update.Notifications != nil {
		user.Notifications = *update.Notifications
	}
	user.UpdatedAt = at
	return nil
}

func (r *stubUserRepo) SetEmailVerified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = at
	return nil
}

func (r *stubUserRepo) Deactivate(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.IsActive = false
	user.UpdatedAt = at
	return nil
}

// stubLedger is an in-memory port.LedgerRepository honouring the single-active
// and single-use rotation semantics.
type stubLedger struct {
	mu      sync.Mutex
	records map[string]*domain.SessionToken
	now     func() time.Time
}

func newStubLedger(now func() time.Time) *stubLedger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &stubLedger{
		records: make(map[string]*domain.SessionToken),
		now:     now,
	}
}

func (l *stubLedger) Create(_ context.Context, token domain.SessionToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token.Kind != domain.TokenKindRefresh {
		for _, rec := range l.records {
			if rec.UserID == token.UserID && rec.Kind == token.Kind {
				rec.Valid = false
			}
		}
	}
	copied := token
	l.records[token.ID] = &copied
	return nil
}

func (l *stubLedger) FindValid(_ context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.SecretHash == secretHash && rec.Kind == kind && rec.Valid {
			if rec.IsExpired(l.now()) {
				rec.Valid = false
				return nil, repository.ErrNotFound
			}
			copied := *rec
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (l *stubLedger) Invalidate(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[id]; ok {
		rec.Valid = false
	}
	return nil
}

func (l *stubLedger) InvalidateAllForUser(_ context.Context, userID string, kind *domain.TokenKind) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, rec := range l.records {
		if rec.UserID != userID || !rec.Valid {
			continue
		}
		if kind != nil && rec.Kind != *kind {
			continue
		}
		rec.Valid = false
		count++
	}
	return count, nil
}

func (l *stubLedger) Consume(_ context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.SecretHash == secretHash && rec.Kind == kind && rec.Valid && !rec.IsExpired(l.now()) {
			rec.Valid = false
			copied := *rec
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (l *stubLedger) Rotate(_ context.Context, oldSecretHash string, replacement domain.SessionToken) (*domain.SessionToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.SecretHash == oldSecretHash && rec.Kind == domain.TokenKindRefresh && rec.Valid && !rec.IsExpired(l.now()) {
			rec.Valid = false
			copied := replacement
			l.records[replacement.ID] = &copied
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (l *stubLedger) validCount(userID string, kind domain.TokenKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, rec := range l.records {
		if rec.UserID == userID && rec.Kind == kind && rec.Valid {
			count++
		}
	}
	return count
}

// stubEvents records published events for assertions.
type stubEvents struct {
	mu                  sync.Mutex
	registered          []domain.UserRegisteredEvent
	passwordChanged     []domain.PasswordChangedEvent
	resetRequested      []domain.PasswordResetRequestedEvent
	emailVerified       []domain.EmailVerifiedEvent
	sessionsInvalidated []domain.SessionsInvalidatedEvent
}

func (e *stubEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return nil
}

func (e *stubEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passwordChanged = append(e.passwordChanged, event)
	return nil
}

func (e *stubEvents) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetRequested = append(e.resetRequested, event)
	return nil
}

func (e *stubEvents) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emailVerified = append(e.emailVerified, event)
	return nil
}

func (e *stubEvents) PublishSessionsInvalidated(_ context.Context, event domain.SessionsInvalidatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionsInvalidated = append(e.sessionsInvalidated, event)
	return nil
}
