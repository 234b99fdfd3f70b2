package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetPassword(ctx context.Context, id, passwordHash string) error
}

// HashPassword wraps bcrypt at its default cost.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(h), err
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsPasswordStrong requires length >= 8 with at least one letter, one upper
// case and one digit.
func IsPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasLetter, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
			hasLetter = true
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasUpper && hasDigit
}

type SQLUserStore struct {
	db *sql.DB
}

func NewSQLUserStore(db *sql.DB) *SQLUserStore { return &SQLUserStore{db: db} }

func (s *SQLUserStore) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users
		(id,username,email,full_name,password_hash,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.FullName, u.PasswordHash, u.IsActive, u.CreatedAt.Unix())
	return err
}

func (s *SQLUserStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.getBy(ctx, `id`, id)
}

func (s *SQLUserStore) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.getBy(ctx, `username`, username)
}

func (s *SQLUserStore) getBy(ctx context.Context, col, val string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,full_name,password_hash,is_active,created_at
		FROM users WHERE `+col+`=$1`, val)
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

func (s *SQLUserStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.updateOne(ctx, `UPDATE users SET is_active=$1 WHERE id=$2`, active, id)
}

func (s *SQLUserStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateOne(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, passwordHash, id)
}

func (s *SQLUserStore) updateOne(ctx context.Context, q string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

type memoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore() UserStore {
	return &memoryUserStore{users: map[string]User{}}
}

func (m *memoryUserStore) Create(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memoryUserStore) GetByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUserStore) GetByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryUserStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

func (m *memoryUserStore) SetPassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}
