// Package identity registers users, checks their passwords and issues and
// verifies the HS256 tokens that gate protected operations.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
	"github.com/Skryldev/storefront/repo"
	"github.com/Skryldev/storefront/schema"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultHashCost = 12
)

// Options configures a Service. Secret is required.
type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	HashCost int
	Logger   *slog.Logger

	// Now is used for token timestamps; time.Now when nil.
	Now func() time.Time
}

// Claims are the token claims. The subject is the user id in decimal.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("token subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// Service implements registration, authentication and token verification.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	users  repo.UserRepository
	opts   Options
	logger *slog.Logger
}

// NewService validates opts and fills in defaults.
func NewService(users repo.UserRepository, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("identity: signing secret must not be empty")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.HashCost == 0 {
		opts.HashCost = DefaultHashCost
	}
	if opts.HashCost < bcrypt.MinCost || opts.HashCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("identity: bcrypt cost %d out of range", opts.HashCost)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, opts: opts, logger: logger}, nil
}

// Register creates a user and returns a token for it. A taken email is a
// Conflict and the existing user is left as it was.
func (s *Service) Register(ctx context.Context, in schema.RegisterInput) (string, *models.User, error) {
	_, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return "", nil, apperrors.Conflict("email already registered", nil)
	case !db.IsNotFound(err):
		return "", nil, apperrors.Internal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.HashCost)
	if err != nil {
		return "", nil, apperrors.Internal(fmt.Errorf("identity: hash password: %w", err))
	}

	u, err := s.users.Insert(ctx, models.CreateUserParams{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if db.IsDuplicateKey(err) {
			return "", nil, apperrors.Conflict("email already registered", err)
		}
		return "", nil, apperrors.FromStore(err, "user")
	}

	token, err := s.issue(u)
	if err != nil {
		return "", nil, err
	}
	s.logger.InfoContext(ctx, "identity: user registered", slog.Int64("user_id", u.ID))
	return token, u, nil
}

// Authenticate checks a password and returns a fresh token. An unknown
// email is NotFound; a wrong password is InvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, in schema.AuthInput) (string, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return "", apperrors.FromStore(err, "user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.InfoContext(ctx, "identity: password mismatch", slog.Int64("user_id", u.ID))
		return "", apperrors.InvalidCredentials()
	}
	return s.issue(u)
}

// Verify checks the signature, the algorithm and the expiry of a token.
// Failures are Authentication errors carrying the verifier's message.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.opts.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.opts.Now),
	)
	if err != nil {
		return nil, apperrors.Authentication(err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, apperrors.Authentication(err)
	}
	return claims, nil
}

// RegisterAddress attaches an address to userID, which must come from a
// verified token.
func (s *Service) RegisterAddress(ctx context.Context, userID int64, in schema.AddressInput) (*models.UserAddress, error) {
	a, err := s.users.InsertAddress(ctx, in.Params(userID))
	if err != nil {
		// The token outlived its user.
		if db.IsForeignKeyViolation(err) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.FromStore(err, "address")
	}
	return a, nil
}

// Profile returns the user with its addresses.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStore(err, "user")
	}
	addresses, err := s.users.ListAddresses(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStore(err, "address")
	}
	return &models.Profile{User: u, Addresses: addresses}, nil
}

func (s *Service) issue(u *models.User) (string, error) {
	now := s.opts.Now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	if u.Name != nil {
		claims.Name = *u.Name
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("identity: sign token: %w", err))
	}
	return signed, nil
}
