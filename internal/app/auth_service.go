package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"docinsight/internal/model"
	"docinsight/internal/pkg/jwtutil"
)

const (
	minPasswordLength  = 6
	maxDisplayNameRune = 64
	maxEmailLength     = 128
)

var validate = validator.New()

type AuthService struct {
	users         UserStore
	denylist      TokenDenylist
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Email    string
	Password string
}

type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	PhotoURL    *string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(users UserStore, denylist TokenDenylist, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		denylist:      denylist,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	password := input.Password
	displayName := strings.TrimSpace(input.DisplayName)

	verr := &ValidationError{}
	if err := validate.Var(email, fmt.Sprintf("required,email,max=%d", maxEmailLength)); err != nil {
		verr.add("email", "A valid email is required.")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		verr.add("password", fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameRune {
		verr.add("display_name", fmt.Sprintf("Display name must be at most %d characters.", maxDisplayNameRune))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	user := &model.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return s.issue(user)
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *jwtutil.Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidInput
	}
	ttl := claims.TTL(time.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token failed: %w", err)
	}
	return nil
}

// Authenticate parses a bearer token and rejects revoked ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*jwtutil.Claims, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token revocation failed: %w", err)
	}
	if revoked {
		return nil, jwtutil.ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*model.User, error) {
	user, err := s.GetUserByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	displayName := user.DisplayName
	photoURL := user.PhotoURL
	verr := &ValidationError{}
	if input.DisplayName != nil {
		displayName = strings.TrimSpace(*input.DisplayName)
		n := utf8.RuneCountInString(displayName)
		if n == 0 || n > maxDisplayNameRune {
			verr.add("display_name", fmt.Sprintf("Display name must be 1 to %d characters.", maxDisplayNameRune))
		}
	}
	if input.PhotoURL != nil {
		photoURL = strings.TrimSpace(*input.PhotoURL)
		if photoURL != "" && !isHTTPURL(photoURL) {
			verr.add("photo_url", "Photo URL must be an http or https address.")
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if err := s.users.UpdateProfile(ctx, user.ID, displayName, photoURL); err != nil {
		return nil, err
	}
	user.DisplayName = displayName
	user.PhotoURL = photoURL
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// TokenTTL is the lifetime of issued tokens, used for the session cookie.
func (s *AuthService) TokenTTL() time.Duration {
	return s.jwtExpiration
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
