// Package auth validates bearer tokens issued for a user session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

var (
	ErrTokenExpired            = errors.New("token expired")
	ErrInvalidToken            = errors.New("invalid token")
	ErrSessionNotFound         = errors.New("session not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrMissingAuthHeader       = errors.New("missing authorization header")
	ErrInvalidAuthHeaderFormat = errors.New("invalid authorization header format")
	ErrAuthDisabled            = errors.New("authentication is disabled")
)

// Context is what a validated token resolves to.
type Context struct {
	User    *model.User
	Session *model.Session
}

// Claims carried by an access token.
type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type Service interface {
	ValidateToken(ctx context.Context, token string) (*Context, error)
	ExtractTokenFromHeader(header string) (string, error)
	IsAuthEnabled() bool
}

type Options struct {
	Enabled  bool
	Secret   string
	Issuer   string
	Audience string
}

type jwtService struct {
	r    repo.AuthRepo
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewService(r repo.AuthRepo, opts Options, log *zap.Logger) Service {
	return &jwtService{r: r, opts: opts, log: log, now: time.Now}
}

func (s *jwtService) IsAuthEnabled() bool { return s.opts.Enabled }

func (s *jwtService) ExtractTokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrInvalidAuthHeaderFormat
	}
	return strings.TrimSpace(token), nil
}

func (s *jwtService) ValidateToken(ctx context.Context, token string) (*Context, error) {
	if !s.opts.Enabled {
		return nil, ErrAuthDisabled
	}

	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad session_id", ErrInvalidToken)
	}
	sess, err := s.r.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(s.now()) {
		s.log.Sugar().Warnw("session expired", "session_id", sess.ID)
		return nil, ErrTokenExpired
	}

	user, err := s.r.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &Context{User: user, Session: sess}, nil
}

func (s *jwtService) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.Issuer))
	}
	if s.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.opts.Audience))
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	}, opts...)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// Sign issues an access token for a session. Used by tooling and tests.
func Sign(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
