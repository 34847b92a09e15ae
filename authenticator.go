package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Auther authenticates credentials and mints session tokens. The ordered
// gate checks are deliberate: an unknown email and a wrong password share
// one generic error, while unconfirmed and disabled accounts get explicit
// messages the account holder can act on.
type Auther struct {
	repo            RepositoryManager
	signingKey      []byte
	sessionDuration int
	issuer          string
	audience        []string
	logger          Logger
}

// NewAuthenticator returns a new Authenticator backed by the account store.
func NewAuthenticator(repo RepositoryManager, opts Config) *Auther {
	return &Auther{
		repo:            repo,
		signingKey:      []byte(opts.GetSigningKey()),
		sessionDuration: opts.GetSessionDuration(),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		logger:          defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Login authenticates the email/password pair, enforces the activation
// gate, records last-seen metadata, and returns a signed session token.
func (s *Auther) Login(ctx context.Context, email, password, remoteIP string) (string, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.IsNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during login")
	}

	// The unconfirmed case is the one allowed departure from generic
	// messaging: the caller already controls the mailbox that fixes it.
	if !account.EmailConfirmed {
		return "", ErrEmailNotConfirmed
	}

	if !account.IsActive {
		return "", ErrAccountDisabled
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return "", ErrInvalidCredentials
	}

	if err := s.repo.Accounts().TrackSucccessfulLogin(ctx, account, remoteIP); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	return s.generateSessionToken(account)
}

// SessionFromToken parses and validates a session token string.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("session token has unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "unable to decode session").
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("unable to map session claims", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	return sessionFromClaims(claims), nil
}

// AccountFromSession resolves the session's subject back into an account.
func (s *Auther) AccountFromSession(ctx context.Context, session Session) (*Account, error) {
	id, err := session.GetAccountUUID()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "session carries no usable account id")
	}

	account, err := s.repo.Accounts().GetByID(ctx, id.String())
	if err != nil {
		s.logger.Error("AccountFromSession lookup failed", "error", err)
		return nil, err
	}

	return account, nil
}

func (s *Auther) generateSessionToken(account *Account) (string, error) {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.sessionDuration) * time.Hour)),
		},
		Email: account.Email,
		Name:  account.ShortName(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}
