package accounts

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPurpose labels what a derived token may be redeemed for. The purpose
// is mixed into the MAC so activation and reset links cannot replay each
// other.
type TokenPurpose string

const (
	// TokenPurposeActivate gates the pending to active transition
	TokenPurposeActivate TokenPurpose = "activate"
	// TokenPurposeReset gates credential replacement
	TokenPurposeReset TokenPurpose = "reset"
)

// TokenService issues and verifies opaque single-use tokens bound to an
// account and its current fingerprint.
type TokenService interface {
	Issue(account *Account, purpose TokenPurpose) (string, error)
	Verify(account *Account, purpose TokenPurpose, token string) bool
}

// tokenBucket is the coarse time unit tokens are derived against.
const tokenBucket = time.Hour

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TokenServiceImpl implements TokenService with a keyed HMAC derivation.
// Nothing is stored server side: a token self-invalidates when the account
// fingerprint changes and expires once its issuance bucket leaves the
// verification window.
type TokenServiceImpl struct {
	signingKey []byte
	window     int // hours a token stays valid
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService. window is the validity window
// in hours; zero or negative falls back to 24.
func NewTokenService(signingKey []byte, window int, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	if window <= 0 {
		window = 24
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		window:     window,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue derives a token for the account's current fingerprint and the
// current time bucket.
func (ts *TokenServiceImpl) Issue(account *Account, purpose TokenPurpose) (string, error) {
	if account == nil || account.ID == uuid.Nil {
		return "", errors.New("cannot issue token without a persisted account", errors.CategoryBadInput)
	}
	if len(ts.signingKey) == 0 {
		return "", errors.New("token service has no signing key", errors.CategoryInternal)
	}

	return ts.derive(account, purpose, ts.currentBucket()), nil
}

// Verify recomputes the expected token for every bucket inside the window
// using the account's current fingerprint and accepts on any match. A stale
// fingerprint or an exhausted window verifies nothing.
func (ts *TokenServiceImpl) Verify(account *Account, purpose TokenPurpose, token string) bool {
	if account == nil || token == "" || len(ts.signingKey) == 0 {
		return false
	}

	current := ts.currentBucket()
	for i := int64(0); i < int64(ts.window); i++ {
		expected := ts.derive(account, purpose, current-i)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1 {
			return true
		}
	}

	return false
}

func (ts *TokenServiceImpl) currentBucket() int64 {
	return ts.now().Unix() / int64(tokenBucket/time.Second)
}

func (ts *TokenServiceImpl) derive(account *Account, purpose TokenPurpose, bucket int64) string {
	mac := hmac.New(sha256.New, ts.signingKey)
	fmt.Fprintf(mac, "%s|%s|%s|%d", account.ID, purpose, account.TokenFingerprint(), bucket)
	return tokenEncoding.EncodeToString(mac.Sum(nil)[:20])
}

// EncodeAccountID renders an account id as the URL-safe opaque segment used
// in activation and reset links. The encoding is reversible and carries no
// secret; token verification provides all of the security.
func EncodeAccountID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeAccountID reverses EncodeAccountID. Callers must treat a decode
// failure exactly like a failed token verification.
func DecodeAccountID(encoded string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryBadInput, "malformed account identifier")
	}

	id, err := uuid.Parse(string(raw))
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryBadInput, "malformed account identifier")
	}

	return id, nil
}
