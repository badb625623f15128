package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies HS256 bearer tokens whose subject is the
// user id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clk}
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue returns a signed token for userID.
func (t *TokenIssuer) Issue(userID int64) (string, error) {
	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies token and returns its user id.
func (t *TokenIssuer) Parse(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// expiry is checked against our clock so tests can move time
	if claims.ExpiresAt == nil || !t.clock.Now().Before(claims.ExpiresAt.Time) {
		return 0, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

func validatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter := false
	hasNumber := false
	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}

func validateUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	return usernameRegex.MatchString(username)
}

type userIDKey struct{}

func userIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// requireAuth rejects requests without a valid bearer token and puts the
// caller's id in the request context.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated", "missing_token")
			return
		}
		userID, err := h.tokens.Parse(token)
		if err != nil {
			h.logger.Debugf("Rejected token: %v", err)
			writeError(w, http.StatusUnauthorized, "Could not validate credentials", "invalid_token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}
