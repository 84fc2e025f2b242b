package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/logging"
	"github.com/linesmerrill/police-dispatch-api/models"
)

// tokenCacheTTL bounds how long a verified bearer token skips JWT parsing
const tokenCacheTTL = 5 * time.Minute

var (
	errRevoked            = errors.New("token revoked")
	errInvalidCredentials = errors.New("invalid credentials")
)

// Claims are the JWT claims issued by CreateToken
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Guard authenticates requests with basic credentials checked against the
// users collection or with a bearer JWT it issued, and gates dispatch only
// routes on the dispatch role
type Guard struct {
	DB       databases.UserDatabase
	Secret   []byte
	TokenTTL time.Duration

	authenticator auth.Authenticator
	revoked       store.Cache
}

// NewGuard sets up the go-guardian strategies
func NewGuard(ctx context.Context, db databases.UserDatabase, secret string, ttl time.Duration) *Guard {
	g := &Guard{
		DB:       db,
		Secret:   []byte(secret),
		TokenTTL: ttl,
	}

	g.authenticator = auth.New()
	g.revoked = store.NewFIFO(ctx, ttl)
	basicStrategy := basic.New(g.ValidateUser, store.NewFIFO(ctx, tokenCacheTTL))
	tokenStrategy := bearer.New(g.verifyToken, store.NewFIFO(ctx, tokenCacheTTL))

	g.authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	g.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return g
}

// Middleware rejects unauthenticated requests with 401 and puts the
// authenticated user on the request. Browsers cannot set headers on a
// websocket handshake, so an access_token query parameter is accepted too.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}

		user, err := g.authenticator.Authenticate(r)
		if err != nil {
			logging.FromContext(r.Context()).Infow("unauthorized",
				"url", r.URL.Path,
				"error", err)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		logging.FromContext(r.Context()).Debugw("user authenticated", "user", user.UserName())
		next.ServeHTTP(w, auth.RequestWithUser(user, r))
	})
}

// DispatchMiddleware requires the dispatch role. It must run after Middleware.
func (g *Guard) DispatchMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.User(r)
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		if !HasGroup(user, models.RoleDispatch) {
			logging.FromContext(r.Context()).Infow("forbidden",
				"url", r.URL.Path,
				"user", user.UserName())
			writeJSONError(w, http.StatusForbidden, "forbidden", "dispatch role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HasGroup reports whether the user carries group
func HasGroup(user auth.Info, group string) bool {
	for _, g := range user.Groups() {
		if g == group {
			return true
		}
	}
	return false
}

// UserID returns the id of the authenticated user, "" when there is none
func UserID(r *http.Request) string {
	if user := auth.User(r); user != nil {
		return user.ID()
	}
	return ""
}

// ValidateUser checks basic credentials against the users collection
func (g *Guard) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	// emails are stored lower-cased
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := g.DB.FindOne(ctx, bson.M{"user.email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	emailHash := sha256.Sum256([]byte(email))
	expectedHash := sha256.Sum256([]byte(user.Details.Email))
	if subtle.ConstantTimeCompare(emailHash[:], expectedHash[:]) != 1 {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	return auth.NewDefaultUser(user.Details.Email, user.ID, user.Details.Roles, nil), nil
}

func (g *Guard) verifyToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	if _, ok, _ := g.revoked.Load(token, r); ok {
		return nil, errRevoked
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return g.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	return auth.NewDefaultUser(claims.Email, claims.Subject, claims.Roles, nil), nil
}

// IssueToken signs a JWT for user
func (g *Guard) IssueToken(user auth.Info, now time.Time) (string, time.Time, error) {
	expires := now.Add(g.TokenTTL)
	claims := Claims{
		Email: user.UserName(),
		Roles: user.Groups(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.Secret)
	return signed, expires, err
}

// CreateToken issues a bearer token for the basic authenticated user
func (g *Guard) CreateToken(w http.ResponseWriter, r *http.Request) {
	user := auth.User(r)
	if user == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	token, expires, err := g.IssueToken(user, time.Now())
	if err != nil {
		zap.S().Errorw("failed to sign token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	b, err := json.Marshal(map[string]interface{}{
		"token":     token,
		"_id":       user.ID(),
		"roles":     user.Groups(),
		"expiresAt": expires,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal", "failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// RevokeToken revokes the bearer token on the request
func (g *Guard) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" || strings.HasPrefix(token, "Basic ") {
		writeJSONError(w, http.StatusBadRequest, "badRequest", "bearer token required")
		return
	}

	if err := g.revoked.Store(token, true, r); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal", "failed to revoke token")
		return
	}
	tokenStrategy := g.authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Revoke(tokenStrategy, token, r); err != nil {
		logging.FromContext(r.Context()).Warnw("failed to evict token", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"revoked": true}`))
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	b, _ := json.Marshal(models.ErrorResponse{Success: false, Error: message, Code: code})
	w.Write(b)
}
