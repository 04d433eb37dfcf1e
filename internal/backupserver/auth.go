package backupserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edilcheck/edilcheck/internal/remote"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const accountKey contextKey = "account"

type loginResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

func accountFrom(ctx context.Context) string {
	account, _ := ctx.Value(accountKey).(string)
	return account
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var cred types.Credentials
	if err := decodeJSON(w, r, &cred); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	cred.Email = strings.ToLower(strings.TrimSpace(cred.Email))
	if err := cred.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), cred.Email, cred.Name, string(hash))
	if errors.Is(err, ErrEmailTaken) {
		respondWithError(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		s.internalError(w, "create user", err)
		return
	}

	s.logger.Printf("Registered %s", user.Email)
	respondWithJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var cred types.Credentials
	if err := decodeJSON(w, r, &cred); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := s.authenticate(r.Context(), cred.Email, cred.Password)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.issueToken(user.Email)
	if err != nil {
		s.internalError(w, "issue token", err)
		return
	}
	respondWithJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw, ok := bearerToken(r); ok {
		if claims, err := s.parseToken(raw); err == nil && claims.ExpiresAt != nil {
			s.revoke(claims.ID, claims.ExpiresAt.Time)
		}
	}
	respondWithJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _, err := s.store.UserByEmail(r.Context(), accountFrom(r.Context()))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// authMiddleware resolves the request account from a bearer token or from
// the credential headers, and rejects the request when neither is valid.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var account string

		if raw, ok := bearerToken(r); ok {
			claims, err := s.parseToken(raw)
			if err != nil || s.isRevoked(claims.ID) {
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			account = claims.Subject
		} else {
			email := r.Header.Get(remote.HeaderEmail)
			password := r.Header.Get(remote.HeaderPassword)
			if email == "" || password == "" {
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			user, err := s.authenticate(r.Context(), email, password)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
				return
			}
			account = user.Email
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticate(ctx context.Context, email, password string) (*types.User, error) {
	user, hash, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Server) issueToken(email string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (s *Server) revoke(id string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for jti, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[id] = expires
}

func (s *Server) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}
