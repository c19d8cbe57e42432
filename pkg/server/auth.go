package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hackmesh/termhack/pkg/boltstore"
)

// Claims holds the JWT claims for an authenticated player.
type Claims struct {
	Player string `json:"player"`
	Admin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

// AuthService provides JWT-based authentication against the account
// store.
type AuthService struct {
	store  *boltstore.Store
	jwtKey []byte
	expiry time.Duration
}

// NewAuthService creates an auth service. With an empty secret a random
// 32-byte key is generated, which invalidates tokens across restarts.
func NewAuthService(store *boltstore.Store, jwtSecret string) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	return &AuthService{
		store:  store,
		jwtKey: key,
		expiry: 24 * time.Hour,
	}
}

// Login authenticates a player and returns a signed token.
func (a *AuthService) Login(name, password string) (string, error) {
	if err := CheckPassword(a.store, name, password); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	claims := Claims{
		Player: name,
		Admin:  IsAdmin(a.store, name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "termhack",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GenerateJWTSecret generates a random hex secret for the config file.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
