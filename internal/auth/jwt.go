// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package auth provides JWT token creation and validation for the session
// manager. Authentication is an opaque "token → claims" step here: password
// verification and user provisioning are owned by the surrounding system.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token validation. All of them mean the connection must
// be rejected before any room subscription occurs.
var (
	// ErrNoCredentials indicates the token was missing entirely.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates the token was malformed or its
	// signature check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates the token was valid but expired.
	ErrExpiredCredentials = errors.New("expired credentials")
)

// Claims represents the JWT claims carried by a Courier token.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager handles JWT token creation and validation using HMAC-SHA256.
type Manager struct {
	secret  []byte
	timeout time.Duration
}

// NewManager creates a token manager with the given signing secret and
// session timeout. The secret is stored as []byte; config validation
// enforces the minimum length before this point.
func NewManager(secret string, timeout time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &Manager{
		secret:  []byte(secret),
		timeout: timeout,
	}, nil
}

// GenerateToken creates a signed token for an authenticated user. The token
// is valid for the configured session timeout.
func (m *Manager) GenerateToken(userID, name, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a raw token string and extracts the user claims.
//
// Tokens signed with an unexpected algorithm are rejected to prevent
// algorithm confusion attacks. Expired tokens map to ErrExpiredCredentials;
// everything else malformed maps to ErrInvalidCredentials.
func (m *Manager) ValidateToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrNoCredentials
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
