package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/look4regev/agent-tool-protocol-sub002"
)

// Claims is the JWT payload for a session token. A new token is minted on
// every request (sliding rotation) carrying the same SessionID/ClientID but
// a fresh expiry, and returned to the caller via a response header.
type Claims struct {
	jwt.RegisteredClaims
	SessionID atp.SessionID `json:"sid"`
	ClientID  atp.ClientID  `json:"cid"`
}

// ErrInvalidToken covers every token verification failure: bad signature,
// malformed claims, or expiry.
var ErrInvalidToken = errors.New("session: invalid token")

// TokenService issues and verifies session tokens with a single symmetric
// signing key.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService builds a TokenService. secret must be non-empty; callers
// get it from config.Config.SigningSecret.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue mints a fresh signed token for the given session/client pair.
func (s *TokenService) Issue(sessionID atp.SessionID, clientID atp.ClientID) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		SessionID: sessionID,
		ClientID:  clientID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify parses and validates a token, returning its claims. Only HS256 is
// accepted; any other "alg" header is rejected outright rather than
// dispatched dynamically, closing the classic JWT algorithm-confusion hole.
func (s *TokenService) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Rotate verifies raw and, if valid, issues a fresh token for the same
// session/client with an extended expiry — the sliding-rotation contract
// every authenticated request relies on.
func (s *TokenService) Rotate(raw string) (string, Claims, error) {
	claims, err := s.Verify(raw)
	if err != nil {
		return "", Claims{}, err
	}
	next, err := s.Issue(claims.SessionID, claims.ClientID)
	if err != nil {
		return "", Claims{}, err
	}
	return next, claims, nil
}
