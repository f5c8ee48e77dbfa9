package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims carries the user id issued at login. Subject is preferred when both are set.
type Claims struct {
	UserID any `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed tokens and yields the caller identity.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, ErrNoToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	subject := claims.Subject
	if subject == "" {
		subject = userID(claims.UserID)
	}
	if subject == "" {
		return model.Identity{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return model.Identity{Subject: subject}, nil
}

func userID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case float64: // numeric JSON ids decode as float64
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// Issue signs a token for subject. Used by operators and tests to mint credentials.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
