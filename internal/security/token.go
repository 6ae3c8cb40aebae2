package security

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// RenterClaims are the claims of the bearer token the core API mints at
// login. This gateway only validates and forwards; it never issues tokens.
type RenterClaims struct {
	UserID int32  `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type TokenValidator interface {
	Validate(tokenString string) (*RenterClaims, error)
}

type tokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) TokenValidator {
	return &tokenValidator{
		secret: []byte(secret),
	}
}

func (v *tokenValidator) Validate(tokenString string) (*RenterClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RenterClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*RenterClaims); ok && token.Valid {
		// Populate UserID from Subject if the issuer only set the subject
		if claims.UserID == 0 && claims.Subject != "" {
			uid, _ := strconv.Atoi(claims.Subject)
			claims.UserID = int32(uid)
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
