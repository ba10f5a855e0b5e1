package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinAdminPasswordLen is the shortest password accepted for a back-office
// account.
const MinAdminPasswordLen = 8

var ErrWeakPassword = errors.New("password must be at least 8 characters")

// HashPassword hashes an administrator password for the users table.  A
// BCRYPT_COST outside bcrypt's range falls back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if len(plain) < MinAdminPasswordLen {
		return "", ErrWeakPassword
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.  A
// malformed hash never matches.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
