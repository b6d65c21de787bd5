package security

import (
	"crypto/subtle"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"

	"golang.org/x/crypto/bcrypt"
)

// CheckPassword compares a supplied password with a stored credential
func CheckPassword(cred model.Credential, password string) bool {
	if cred.Hashed {
		return bcrypt.CompareHashAndPassword([]byte(cred.Secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cred.Secret), []byte(password)) == 1
}

// HashPassword produces a bcrypt digest usable in ADMIN_LOGINS
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
