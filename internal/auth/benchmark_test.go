package auth_test

import (
	"testing"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/adapter/security"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
)

func BenchmarkCheckPassword_Plain(b *testing.B) {
	cred := model.Credential{Username: "abc", Secret: "SuperSecurePassword123!"}
	for i := 0; i < b.N; i++ {
		if !security.CheckPassword(cred, "SuperSecurePassword123!") {
			b.Fatal("password mismatch")
		}
	}
}

func BenchmarkCheckPassword_Bcrypt(b *testing.B) {
	hash, err := security.HashPassword("SuperSecurePassword123!")
	if err != nil {
		b.Fatalf("bcrypt error: %v", err)
	}
	cred := model.Credential{Username: "abc", Secret: hash, Hashed: true}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !security.CheckPassword(cred, "SuperSecurePassword123!") {
			b.Fatal("password mismatch")
		}
	}
}
