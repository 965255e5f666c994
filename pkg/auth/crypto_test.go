package auth

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "supersecret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	// The format is $argon2id$v=19$m=65536,t=1,p=4$SALT$HASH, which splits
	// into 6 parts including the empty lead.
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Expected 6 parts, got %d. Parts: %v", len(parts), parts)
	}

	if parts[1] != "argon2id" {
		t.Errorf("Expected algo 'argon2id', got '%s'", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected version 'v=19', got '%s'", parts[2])
	}
	if parts[3] != "m=65536,t=1,p=4" {
		t.Errorf("Unexpected params: %s", parts[3])
	}
	if len(parts[4]) == 0 {
		t.Error("Salt component is empty")
	}
	if len(parts[5]) == 0 {
		t.Error("Hashed key component is empty")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "correct-horse-battery-staple"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	match, err := VerifyPassword(hash, password)
	if err != nil {
		t.Errorf("VerifyPassword error with correct password: %v", err)
	}
	if !match {
		t.Error("VerifyPassword returned false for correct password")
	}

	match, err = VerifyPassword(hash, "wrong-password")
	if err != nil {
		t.Errorf("VerifyPassword error with wrong password: %v", err)
	}
	if match {
		t.Error("VerifyPassword returned true for wrong password")
	}

	if _, err = VerifyPassword("not-a-hash", password); err == nil {
		t.Error("Expected error for invalid hash format, got nil")
	}
}

func TestVerifyPassword_EdgeCases(t *testing.T) {
	validHash, _ := HashPassword("password")
	parts := strings.Split(validHash, "$")

	tests := []struct {
		name string
		hash string
	}{
		{
			name: "Too few parts",
			hash: "$argon2id$v=19$m=65536,t=1,p=4$salt",
		},
		{
			name: "Malformed version",
			hash: "$argon2id$v=xyz$m=65536,t=1,p=4$salt$hash",
		},
		{
			name: "Incompatible version",
			hash: "$argon2id$v=99$m=65536,t=1,p=4$salt$hash",
		},
		{
			name: "Malformed parameters",
			hash: "$argon2id$v=19$m=abc,t=1,p=4$" + parts[4] + "$" + parts[5],
		},
		{
			name: "Invalid salt base64",
			hash: "$argon2id$v=19$m=65536,t=1,p=4$invalid-salt!$" + parts[5],
		},
		{
			name: "Invalid hash base64",
			hash: "$argon2id$v=19$m=65536,t=1,p=4$" + parts[4] + "$invalid-hash!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := VerifyPassword(tt.hash, "password")
			if err == nil {
				t.Error("Expected error, got nil")
			}
			if match {
				t.Error("Expected match=false, got true")
			}
		})
	}
}
