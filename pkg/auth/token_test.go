package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Helper to generate fresh keys for each test
func generateTestKeys(t *testing.T) ([]byte, []byte) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privBytes,
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return privPEM, pubPEM
}

func TestTokenLifecycle(t *testing.T) {
	privPEM, pubPEM := generateTestKeys(t)
	signer, err := NewSigner(privPEM, pubPEM, "test-issuer")
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	// 1. Generate
	tokenString, err := signer.GenerateToken(42, RoleBidder, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	// 2. Validate
	claims, err := signer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	// 3. Verify Claims
	if claims.UserID != 42 {
		t.Errorf("got user ID %d, want 42", claims.UserID)
	}
	if claims.Role != RoleBidder {
		t.Errorf("got role %s, want %s", claims.Role, RoleBidder)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("got issuer %s, want test-issuer", claims.Issuer)
	}
}

func TestValidatorCannotSign(t *testing.T) {
	_, pubPEM := generateTestKeys(t)
	validator, err := NewValidator(pubPEM, "test-issuer")
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	if _, err := validator.GenerateToken(42, RoleBidder, time.Hour); err == nil {
		t.Error("GenerateToken should fail without a private key")
	}
}

func TestSecurityScenarios(t *testing.T) {
	privPEM, pubPEM := generateTestKeys(t)
	signer, _ := NewSigner(privPEM, pubPEM, "test-issuer")

	signWith := func(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		tokenString, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("Failed to sign token: %v", err)
		}
		return tokenString
	}

	parseKey := func(t *testing.T, pemBytes []byte) *rsa.PrivateKey {
		t.Helper()
		block, _ := pem.Decode(pemBytes)
		pk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			t.Fatalf("Failed to parse private key: %v", err)
		}
		return pk
	}

	validClaims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 42,
		Role:   RoleBidder,
	}

	t.Run("Rejects Expired Token", func(t *testing.T) {
		expiredClaims := validClaims
		expiredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
		tokenString := signWith(t, jwt.SigningMethodRS256, parseKey(t, privPEM), expiredClaims)

		if _, err := signer.ValidateToken(tokenString); err == nil {
			t.Error("ValidateToken should have rejected expired token")
		}
	})

	t.Run("Rejects Missing Expiry", func(t *testing.T) {
		noExpClaims := validClaims
		noExpClaims.ExpiresAt = nil
		tokenString := signWith(t, jwt.SigningMethodRS256, parseKey(t, privPEM), noExpClaims)

		if _, err := signer.ValidateToken(tokenString); err == nil {
			t.Error("ValidateToken should have rejected token without expiry")
		}
	})

	t.Run("Rejects Wrong Issuer", func(t *testing.T) {
		foreignClaims := validClaims
		foreignClaims.Issuer = "someone-else"
		tokenString := signWith(t, jwt.SigningMethodRS256, parseKey(t, privPEM), foreignClaims)

		if _, err := signer.ValidateToken(tokenString); err == nil {
			t.Error("ValidateToken should have rejected wrong issuer")
		}
	})

	t.Run("Rejects Wrong Key Signature", func(t *testing.T) {
		// Sign the token with a DIFFERENT key pair
		attackerPriv, _ := generateTestKeys(t)
		tokenString := signWith(t, jwt.SigningMethodRS256, parseKey(t, attackerPriv), validClaims)

		// Try to validate with the SERVER'S public key
		if _, err := signer.ValidateToken(tokenString); err == nil {
			t.Error("ValidateToken should have rejected token signed by wrong key")
		}
	})

	t.Run("Rejects HMAC Algorithm Confusion", func(t *testing.T) {
		// This simulates an attacker changing "RS256" to "HS256"
		// and signing it with the public key as the secret.
		tokenString := signWith(t, jwt.SigningMethodHS256, []byte("some-secret"), validClaims)

		_, err := signer.ValidateToken(tokenString)
		if err == nil {
			t.Error("ValidateToken should have rejected HS256 algorithm")
		}
		expectedError := "unexpected signing method: HS256"
		if !strings.Contains(err.Error(), expectedError) {
			t.Errorf("Expected error containing %q, got: %v", expectedError, err)
		}
	})

	t.Run("Rejects Malformed Token", func(t *testing.T) {
		if _, err := signer.ValidateToken("this.is.garbage"); err == nil {
			t.Error("Should reject malformed string")
		}
	})
}

func TestNewSignerValidation(t *testing.T) {
	privPEM, pubPEM := generateTestKeys(t)

	t.Run("Fails on invalid private key", func(t *testing.T) {
		if _, err := NewSigner([]byte("not-a-pem"), pubPEM, "test-issuer"); err == nil {
			t.Error("Should fail on invalid private key")
		}
	})

	t.Run("Fails on invalid public key", func(t *testing.T) {
		if _, err := NewSigner(privPEM, []byte("not-a-pem"), "test-issuer"); err == nil {
			t.Error("Should fail on invalid public key")
		}
	})
}
