package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovalev/molotok/internal/domain/auction"
	"github.com/dkovalev/molotok/pkg/auth"
)

func newTestHandler() *Handler {
	return &Handler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestSigner(t *testing.T) *auth.Signer {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	signer, err := auth.NewSigner(privPEM, pubPEM, "test-issuer")
	require.NoError(t, err)
	return signer
}

func TestHandler_AdminLogin(t *testing.T) {
	signer := newTestSigner(t)
	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	adminAuth, err := auth.NewAdminAuthenticator(1, "admin", hash, signer, time.Hour)
	require.NoError(t, err)

	h := newTestHandler()
	h.adminAuth = adminAuth

	t.Run("valid credentials mint an admin token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
			strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
		rec := httptest.NewRecorder()

		h.adminLogin(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body loginResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, int64(3600), body.ExpiresIn)

		claims, err := signer.ValidateToken(body.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, claims.Role)
		assert.Equal(t, int64(1), claims.UserID)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
			strings.NewReader(`{"username":"admin","password":"wrong"}`))
		rec := httptest.NewRecorder()

		h.adminLogin(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()

		h.adminLogin(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no active auction", auction.ErrAuctionNotActive, http.StatusNotFound},
		{"auction not found", auction.ErrAuctionNotFound, http.StatusNotFound},
		{"bid not found", auction.ErrBidNotFound, http.StatusNotFound},
		{"auction expired", auction.ErrAuctionExpired, http.StatusConflict},
		{"already finished", auction.ErrAlreadyFinished, http.StatusConflict},
		{"active auction exists", auction.ErrActiveAuctionExists, http.StatusConflict},
		{"blitz unavailable", auction.ErrBlitzUnavailable, http.StatusConflict},
		{"bid auction mismatch", auction.ErrBidAuctionMismatch, http.StatusConflict},
		{"invalid bid amount", auction.ErrInvalidBidAmount, http.StatusBadRequest},
		{"invalid start price", auction.ErrInvalidStartPrice, http.StatusBadRequest},
		{"end time too soon", auction.ErrEndTimeTooSoon, http.StatusBadRequest},
		{"unknown errors stay internal", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	h := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandler_ErrorMapping_BidTooLow(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()

	h.writeError(rec, &auction.BidTooLowError{MinimumRequired: 102000})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.MinimumRequired)
	assert.Equal(t, int64(102000), *body.MinimumRequired)
}

func TestHandler_ErrorMapping_Cooldown(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()

	h.writeError(rec, &auction.CooldownActiveError{RetryAfter: 90 * time.Second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.RetryAfterSeconds)
	assert.Equal(t, int64(90), *body.RetryAfterSeconds)
}

func TestHandler_ErrorMapping_CooldownRoundsUp(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()

	// Sub-second waits still tell the client to wait at least a second.
	h.writeError(rec, &auction.CooldownActiveError{RetryAfter: 300 * time.Millisecond})

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHandler_PathUUID(t *testing.T) {
	h := newTestHandler()

	t.Run("rejects malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()

		_, ok := h.pathUUID(rec, req, "id")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepts valid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", "6a0f4f4e-4f3a-4f6e-9f4e-1a2b3c4d5e6f")
		rec := httptest.NewRecorder()

		id, ok := h.pathUUID(rec, req, "id")

		assert.True(t, ok)
		assert.Equal(t, "6a0f4f4e-4f3a-4f6e-9f4e-1a2b3c4d5e6f", id.String())
	})
}
