package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeVerifier struct {
	key APIKey
	err error
}

func (f *fakeVerifier) VerifyKey(_ context.Context, _ string) (APIKey, error) {
	return f.key, f.err
}

func TestGenerateKey(t *testing.T) {
	plaintext, hash, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, "owk_") {
		t.Fatalf("plaintext missing owk_ prefix: %q", plaintext)
	}
	if prefix != plaintext[:keyPrefixLen] {
		t.Fatalf("prefix %q does not match plaintext head", prefix)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		t.Fatalf("stored hash does not verify plaintext: %v", err)
	}

	other, _, _, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if other == plaintext {
		t.Fatal("two generated keys are identical")
	}
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(&fakeVerifier{}))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuthInvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(&fakeVerifier{err: ErrKeyNotFound}))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("X-Webhook-API-Key", "owk_bogus")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuthValidKeySetsContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keyID := uuid.New()

	var gotKeyID uuid.UUID
	router := gin.New()
	router.Use(APIKeyAuth(&fakeVerifier{key: APIKey{ID: keyID, Active: true}}))
	router.POST("/x", func(c *gin.Context) {
		gotKeyID = c.MustGet(contextKeyID).(uuid.UUID)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("X-Webhook-API-Key", "owk_valid")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotKeyID != keyID {
		t.Fatalf("key ID = %s, want %s", gotKeyID, keyID)
	}
}
