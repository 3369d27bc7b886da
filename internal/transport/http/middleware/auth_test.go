package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
	"github.com/coinvendo/gateway/internal/usecase"
)

type fakeSourceRepo struct {
	sources map[string]domain.Source
}

func (f *fakeSourceRepo) Upsert(ctx context.Context, source domain.Source) error {
	f.sources[source.ID] = source
	return nil
}

func (f *fakeSourceRepo) FindByID(ctx context.Context, id string) (*domain.Source, error) {
	src, ok := f.sources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &src, nil
}

func (f *fakeSourceRepo) List(ctx context.Context) ([]domain.Source, error) {
	out := make([]domain.Source, 0, len(f.sources))
	for _, s := range f.sources {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSourceRepo) Touch(ctx context.Context, id string) error {
	src, ok := f.sources[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	src.LastSeenAt = &now
	f.sources[id] = src
	return nil
}

type fakeSourceAuth struct {
	secrets map[string]string
}

func (f *fakeSourceAuth) Verify(ctx context.Context, sourceID, presentedSecret string) (bool, error) {
	return f.secrets[sourceID] == presentedSecret, nil
}

func (f *fakeSourceAuth) HashSecret(secret string) (string, error) {
	return secret, nil
}

func newAuthTestRegistry() *usecase.SourceRegistry {
	repo := &fakeSourceRepo{sources: map[string]domain.Source{
		"hardware": {ID: "hardware", Kind: domain.SourceKindLocal, Enabled: true},
		"sub1":     {ID: "sub1", Kind: domain.SourceKindRemote, Enabled: true},
	}}
	auth := &fakeSourceAuth{secrets: map[string]string{"sub1": "correct-secret"}}
	return usecase.NewSourceRegistry(repo, auth, zap.NewNop())
}

func TestRequireSourceSecretAllowsLocalSourceWithoutHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/:source_id/pulse", RequireSourceSecret(newAuthTestRegistry()), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/hardware/pulse", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for local source, got %d", rr.Code)
	}
}

func TestRequireSourceSecretRejectsWrongSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/:source_id/pulse", RequireSourceSecret(newAuthTestRegistry()), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/sub1/pulse", nil)
	req.Header.Set(subVendoKeyHeader, "wrong-secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong secret, got %d", rr.Code)
	}
}

func TestRequireSourceSecretAllowsRemoteSourceWithCorrectSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/:source_id/pulse", RequireSourceSecret(newAuthTestRegistry()), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/sub1/pulse", nil)
	req.Header.Set(subVendoKeyHeader, "correct-secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with the correct secret, got %d", rr.Code)
	}
}

func TestRequireSourceSecretRejectsUnknownSource(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/:source_id/pulse", RequireSourceSecret(newAuthTestRegistry()), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/unknown/pulse", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unknown source, got %d", rr.Code)
	}
}
