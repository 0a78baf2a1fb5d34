package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/cache"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
	storagemocks "github.com/pulseops-lab/pulseops/internal/mocks/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *cache.Memory {
	t.Helper()
	c, err := cache.NewMemory(100, time.Hour)
	require.NoError(t, err)
	return c
}

func TestAPIKeyAuthenticator_CacheFirst(t *testing.T) {
	keys := storagemocks.NewAPIKeyStore(t)
	keys.EXPECT().
		LookupAPIKey(mock.Anything, "pk_live_1").
		Return(&storage.APIKeyRecord{ID: "k1", OrgID: "orgA", ProjectID: "p1", Active: true}, nil).
		Once()

	var hits, misses int
	a := NewAPIKeyAuthenticator(keys, newCache(t), time.Minute)
	a.SetCacheObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	for i := 0; i < 3; i++ {
		p, err := a.Authenticate(context.Background(), "pk_live_1")
		require.NoError(t, err)
		require.Equal(t, Principal{KeyID: "k1", OrgID: "orgA", ProjectID: "p1"}, p)
	}
	require.Equal(t, 2, hits)
	require.Equal(t, 1, misses)
}

func TestAPIKeyAuthenticator_InvalidateForcesStoreLookup(t *testing.T) {
	keys := storagemocks.NewAPIKeyStore(t)
	keys.EXPECT().
		LookupAPIKey(mock.Anything, "pk_live_1").
		Return(&storage.APIKeyRecord{ID: "k1", OrgID: "orgA", Active: true}, nil).
		Once()
	keys.EXPECT().
		LookupAPIKey(mock.Anything, "pk_live_1").
		Return(nil, storage.ErrNotFound).
		Once()

	a := NewAPIKeyAuthenticator(keys, newCache(t), time.Minute)

	_, err := a.Authenticate(context.Background(), "pk_live_1")
	require.NoError(t, err)

	require.NoError(t, a.Invalidate(context.Background(), "pk_live_1"))

	_, err = a.Authenticate(context.Background(), "pk_live_1")
	require.ErrorIs(t, err, httperr.ErrInvalidCredential)
}

func TestAPIKeyAuthenticator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rec     *storage.APIKeyRecord
		err     error
		wantErr error
	}{
		{name: "unknown key", err: storage.ErrNotFound, wantErr: httperr.ErrInvalidCredential},
		{name: "inactive key", rec: &storage.APIKeyRecord{ID: "k1", OrgID: "orgA", Active: false}, wantErr: httperr.ErrInvalidCredential},
		{name: "store down", err: errors.New("connection refused"), wantErr: httperr.ErrTransient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			keys := storagemocks.NewAPIKeyStore(t)
			keys.EXPECT().LookupAPIKey(mock.Anything, "pk").Return(tc.rec, tc.err).Once()

			a := NewAPIKeyAuthenticator(keys, newCache(t), time.Minute)
			_, err := a.Authenticate(context.Background(), "pk")
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAPIKeyAuthenticator_MissingCredentialSkipsLookup(t *testing.T) {
	keys := storagemocks.NewAPIKeyStore(t)
	a := NewAPIKeyAuthenticator(keys, newCache(t), time.Minute)

	_, err := a.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, httperr.ErrMissingCredential)
}

func TestAPIKeyAuthenticator_ConcurrentMissesShareOneLookup(t *testing.T) {
	release := make(chan struct{})
	keys := storagemocks.NewAPIKeyStore(t)
	keys.EXPECT().
		LookupAPIKey(mock.Anything, "pk_live_1").
		RunAndReturn(func(context.Context, string) (*storage.APIKeyRecord, error) {
			<-release
			return &storage.APIKeyRecord{ID: "k1", OrgID: "orgA", Active: true}, nil
		}).
		Once()

	a := NewAPIKeyAuthenticator(keys, nil, time.Minute)

	var wg sync.WaitGroup
	started := make(chan struct{}, 8)
	orgs := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			p, err := a.Authenticate(context.Background(), "pk_live_1")
			if err != nil {
				orgs <- err.Error()
				return
			}
			orgs <- p.OrgID
		}()
	}
	for i := 0; i < 8; i++ {
		<-started
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(orgs)

	for org := range orgs {
		require.Equal(t, "orgA", org)
	}
}

func TestAPIKeyAuthenticator_CacheKeyHidesCredential(t *testing.T) {
	k := cacheKeyFor("pk_live_secret")
	require.NotContains(t, k, "pk_live_secret")
	require.Equal(t, k, cacheKeyFor("pk_live_secret"))
}

func TestLoadStaticAuthenticator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keys:
  - key: "pk_static_1"
    org_id: "orgA"
    project_id: "p1"
  - key: "pk_static_2"
    org_id: "orgB"
`), 0o644))

	a, err := LoadStaticAuthenticator(path)
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), "pk_static_1")
	require.NoError(t, err)
	require.Equal(t, "orgA", p.OrgID)
	require.Equal(t, "p1", p.ProjectID)

	_, err = a.Authenticate(context.Background(), "pk_nope")
	require.ErrorIs(t, err, httperr.ErrInvalidCredential)

	_, err = a.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, httperr.ErrMissingCredential)
}

func TestLoadStaticAuthenticator_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	missingOrg := filepath.Join(dir, "missing_org.yaml")
	require.NoError(t, os.WriteFile(missingOrg, []byte("keys:\n  - key: \"k\"\n"), 0o644))
	_, err := LoadStaticAuthenticator(missingOrg)
	require.ErrorContains(t, err, "needs key and org_id")

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("keys:\n  - key: \"k\"\n    org_id: \"a\"\n  - key: \"k\"\n    org_id: \"b\"\n"), 0o644))
	_, err = LoadStaticAuthenticator(dup)
	require.ErrorContains(t, err, "repeats a key")

	_, err = LoadStaticAuthenticator(filepath.Join(dir, "absent.yaml"))
	require.ErrorContains(t, err, "failed to read keys file")
}

func TestDisabledAuthenticator_AcceptsEverything(t *testing.T) {
	a := NewDisabledAuthenticator(Principal{OrgID: "dev-org", ProjectID: "dev-project"})
	p, err := a.Authenticate(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "dev-org", p.OrgID)
}

type stubAuthenticator struct {
	principal Principal
	err       error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (Principal, error) {
	return s.principal, s.err
}

func (s stubAuthenticator) Invalidate(context.Context, string) error { return nil }

func TestMiddleware_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		auth      stubAuthenticator
		wantCode  int
		wantError string
	}{
		{name: "authenticated", auth: stubAuthenticator{principal: Principal{OrgID: "orgA"}}, wantCode: http.StatusOK},
		{name: "missing", auth: stubAuthenticator{err: httperr.ErrMissingCredential}, wantCode: http.StatusUnauthorized, wantError: httperr.HttpMissingCredential},
		{name: "invalid", auth: stubAuthenticator{err: httperr.ErrInvalidCredential}, wantCode: http.StatusForbidden, wantError: httperr.HttpInvalidCredential},
		{name: "lookup failure", auth: stubAuthenticator{err: httperr.ErrTransient}, wantCode: http.StatusInternalServerError, wantError: httperr.HttpInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", Middleware(tc.auth, "x-api-key"), func(c *gin.Context) {
				p, ok := PrincipalFrom(c)
				require.True(t, ok)
				c.String(http.StatusOK, p.OrgID)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			require.Equal(t, tc.wantCode, resp.Code)
			if tc.wantError != "" {
				var errResp httperr.ErrorResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
				require.Equal(t, tc.wantError, errResp.ErrorType)
			} else {
				require.Equal(t, "orgA", resp.Body.String())
			}
		})
	}
}
