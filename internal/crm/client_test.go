package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/config"
	"gitlab.com/kantoorbase/api/call-events-service/internal/phone"
)

// fakeCRM emulates the CRM token and contact search endpoints.
type fakeCRM struct {
	mux *http.ServeMux

	tokenGrants   []string // grant_type of every token request, in order
	searchCount   int32
	searchRequest searchRequest // last search body seen
	contacts      []Contact
	reject401     int32 // number of searches to answer 401 before accepting
}

func newFakeCRM() *fakeCRM {
	f := &fakeCRM{mux: http.NewServeMux()}

	f.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.tokenGrants = append(f.tokenGrants, params["grant_type"])
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "access-token-1",
			RefreshToken: "refresh-token-1",
			ExpiresIn:    3600,
		})
	})

	f.mux.HandleFunc("/api/v1/contacts/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.searchCount, 1)
		if r.Header.Get("Authorization") != "Bearer access-token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if atomic.LoadInt32(&f.reject401) > 0 {
			atomic.AddInt32(&f.reject401, -1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&f.searchRequest); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Items: f.contacts})
	})

	return f
}

func newTestClient(t *testing.T, fake *fakeCRM) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake.mux)
	t.Cleanup(srv.Close)

	cfg := config.CRMConfig{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/oauth/token",
		ClientID:       "client-1",
		ClientSecret:   "secret",
		Username:       "svc-user",
		Password:       "svc-pass",
		RequestTimeout: 2 * time.Second,
	}
	return NewClient(cfg, zap.NewNop()), srv
}

func TestResolveByPhone_Match(t *testing.T) {
	fake := newFakeCRM()
	fake.contacts = []Contact{{ID: "crm-1", Name: "Jan de Vries", Mobile: "06-12345678"}}
	client, _ := newTestClient(t, fake)

	contact, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.NoError(t, err)
	require.NotNil(t, contact)

	assert.Equal(t, "crm-1", contact.ID)
	assert.Equal(t, "Jan de Vries", contact.Name)

	// One password grant to bootstrap the token cache.
	assert.Equal(t, []string{"password"}, fake.tokenGrants)

	// Both contact fields are probed with every canonical format.
	assert.Equal(t, "any", fake.searchRequest.Match)
	assert.Equal(t, 1, fake.searchRequest.Limit)
	require.Len(t, fake.searchRequest.Filters, 6)
	values := map[string]bool{}
	fields := map[string]bool{}
	for _, f := range fake.searchRequest.Filters {
		assert.Equal(t, "eq", f.Operator)
		values[f.Value] = true
		fields[f.Field] = true
	}
	assert.True(t, fields["phone"] && fields["mobile"])
	assert.True(t, values["0612345678"] && values["+31612345678"] && values["06-12345678"])
}

func TestResolveByPhone_NoMatch(t *testing.T) {
	fake := newFakeCRM()
	client, _ := newTestClient(t, fake)

	contact, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.NoError(t, err)
	assert.Nil(t, contact, "an empty result is a miss, not an error")
}

func TestResolveByPhone_TokenReused(t *testing.T) {
	fake := newFakeCRM()
	client, _ := newTestClient(t, fake)

	_, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.NoError(t, err)
	_, err = client.ResolveByPhone(context.Background(), phone.Normalize("0201234567"))
	require.NoError(t, err)

	assert.Equal(t, []string{"password"}, fake.tokenGrants, "second lookup reuses the cached token")
}

func TestResolveByPhone_RetriesOnceAfter401(t *testing.T) {
	fake := newFakeCRM()
	fake.contacts = []Contact{{ID: "crm-1", Name: "Jan"}}
	atomic.StoreInt32(&fake.reject401, 1)
	client, _ := newTestClient(t, fake)

	contact, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.NoError(t, err)
	require.NotNil(t, contact)

	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.searchCount), "401 triggers exactly one retry")
	assert.GreaterOrEqual(t, len(fake.tokenGrants), 2, "the rejected token is renewed before the retry")
}

func TestResolveByPhone_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-token-1", ExpiresIn: 3600})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.CRMConfig{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/oauth/token",
		RequestTimeout: 2 * time.Second,
	}
	client := NewClient(cfg, zap.NewNop())

	_, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestResolveByPhone_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listens anymore

	cfg := config.CRMConfig{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/oauth/token",
		RequestTimeout: time.Second,
	}
	client := NewClient(cfg, zap.NewNop())

	_, err := client.ResolveByPhone(context.Background(), phone.Normalize("0612345678"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestTokenCache_RefreshGrantPreferred(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		grants = append(grants, params["grant_type"])
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "token-" + params["grant_type"],
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		})
	}))
	defer srv.Close()

	cache := NewTokenCache(srv.URL, "client-1", "secret", "user", "pass", srv.Client())

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-password", token)

	// A 401 from the API invalidates the access token; renewal then goes
	// through the refresh grant, not a full re-authentication.
	cache.Invalidate()
	token, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-refresh_token", token)

	assert.Equal(t, []string{"password", "refresh_token"}, grants)
}
