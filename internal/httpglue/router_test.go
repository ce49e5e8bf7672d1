package httpglue

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdav/caldavd/internal/acl"
	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/dav"
	"github.com/hearthdav/caldavd/internal/metrics"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/push"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/internal/syncengine"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	cfg := &config.Config{
		HTTP: config.HTTPConfig{MaxICSBytes: 1 << 20, MaxVCFBytes: 1 << 20},
		Auth: config.AuthConfig{ArgonTime: 1, ArgonMemoryKiB: 64, ArgonThreads: 1, ArgonKeyLen: 32, ArgonSaltLen: 16},
	}
	s := store.NewMemoryStore()

	hash, err := auth.ParamsFromConfig(cfg.Auth).Hash("secret")
	require.NoError(t, err)
	require.NoError(t, s.PutPrincipal(context.Background(), &model.Principal{ID: "alice", Kind: model.PrincipalIndividual, PasswordHash: hash}))

	logger := zerolog.Nop()
	authn := auth.NewAuthenticator(s, cfg.Auth, logger)
	dispatcher := push.NewDispatcher(s, config.PushConfig{}, logger, metrics.PushDropCounter{})
	sync := syncengine.New(s, dispatcher)
	handlers := dav.NewHandlers(s, acl.NewOwnershipACL(), authn, sync, cfg.HTTP, logger)
	router := NewRouter(cfg, s, handlers, logger)

	return httptest.NewServer(router), s
}

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestWellKnownRedirects(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/.well-known/caldav")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/caldav/", resp.Header.Get("Location"))

	resp2, err := client.Get(srv.URL + "/.well-known/carddav")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp2.StatusCode)
	assert.Equal(t, "/carddav/", resp2.Header.Get("Location"))
}

func TestOptions_IsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest("OPTIONS", srv.URL+"/caldav/principal/alice", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("DAV"))
}

func TestGet_RequiresAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/caldav/principal/alice", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestGet_SucceedsWithValidBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/caldav/principal/alice", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGet_WrongPasswordRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/caldav/principal/alice", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", basicAuthHeader("alice", "wrong"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
