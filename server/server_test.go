package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edustack/go-access-server/access"
	"github.com/edustack/go-access-server/audit"
	"github.com/edustack/go-access-server/identity"
	"github.com/edustack/go-access-server/identity/identityfakes"
	"github.com/edustack/go-access-server/internal/config"
	"github.com/edustack/go-access-server/magiclink"
	"github.com/edustack/go-access-server/ratelimit"
	"github.com/edustack/go-access-server/server"
	"github.com/edustack/go-access-server/sessions"
	"github.com/edustack/go-access-server/token"
)

const testAdminKey = "admin-test-key"

// testConfig keeps env-var lookups out of the tests.
type testConfig struct {
	config.EnvVars
	config.Security
	config.RateLimit
	config.SSO
	config.Store
	adminKey string
}

func (testConfig) GetEnv() string                 { return "TEST" }
func (c testConfig) GetAdminAPIKey() string       { return c.adminKey }
func (testConfig) GetMagicLinkTTL() time.Duration { return time.Hour }

type testFixture struct {
	srv      *httptest.Server
	store    *sessions.MemoryStore
	links    *magiclink.Service
	verifier *identityfakes.FakeVerifier
	sso      *identityfakes.FakeSSOFlow
}

func setupTestFixture(t *testing.T, limit int) *testFixture {
	return setupFixtureWithConfig(t, limit, testConfig{adminKey: testAdminKey})
}

func setupFixtureWithConfig(t *testing.T, limit int, cfg testConfig) *testFixture {
	t.Helper()

	store := sessions.NewMemoryStore()
	links, err := magiclink.NewService(magiclink.NewMemoryStore())
	require.NoError(t, err)

	verifier := identityfakes.NewFakeVerifier()
	sso := identityfakes.NewFakeSSOFlow("https://idp.example.com/authorize")
	codec := token.NewCodec("server-test-secret", 15*time.Minute)
	guard := sessions.NewPinningGuard(store, "server-test-salt")

	resolver, err := access.NewResolver(access.Deps{
		Sessions: store,
		Links:    links,
		Identity: verifier,
		Codec:    codec,
		Audit:    audit.NopSink{},
	}, guard, "https://content.example.com")
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		KeyPrefix: "test:rl:",
		Limit:     limit,
		Window:    time.Minute,
	}, ratelimit.NewLocalStore())

	s, err := server.New(cfg, resolver, store, links, sso, limiter, audit.NopSink{}, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	return &testFixture{srv: srv, store: store, links: links, verifier: verifier, sso: sso}
}

// noRedirectClient returns redirects to the caller instead of following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	return resp
}

func accessTokenCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" {
			return c
		}
	}
	t.Fatal("access_token cookie not set")
	return nil
}

func TestContentAccess_SSO(t *testing.T) {
	f := setupTestFixture(t, 100)
	f.verifier.Accept("sso-token-1", identity.Identity{Subject: "user-1"})

	resp := postJSON(t, f.srv.URL+"/content/access", map[string]string{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
		"courseId":     "c1",
		"idToken":      "sso-token-1",
	}, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "https://content.example.com/launch/scorm/enrollment-1", body["contentUrl"])
	require.Equal(t, "sso", body["authMethod"])

	cookie := accessTokenCookie(t, resp)
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)

	// SSO sessions are never device-bound.
	sess, err := f.store.FindOrCreate(context.Background(), "enrollment-1", sessions.ContentTypeScorm)
	require.NoError(t, err)
	require.False(t, sess.Pinned())
}

func TestContentAccess_NoCredentials(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp := postJSON(t, f.srv.URL+"/content/access", map[string]string{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
	}, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMagicLink_RedirectsIntoContent(t *testing.T) {
	f := setupTestFixture(t, 100)

	raw, err := f.links.Issue(context.Background(), "user-1", "enrollment-1", "c1", time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/content/magic?link="+raw+"&type=scorm", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("User-Agent", "agent-1")

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "https://content.example.com/launch/scorm/enrollment-1", resp.Header.Get("Location"))
	accessTokenCookie(t, resp)

	// First access pins the session to the device.
	sess, err := f.store.FindOrCreate(context.Background(), "enrollment-1", sessions.ContentTypeScorm)
	require.NoError(t, err)
	require.True(t, sess.Pinned())
}

func TestMagicLink_ReplayEndsOnAccessDenied(t *testing.T) {
	f := setupTestFixture(t, 100)

	raw, err := f.links.Issue(context.Background(), "user-1", "enrollment-1", "c1", time.Hour)
	require.NoError(t, err)

	open := func(ip string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/content/magic?link="+raw, nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set("User-Agent", "agent-1")
		resp, err := noRedirectClient().Do(req)
		require.NoError(t, err)
		return resp
	}

	first := open("198.51.100.7")
	defer first.Body.Close()
	require.Equal(t, http.StatusSeeOther, first.StatusCode)

	replay := open("203.0.113.9")
	defer replay.Body.Close()
	require.Equal(t, http.StatusSeeOther, replay.StatusCode)
	require.Equal(t, "/access-denied", replay.Header.Get("Location"))
}

func TestContentAccess_StolenTokenFromOtherDevice(t *testing.T) {
	f := setupTestFixture(t, 100)

	raw, err := f.links.Issue(context.Background(), "user-1", "enrollment-1", "c1", time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/content/magic?link="+raw, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("User-Agent", "agent-1")
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	cookie := accessTokenCookie(t, resp)

	// Same token replayed from a different address is a hard denial.
	stolen := postJSON(t, f.srv.URL+"/content/access", map[string]string{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
	}, map[string]string{
		"X-Forwarded-For": "203.0.113.9",
		"User-Agent":      "agent-1",
		"Authorization":   "Bearer " + cookie.Value,
	})
	defer stolen.Body.Close()
	require.Equal(t, http.StatusForbidden, stolen.StatusCode)
}

func TestProgress_CompletionUpdatesSession(t *testing.T) {
	f := setupTestFixture(t, 100)
	f.verifier.Accept("sso-token-1", identity.Identity{Subject: "user-1"})

	grantResp := postJSON(t, f.srv.URL+"/content/access", map[string]string{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
		"idToken":      "sso-token-1",
	}, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	defer grantResp.Body.Close()
	cookie := accessTokenCookie(t, grantResp)

	resp := postJSON(t, f.srv.URL+"/content/progress", map[string]any{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
		"state": map[string]any{
			"cmi": map[string]any{
				"core": map[string]any{
					"lesson_status": "passed",
					"score":         map[string]any{"raw": 85.0},
					"total_time":    "00:42:10",
				},
			},
		},
	}, map[string]string{
		"X-Forwarded-For": "198.51.100.7",
		"Authorization":   "Bearer " + cookie.Value,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status    string `json:"status"`
		Completed bool   `json:"completed"`
		Summary   struct {
			CompletionStatus *string  `json:"completionStatus"`
			SuccessStatus    *string  `json:"successStatus"`
			ScoreRaw         *float64 `json:"scoreRaw"`
		} `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Completed)
	require.Equal(t, sessions.StatusCompleted, body.Status)
	require.NotNil(t, body.Summary.ScoreRaw)
	require.Equal(t, 85.0, *body.Summary.ScoreRaw)

	sess, err := f.store.FindOrCreate(context.Background(), "enrollment-1", sessions.ContentTypeScorm)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, sess.Status)
}

func TestProgress_WithoutTokenIsRejected(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp := postJSON(t, f.srv.URL+"/content/progress", map[string]any{
		"enrollmentId": "enrollment-1",
		"contentType":  "scorm",
		"state":        map[string]any{},
	}, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit_ExhaustionReturns429(t *testing.T) {
	f := setupTestFixture(t, 2)

	var last *http.Response
	for i := 0; i < 3; i++ {
		if last != nil {
			last.Body.Close()
		}
		last = postJSON(t, f.srv.URL+"/content/access", map[string]string{
			"enrollmentId": "enrollment-1",
			"contentType":  "scorm",
		}, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	}
	defer last.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	require.NotEmpty(t, last.Header.Get("Retry-After"))
	require.Equal(t, "2", last.Header.Get("X-RateLimit-Limit"))
	require.Equal(t, "0", last.Header.Get("X-RateLimit-Remaining"))
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	f := setupTestFixture(t, 1)

	for _, ip := range []string{"198.51.100.7", "203.0.113.9"} {
		resp := postJSON(t, f.srv.URL+"/content/access", map[string]string{
			"enrollmentId": "enrollment-1",
			"contentType":  "scorm",
		}, map[string]string{"X-Forwarded-For": ip})
		// 401: unauthenticated but not throttled.
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func ssoFlowCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "sso_flow" {
			return c
		}
	}
	t.Fatal("sso_flow cookie not set")
	return nil
}

func TestSSOLogin_RedirectsToProvider(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp, err := noRedirectClient().Get(f.srv.URL + "/auth/sso?enrollment=enrollment-1&type=scorm")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	cookie := ssoFlowCookie(t, resp)
	state := strings.SplitN(cookie.Value, "|", 3)[0]
	require.NotEmpty(t, state)
	require.Equal(t, "https://idp.example.com/authorize?state="+state, resp.Header.Get("Location"))
}

func TestSSOLogin_RequiresEnrollment(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp, err := noRedirectClient().Get(f.srv.URL + "/auth/sso")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/error", resp.Header.Get("Location"))
}

func TestSSOCallback_LandsInContent(t *testing.T) {
	f := setupTestFixture(t, 100)
	f.verifier.Accept("id-token-1", identity.Identity{Subject: "user-1"})
	f.sso.Grant("code-1", "id-token-1")

	start, err := noRedirectClient().Get(f.srv.URL + "/auth/sso?enrollment=enrollment-1")
	require.NoError(t, err)
	start.Body.Close()
	flow := ssoFlowCookie(t, start)
	state := strings.SplitN(flow.Value, "|", 3)[0]

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/auth/callback?code=code-1&state="+state, nil)
	require.NoError(t, err)
	req.AddCookie(flow)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "https://content.example.com/launch/scorm/enrollment-1", resp.Header.Get("Location"))
	accessTokenCookie(t, resp)
}

func TestSSOCallback_StateMismatchIsDenied(t *testing.T) {
	f := setupTestFixture(t, 100)
	f.sso.Grant("code-1", "id-token-1")

	start, err := noRedirectClient().Get(f.srv.URL + "/auth/sso?enrollment=enrollment-1")
	require.NoError(t, err)
	start.Body.Close()
	flow := ssoFlowCookie(t, start)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/auth/callback?code=code-1&state=forged", nil)
	require.NoError(t, err)
	req.AddCookie(flow)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/access-denied", resp.Header.Get("Location"))
}

func TestSSOCallback_UnknownCodeGoesToLogin(t *testing.T) {
	f := setupTestFixture(t, 100)

	start, err := noRedirectClient().Get(f.srv.URL + "/auth/sso?enrollment=enrollment-1")
	require.NoError(t, err)
	start.Body.Close()
	flow := ssoFlowCookie(t, start)
	state := strings.SplitN(flow.Value, "|", 3)[0]

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/auth/callback?code=unknown&state="+state, nil)
	require.NoError(t, err)
	req.AddCookie(flow)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/auth/login", resp.Header.Get("Location"))
}

func TestAdminIssueLink_MintedLinkRedeems(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp := postJSON(t, f.srv.URL+"/admin/links", map[string]any{
		"userId":       "user-1",
		"enrollmentId": "enrollment-1",
		"courseId":     "c1",
	}, map[string]string{"Authorization": "Bearer " + testAdminKey})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Link      string `json:"link"`
		MagicURL  string `json:"magicUrl"`
		ExpiresIn int    `json:"expiresIn"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Link)
	require.Equal(t, "/content/magic?link="+body.Link, body.MagicURL)
	require.Equal(t, 3600, body.ExpiresIn)

	// The minted link walks in through the learner entry point.
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/content/magic?link="+body.Link, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("User-Agent", "agent-1")

	redeem, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer redeem.Body.Close()

	require.Equal(t, http.StatusSeeOther, redeem.StatusCode)
	require.Equal(t, "https://content.example.com/launch/scorm/enrollment-1", redeem.Header.Get("Location"))
}

func TestAdminIssueLink_RequiresKey(t *testing.T) {
	f := setupTestFixture(t, 100)

	body := map[string]any{"userId": "user-1", "enrollmentId": "enrollment-1"}

	missing := postJSON(t, f.srv.URL+"/admin/links", body, nil)
	defer missing.Body.Close()
	require.Equal(t, http.StatusUnauthorized, missing.StatusCode)

	wrong := postJSON(t, f.srv.URL+"/admin/links", body, map[string]string{"Authorization": "Bearer wrong-key"})
	defer wrong.Body.Close()
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
}

func TestAdminIssueLink_DisabledWithoutKey(t *testing.T) {
	f := setupFixtureWithConfig(t, 100, testConfig{})

	resp := postJSON(t, f.srv.URL+"/admin/links", map[string]any{
		"userId":       "user-1",
		"enrollmentId": "enrollment-1",
	}, map[string]string{"Authorization": "Bearer anything"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdminIssueLink_ValidatesBody(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp := postJSON(t, f.srv.URL+"/admin/links", map[string]any{
		"userId": "user-1",
	}, map[string]string{"Authorization": "Bearer " + testAdminKey})
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	f := setupTestFixture(t, 100)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
