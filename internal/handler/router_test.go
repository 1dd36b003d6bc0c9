package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/repository/memory"
	"github.com/agrotrack/plotmanager/internal/security"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
	"github.com/agrotrack/plotmanager/internal/service"
)

type testAPI struct {
	handler http.Handler
	auth    *service.AuthService
	store   *memory.Store
}

func newTestAPI(t *testing.T, plots domain.PlotRepository) *testAPI {
	t.Helper()
	store := memory.NewStore()
	if plots == nil {
		plots = store.Plots()
	}

	tokens, err := auth.NewTokenManager(auth.SessionConfig{Secret: "handler-test-secret", Environment: auth.EnvironmentDev})
	require.NoError(t, err)
	revoked := auth.NewMemoryRevocationList()
	guard := security.NewGuard(nil)
	auditLog := audit.NewLogger(nil)

	authSvc := service.NewAuthService(store.Users(), auth.NewBcryptHasher(bcrypt.MinCost), tokens, revoked, auditLog, nil)
	users := service.NewUserService(store.Users(), store.Profiles(), guard, auditLog, nil)
	plotSvc := service.NewPlotService(plots, guard, domain.NewStatusSet(nil, "unsown"), auditLog, nil)

	h := NewRouter(Deps{
		Auth:               authSvc,
		Users:              users,
		Plots:              plotSvc,
		Identity:           service.NewIdentityResolver(tokens, store.Users(), revoked, nil),
		Tokens:             tokens,
		Audit:              auditLog,
		Store:              store,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	})
	return &testAPI{handler: h, auth: authSvc, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func registerBody(username string) map[string]any {
	return map[string]any{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "secret1",
		"firstName": "Ana",
		"lastName":  "Diaz",
	}
}

// signup registers and logs in, returning the principal id and token
func (a *testAPI) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/register", registerBody(username), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[MessageResponse](t, rec).ID
	return id, a.login(t, username)
}

func (a *testAPI) login(t *testing.T, username string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/login", map[string]string{"username": username, "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[LoginResponse](t, rec).Token
}

func (a *testAPI) signupAdmin(t *testing.T, username string) (string, string) {
	t.Helper()
	in := service.RegisterInput{Username: username, Email: username + "@example.com", Password: "secret1", FirstName: "Root", LastName: "Admin"}
	u, err := a.auth.CreateAdmin(context.Background(), in)
	require.NoError(t, err)
	return u.ID, a.login(t, username)
}

func plotBody() map[string]any {
	return map[string]any{
		"name":                "North field",
		"location":            map[string]any{"address": "Ruta 5 km 12", "lat": -34.6, "lng": -58.4},
		"cropType":            "soy",
		"area":                12.5,
		"sowingDate":          "2026-03-01",
		"expectedHarvestDate": "2026-08-01",
	}
}

func TestCreatedPlotIsOwnedByRequester(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, token := api.signup(t, "alice")
	bobID, _ := api.signup(t, "bob")

	body := plotBody()
	body["owner"] = bobID
	body["ownerId"] = bobID
	body["user_id"] = bobID

	rec := api.do(t, http.MethodPost, "/api/plots", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Plot](t, rec)
	assert.Equal(t, aliceID, created.OwnerID)
	assert.Equal(t, domain.PlotStatus("unsown"), created.Status)

	rec = api.do(t, http.MethodGet, "/api/plots/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aliceID, decode[domain.Plot](t, rec).OwnerID)

	rec = api.do(t, http.MethodPut, "/api/plots", plotBody(), token)
	assert.Equal(t, http.StatusCreated, rec.Code, "PUT on the collection also creates")
}

func TestForeignUpdateIsForbiddenAndLeavesPlotUnchanged(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, alice := api.signup(t, "alice")
	_, bob := api.signup(t, "bob")
	_, admin := api.signupAdmin(t, "root")

	rec := api.do(t, http.MethodPost, "/api/plots", plotBody(), alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	plot := decode[domain.Plot](t, rec)
	path := "/api/plots/" + plot.ID

	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		rec = api.do(t, method, path, map[string]any{"name": "Stolen", "ownerId": "x"}, bob)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NotEmpty(t, decode[ErrorResponse](t, rec).Message)
	}
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, path, nil, bob).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, path, nil, bob).Code)

	rec = api.do(t, http.MethodGet, path, nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, plot, decode[domain.Plot](t, rec))

	rec = api.do(t, http.MethodPatch, path, map[string]any{"name": "Admin edit", "ownerId": "x"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Plot](t, rec)
	assert.Equal(t, "Admin edit", updated.Name)
	assert.Equal(t, aliceID, updated.OwnerID)
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	api := newTestAPI(t, nil)

	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/plots"},
		{http.MethodGet, "/api/my-plots"},
		{http.MethodPost, "/api/plots"},
		{http.MethodGet, "/api/users"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := api.do(t, tc.method, tc.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Message)
		})
	}

	rec := api.do(t, http.MethodGet, "/api/me", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOnlyListings(t *testing.T) {
	api := newTestAPI(t, nil)
	_, alice := api.signup(t, "alice")
	_, admin := api.signupAdmin(t, "root")

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/plots", nil, alice).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/users", nil, alice).Code)

	rec := api.do(t, http.MethodGet, "/api/users", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Len(t, decode[[]domain.User](t, rec), 2)
}

func TestAdminPlotListingNamesOwners(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, alice := api.signup(t, "alice")
	_, admin := api.signupAdmin(t, "root")

	rec := api.do(t, http.MethodPost, "/api/plots", plotBody(), alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[domain.Plot](t, rec).ID

	want := &domain.PlotOwner{ID: aliceID, Username: "alice", Email: "alice@example.com"}

	rec = api.do(t, http.MethodGet, "/api/plots", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	plots := decode[[]domain.Plot](t, rec)
	require.Len(t, plots, 1)
	assert.Equal(t, want, plots[0].Owner)

	rec = api.do(t, http.MethodGet, "/api/plots/"+id, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, decode[domain.Plot](t, rec).Owner)
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestUserViewsEmbedProfile(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, alice := api.signup(t, "alice")
	_, admin := api.signupAdmin(t, "root")

	rec := api.do(t, http.MethodGet, "/api/users/"+aliceID, nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.UserDetail](t, rec)
	assert.Equal(t, "alice", got.Username)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "Ana", got.Profile.FirstName)

	rec = api.do(t, http.MethodGet, "/api/users", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")
	for _, u := range decode[[]domain.UserDetail](t, rec) {
		require.NotNil(t, u.Profile, u.Username)
		assert.Equal(t, u.ID, u.Profile.UserID)
	}
}

func TestSoftDeletedPlotIsNotFound(t *testing.T) {
	api := newTestAPI(t, nil)
	_, alice := api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/plots", plotBody(), alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[domain.Plot](t, rec).ID

	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/api/plots/"+id, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/plots/"+id, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/plots/"+id, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/plots/does-not-exist", nil, alice).Code)

	rec = api.do(t, http.MethodGet, "/api/plots/me", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.Plot](t, rec))
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "alice")

	wrongPassword := api.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "nope-nope"}, "")
	unknownUser := api.do(t, http.MethodPost, "/api/login", map[string]string{"username": "ghost", "password": "secret1"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Empty(t, wrongPassword.Result().Cookies())
}

func TestLoginSetsSessionCookieAndCookieAuthenticates(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[LoginResponse](t, rec)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "alice", body.User.Username)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, auth.CookieName, c.Name)
	assert.Equal(t, body.Token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: body.Token})
	me := httptest.NewRecorder()
	api.handler.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "alice", decode[domain.User](t, me).Username)
}

func TestLogoutIsIdempotentAndRevokes(t *testing.T) {
	api := newTestAPI(t, nil)
	_, token := api.signup(t, "alice")

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/me", nil, token).Code)

	for i := 0; i < 2; i++ {
		rec := api.do(t, http.MethodPost, "/api/logout", nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	}
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/logout", nil, "").Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/me", nil, token).Code)
}

func TestDeletedPrincipalLosesAccess(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, token := api.signup(t, "alice")

	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/api/users/"+aliceID, nil, token).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/me", nil, token).Code)

	rec := api.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/register", registerBody("alice"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "username already taken", decode[ErrorResponse](t, rec).Message)

	bad := registerBody("bo")
	bad["password"] = "123"
	rec = api.do(t, http.MethodPost, "/api/register", bad, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "username")
	assert.Contains(t, resp.Fields, "password")

	rec = api.do(t, http.MethodPost, "/api/register", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "body")
}

func TestRegisterCannotSelfPromote(t *testing.T) {
	api := newTestAPI(t, nil)
	body := registerBody("mallory")
	body["role"] = "admin"
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/register", body, "").Code)

	token := api.login(t, "mallory")
	rec := api.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoleUser, decode[domain.User](t, rec).Role)
}

func TestProfileEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	aliceID, alice := api.signup(t, "alice")
	_, bob := api.signup(t, "bob")

	rec := api.do(t, http.MethodGet, "/api/my-profile", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aliceID, decode[domain.Profile](t, rec).UserID)

	path := "/api/users/" + aliceID + "/profile"
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPatch, path, map[string]any{"firstName": "Eve"}, bob).Code)

	rec = api.do(t, http.MethodPatch, path, map[string]any{"firstName": "Anabel"}, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Anabel", decode[domain.Profile](t, rec).FirstName)

	rec = api.do(t, http.MethodGet, path, nil, bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Anabel", decode[domain.Profile](t, rec).FirstName)
}

func TestChangePasswordEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	_, token := api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/change-password",
		map[string]string{"currentPassword": "secret1", "newPassword": "better1"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "better1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNonJSONContentTypeIsRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("username=alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Message)
}

type brokenPlots struct{ domain.PlotRepository }

func (brokenPlots) ListByOwner(context.Context, string) ([]*domain.Plot, error) {
	return nil, errors.New("pq: password authentication failed for user \"plotmanager\"")
}

func TestInternalErrorsDoNotLeakCause(t *testing.T) {
	api := newTestAPI(t, brokenPlots{})
	_, token := api.signup(t, "alice")

	rec := api.do(t, http.MethodGet, "/api/my-plots", nil, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, rec).Message)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Checks["database"])
	assert.Equal(t, "not configured", ready.Checks["redis"])
}

func TestResponsesCarryRequestID(t *testing.T) {
	api := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-me", rec.Header().Get("X-Request-ID"))
}
