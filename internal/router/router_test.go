package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingledger/internal/auth"
	"lendingledger/internal/handler"
	"lendingledger/internal/logging"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
	"lendingledger/internal/router"
	"lendingledger/internal/service"
	"lendingledger/internal/testutil"
)

// memoryTokenStore is an in-process deny-list standing in for Redis.
type memoryTokenStore struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (s *memoryTokenStore) RevokeAccessToken(_ context.Context, tokenID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = true
	return nil
}

func (s *memoryTokenStore) IsAccessTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[tokenID], nil
}

type testServer struct {
	t *testing.T
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, logging.Discard())
}

func newTestServerWithLogger(t *testing.T, log logrus.FieldLogger) *testServer {
	t.Helper()
	gormDB := testutil.NewDB(t)

	userRepo := repository.NewUserRepository(gormDB)
	loanItemRepo := repository.NewLoanItemRepository(gormDB)
	modeStore := repository.NewMemoryModeStore(model.DefaultMode)

	authService := service.NewAuthService(
		userRepo,
		auth.NewJWTService("test-secret", 30*time.Minute),
		&memoryTokenStore{revoked: map[string]bool{}},
		log,
	)
	userService := service.NewUserService(userRepo, log)
	loanService := service.NewLoanService(loanItemRepo, userRepo, modeStore, log)
	modeService := service.NewModeService(modeStore, userRepo, log)

	_, err := userService.CreateInitialAdmin(context.Background(), "admin")
	require.NoError(t, err)

	e := echo.New()
	router.Register(
		e,
		log,
		authService,
		service.NewPhoneValidator(),
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewLoanItemHandler(loanService),
		handler.NewModeHandler(modeService),
	)
	return &testServer{t: t, e: e}
}

// do sends a request. body may be nil, a raw JSON string, or a value to marshal.
func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(router.AccessTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.LoginResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.AuthToken)
	return resp.AuthToken
}

func (s *testServer) register(username, password string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/users", "", map[string]string{
		"username": username,
		"password": password,
		"phone":    "+441234567890",
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) createItem(token, id, description string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/loan-items", token, map[string]string{"id": id, "description": description})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"error": message}, decode(t, rec))
}

func itemIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.LoanItemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ids := make([]string, 0, len(resp.LoanItems))
	for _, item := range resp.LoanItems {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestLoanLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	admin := s.login("admin", "admin")
	bob := s.login("bob", "password")

	rec := s.do(http.MethodPost, "/loan-items", admin, map[string]string{"id": "1", "description": "wheelbarrow"})
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decode(t, rec)["loan-item"].(map[string]interface{})
	assert.Equal(t, "1", item["id"])
	assert.Equal(t, "wheelbarrow", item["description"])
	assert.Nil(t, item["loanedto"])

	rec = s.do(http.MethodPut, "/loan-items/1", bob, `{"loanedto": "bob"}`)
	assertError(t, rec, http.StatusForbidden, "Not authorized.")

	rec = s.do(http.MethodPut, "/loan-items/1", admin, `{"loanedto": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item = decode(t, rec)["loan-item"].(map[string]interface{})
	assert.Equal(t, "bob", item["loanedto"])

	rec = s.do(http.MethodDelete, "/loan-items/1", admin, nil)
	assertError(t, rec, http.StatusForbidden, "Cannot delete loan item that is loaned.")

	rec = s.do(http.MethodPut, "/loan-items/1", admin, `{"loanedto": null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item = decode(t, rec)["loan-item"].(map[string]interface{})
	assert.Nil(t, item["loanedto"])

	rec = s.do(http.MethodDelete, "/loan-items/1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Loan item successfully deleted.", body["message"])
	assert.Equal(t, "1", body["loan-item"].(map[string]interface{})["id"])

	rec = s.do(http.MethodGet, "/loan-items/1", admin, nil)
	assertError(t, rec, http.StatusNotFound, "Loan item not found.")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/loan-items", "", nil)
		assertError(t, rec, http.StatusUnauthorized, "Invalid or missing token.")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/loan-items", "not-a-jwt", nil)
		assertError(t, rec, http.StatusUnauthorized, "Invalid or missing token.")
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "nope"})
		assertError(t, rec, http.StatusUnauthorized, "Wrong username or password.")
	})

	t.Run("malformed login body", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/login", "", `{"username": "admin"}`)
		assertError(t, rec, http.StatusBadRequest, "Invalid request.")
	})

	t.Run("logout revokes token", func(t *testing.T) {
		token := s.login("admin", "admin")
		rec := s.do(http.MethodGet, "/mode", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(http.MethodPost, "/logout", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(http.MethodGet, "/mode", token, nil)
		assertError(t, rec, http.StatusUnauthorized, "Invalid or missing token.")
	})

	t.Run("token of deleted user", func(t *testing.T) {
		s.register("carol", "pw")
		carol := s.login("carol", "pw")
		admin := s.login("admin", "admin")
		rec := s.do(http.MethodDelete, "/users/carol", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(http.MethodGet, "/loan-items", carol, nil)
		assertError(t, rec, http.StatusUnauthorized, "Invalid or missing token.")
	})
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	admin := s.login("admin", "admin")
	bob := s.login("bob", "password")

	t.Run("register rejects duplicates and bad phones", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/users", "", map[string]string{
			"username": "bob", "password": "x", "phone": "+441234567890",
		})
		assertError(t, rec, http.StatusBadRequest, "User already exists.")

		rec = s.do(http.MethodPost, "/users", "", map[string]string{
			"username": "dave", "password": "x", "phone": "12345",
		})
		assertError(t, rec, http.StatusBadRequest, "Invalid request.")
	})

	t.Run("listing is admin only", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/users", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp handler.UsersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.UserPublic{Username: "bob", Role: model.RoleRegular, Phone: "+441234567890"}, resp.Users["bob"])
		assert.Equal(t, model.RoleAdmin, resp.Users["admin"].Role)

		rec = s.do(http.MethodGet, "/users", bob, nil)
		assertError(t, rec, http.StatusForbidden, "Not authorized.")
	})

	t.Run("read self or as admin", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/users/bob", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", decode(t, rec)["user"].(map[string]interface{})["username"])

		rec = s.do(http.MethodGet, "/users/admin", bob, nil)
		assertError(t, rec, http.StatusForbidden, "Not authorized.")

		rec = s.do(http.MethodGet, "/users/nobody", admin, nil)
		assertError(t, rec, http.StatusNotFound, "User not found.")
	})

	t.Run("update bodies", func(t *testing.T) {
		tests := []struct {
			name       string
			token      string
			target     string
			body       string
			wantStatus int
			wantError  string
		}{
			{"empty object", bob, "bob", `{}`, http.StatusBadRequest, "Invalid request."},
			{"two fields", bob, "bob", `{"password": "a", "phone": "+441234567890"}`, http.StatusBadRequest, "Invalid request."},
			{"unknown field", bob, "bob", `{"nickname": "bobby"}`, http.StatusBadRequest, "Invalid request."},
			{"non string value", bob, "bob", `{"password": 12}`, http.StatusBadRequest, "Invalid request."},
			{"bad phone", bob, "bob", `{"phone": "0000"}`, http.StatusBadRequest, "Invalid request."},
			{"bad role", admin, "bob", `{"role": "superuser"}`, http.StatusBadRequest, "Invalid request."},
			{"initial admin role", admin, "admin", `{"role": "regular"}`, http.StatusBadRequest, "Can't change admin username or role."},
			{"role by regular user", bob, "bob", `{"role": "admin"}`, http.StatusForbidden, "Not authorized."},
			{"other user's password", bob, "admin", `{"password": "x"}`, http.StatusForbidden, "Not authorized."},
			{"missing target", admin, "nobody", `{"phone": "+441234567890"}`, http.StatusNotFound, "User not found."},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := s.do(http.MethodPut, "/users/"+tt.target, tt.token, tt.body)
				assertError(t, rec, tt.wantStatus, tt.wantError)
			})
		}
	})

	t.Run("successful updates", func(t *testing.T) {
		rec := s.do(http.MethodPut, "/users/bob", bob, `{"phone": "+14155550123"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "+14155550123", decode(t, rec)["user"].(map[string]interface{})["phone"])

		rec = s.do(http.MethodPut, "/users/bob", bob, `{"password": "new-password"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Password successfully changed.", decode(t, rec)["message"])
		s.login("bob", "new-password")

		rec = s.do(http.MethodPut, "/users/bob", admin, `{"role": "admin"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "admin", decode(t, rec)["user"].(map[string]interface{})["role"])

		// The role is looked up per request, so bob's old token is now admin.
		rec = s.do(http.MethodGet, "/users", bob, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("initial admin cannot be deleted", func(t *testing.T) {
		rec := s.do(http.MethodDelete, "/users/admin", admin, nil)
		assertError(t, rec, http.StatusBadRequest, "Can't change admin username or role.")
	})
}

func TestDeleteUserReturnsItems(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	admin := s.login("admin", "admin")
	s.createItem(admin, "1", "wheelbarrow")

	rec := s.do(http.MethodPut, "/loan-items/1", admin, `{"loanedto": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodDelete, "/users/bob", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "User successfully deleted.", body["message"])
	assert.Equal(t, "bob", body["user"].(map[string]interface{})["username"])

	rec = s.do(http.MethodGet, "/loan-items/1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["loan-item"].(map[string]interface{})["loanedto"])
}

func TestLoanItemQueries(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	admin := s.login("admin", "admin")
	bob := s.login("bob", "password")

	s.createItem(admin, "1", "Wheelbarrow")
	s.createItem(admin, "2", "Ladder")
	s.createItem(admin, "3", "Small barrow")
	s.createItem(admin, "4", "100% cotton sheet")
	rec := s.do(http.MethodPut, "/loan-items/3", admin, `{"loanedto": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"1", "2", "3", "4"}},
		{"limit", "?limit=2", []string{"1", "2"}},
		{"limit and offset", "?limit=2&offset=1", []string{"2", "3"}},
		{"leading zeros", "?limit=002&offset=03", []string{"4"}},
		{"contains is case-insensitive", "?contains=BARROW", []string{"1", "3"}},
		{"percent is literal", "?contains=0%25", []string{"4"}},
		{"underscore is literal", "?contains=_", []string{}},
		{"loanedto", "?loanedto=bob", []string{"3"}},
		{"combined", "?loanedto=bob&contains=ladder", []string{}},
		{"unknown key beside known key", "?limit=1&sort=desc", []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itemIDs(t, s.do(http.MethodGet, "/loan-items"+tt.query, bob, nil)))
		})
	}

	for _, query := range []string{"?sort=desc", "?limit=-1", "?offset=abc", "?limit=1.5"} {
		t.Run("rejects "+query, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/loan-items"+query, bob, nil)
			assertError(t, rec, http.StatusBadRequest, "Invalid request.")
		})
	}
}

func TestLoanItemRequests(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	admin := s.login("admin", "admin")
	bob := s.login("bob", "password")
	s.createItem(admin, "1", "wheelbarrow")

	t.Run("create", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/loan-items", admin, map[string]string{"id": "1", "description": "again"})
		assertError(t, rec, http.StatusConflict, "Loan item already exists.")

		rec = s.do(http.MethodPost, "/loan-items", bob, map[string]string{"id": "9", "description": "rake"})
		assertError(t, rec, http.StatusForbidden, "Not authorized.")

		rec = s.do(http.MethodPost, "/loan-items", admin, `{"id": "9"}`)
		assertError(t, rec, http.StatusBadRequest, "Invalid request.")
	})

	t.Run("read is admin only", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/loan-items/1", bob, nil)
		assertError(t, rec, http.StatusForbidden, "Not authorized.")
	})

	t.Run("update bodies", func(t *testing.T) {
		tests := []struct {
			name       string
			body       string
			wantStatus int
			wantError  string
		}{
			{"empty object", `{}`, http.StatusBadRequest, "Invalid request."},
			{"no body", ``, http.StatusBadRequest, "Invalid request."},
			{"extra key", `{"loanedto": "bob", "note": "x"}`, http.StatusBadRequest, "Invalid request."},
			{"wrong key", `{"loaned_to": "bob"}`, http.StatusBadRequest, "Invalid request."},
			{"number", `{"loanedto": 5}`, http.StatusBadRequest, "Invalid request."},
			{"empty username", `{"loanedto": ""}`, http.StatusBadRequest, "Invalid request."},
			{"unknown holder", `{"loanedto": "nobody"}`, http.StatusNotFound, "User not found."},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := s.do(http.MethodPut, "/loan-items/1", admin, tt.body)
				assertError(t, rec, tt.wantStatus, tt.wantError)
			})
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		rec := s.do(http.MethodPut, "/loan-items/404", admin, `{"loanedto": "bob"}`)
		assertError(t, rec, http.StatusNotFound, "Loan item not found.")

		rec = s.do(http.MethodDelete, "/loan-items/404", admin, nil)
		assertError(t, rec, http.StatusNotFound, "Loan item not found.")
	})
}

func TestMode(t *testing.T) {
	s := newTestServer(t)
	s.register("bob", "password")
	s.register("sally", "cats")
	admin := s.login("admin", "admin")
	bob := s.login("bob", "password")
	sally := s.login("sally", "cats")
	s.createItem(admin, "1", "wheelbarrow")

	rec := s.do(http.MethodGet, "/mode", bob, nil)
	assertError(t, rec, http.StatusForbidden, "Not authorized.")

	rec = s.do(http.MethodGet, "/mode", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-operated", decode(t, rec)["mode"])

	rec = s.do(http.MethodPut, "/mode", admin, `{"mode": "anarchy"}`)
	assertError(t, rec, http.StatusBadRequest, "Invalid request.")

	rec = s.do(http.MethodPut, "/mode", bob, `{"mode": "self-service"}`)
	assertError(t, rec, http.StatusForbidden, "Not authorized.")

	rec = s.do(http.MethodPut, "/mode", admin, `{"mode": "self-service"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "self-service", decode(t, rec)["mode"])

	// Self-service lets a regular user take an available item.
	rec = s.do(http.MethodPut, "/loan-items/1", bob, `{"loanedto": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Once loaned, only an admin may change the holder.
	rec = s.do(http.MethodPut, "/loan-items/1", bob, `{"loanedto": null}`)
	assertError(t, rec, http.StatusForbidden, "Not authorized.")
	rec = s.do(http.MethodPut, "/loan-items/1", sally, `{"loanedto": "sally"}`)
	assertError(t, rec, http.StatusForbidden, "Not authorized.")
}

func TestInfrastructureRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = s.do(http.MethodGet, "/no-such-route", "", nil)
	assertError(t, rec, http.StatusNotFound, "Not Found")
}

func TestRequestLogCarriesErrorCode(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	s := newTestServerWithLogger(t, log)
	admin := s.login("admin", "admin")
	hook.Reset()

	rec := s.do(http.MethodGet, "/loan-items/404", admin, nil)
	assertError(t, rec, http.StatusNotFound, "Loan item not found.")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "UNKNOWN_LOAN_ITEM", entry.Data["error_code"])
	assert.Equal(t, "admin", entry.Data["username"])

	hook.Reset()
	rec = s.do(http.MethodGet, "/loan-items", "", nil)
	assertError(t, rec, http.StatusUnauthorized, "Invalid or missing token.")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "INVALID_TOKEN", hook.LastEntry().Data["error_code"])

	hook.Reset()
	rec = s.do(http.MethodGet, "/nowhere", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "HTTP_404", hook.LastEntry().Data["error_code"])

	hook.Reset()
	s.do(http.MethodGet, "/healthz", "", nil)
	require.NotNil(t, hook.LastEntry())
	assert.NotContains(t, hook.LastEntry().Data, "error_code")
}
