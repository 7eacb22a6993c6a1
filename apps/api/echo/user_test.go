package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/skillsharp/lms/apps/api/echo"
	"github.com/skillsharp/lms/core/user"
	emailsvc "github.com/skillsharp/lms/services/email"
	"github.com/skillsharp/lms/tests"
)

func TestRegister(t *testing.T) {
	resetDB()
	testutil.CreateUser(t, usrRepo, "Taken", "taken@example.com", testutil.Password, user.RoleStudent, true)

	newUser := func(name, email, pwd, role string) []byte {
		return marchallObj(t, user.NewUser{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd, Role: role})
	}

	tests := []httpTest{
		{
			name:     "duplicate email",
			body:     newUser("Someone", "TAKEN@example.com", testutil.Password, ""),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, errResp(
				"a user with this email already exists",
				"email", "a user with this email already exists",
			)),
		},
		{
			name:     "admin signup",
			body:     newUser("Mallory", "mallory@example.com", testutil.Password, user.RoleAdmin),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "role", "invalid role")),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/auth/register"
	}
	runHTTPTests(t, tests)

	t.Run("missing fields", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/register", "", []byte(`{}`))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var resp httpErr
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, "Validation failed", resp.Message)
		assert.Equal(t, "this field is required", resp.Errors["name"])
		assert.Equal(t, "this field is required", resp.Errors["email"])
		assert.Contains(t, resp.Errors, "password")
	})

	t.Run("weak password", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/register", "", newUser("Weak", "weak@example.com", "12345678", ""))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var resp httpErr
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, "Validation failed", resp.Message)
		assert.Contains(t, resp.Errors, "password")
	})

	t.Run("success", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		rec := serve(http.MethodPost, "/api/auth/register", "", newUser(" Ada Lovelace ", "Ada@Example.com", testutil.Password, user.RoleInstructor))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshalBody(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "User registered successfully", resp.Message)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "Ada Lovelace", resp.User.Name)
		assert.Equal(t, "ada@example.com", resp.User.Email)
		assert.Equal(t, user.RoleInstructor, resp.User.Role)
		assert.True(t, resp.User.IsActive)

		msg, ok := emailsvc.LastSentMessage()
		require.True(t, ok, "welcome email not sent")
		assert.Equal(t, "ada@example.com", msg.To[0].Address)
		assert.Equal(t, "welcome", msg.TemplateName)

		// the token authenticates the new user
		rec = serve(http.MethodGet, "/api/auth/me", resp.Token)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestLogin(t *testing.T) {
	resetDB()
	testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "Bob", "bob@example.com", testutil.Password, user.RoleStudent, false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: pwd})
	}

	tests := []httpTest{
		{
			name:     "missing password",
			body:     login("alice@example.com", ""),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "password", "this field is required")),
		},
		{
			name:     "unknown email",
			body:     login("nobody@example.com", testutil.Password),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Invalid credentials")),
		},
		{
			name:     "wrong password",
			body:     login("alice@example.com", "wrong-Passw0rd"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Invalid credentials")),
		},
		{
			name:     "deactivated account",
			body:     login("bob@example.com", testutil.Password),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errResp("Account is deactivated")),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/auth/login"
	}
	runHTTPTests(t, tests)

	t.Run("success", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/login", "", login(" ALICE@example.com ", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshalBody(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Message)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "alice@example.com", resp.User.Email)
		assert.False(t, resp.User.LastLogin.IsZero())
	})
}

func TestAuthMiddleware(t *testing.T) {
	resetDB()
	alice := testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)
	bob := testutil.CreateUser(t, usrRepo, "Bob", "bob@example.com", testutil.Password, user.RoleStudent, true)
	bobToken := getToken(t, bob)

	expired := GetUserClaims(alice, conf)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(expired, conf)
	require.NoError(t, err)

	// tokens of deleted users are rejected
	ghost := testutil.CreateUser(t, usrRepo, "Ghost", "ghost@example.com", testutil.Password, user.RoleStudent, true)
	ghostToken := getToken(t, ghost)
	require.NoError(t, usrRepo.DeleteUser(context.Background(), ghost.ID))

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "malformed token", token: "not-a-jwt", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "expired token", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "deleted user", token: ghostToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "valid token", token: bobToken},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/api/auth/me"
	}
	runHTTPTests(t, tests)

	t.Run("deactivated user", func(t *testing.T) {
		_, err := usrSvc.SetActive(context.Background(), bob.ID, false)
		require.NoError(t, err)

		rec := serve(http.MethodGet, "/api/auth/me", bobToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRefreshToken(t *testing.T) {
	resetDB()
	usr := testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)

	stale := GetUserClaims(usr, conf, time.Now().Add(-conf.Server.JWTRefreshExpirationDelta-time.Minute).Unix())
	staleToken, err := GenerateToken(stale, conf)
	require.NoError(t, err)

	t.Run("refresh expired", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/token-refresh", staleToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, errResp("Refresh has expired")))
		assert.NoError(t, err)
		assert.True(t, ok, rec.Body.String())
	})

	t.Run("success", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/token-refresh", getToken(t, usr))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Success bool   `json:"success"`
			Token   string `json:"token"`
		}
		unmarshalBody(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Token)
	})
}

func TestUpdateMe(t *testing.T) {
	resetDB()
	usr := testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)
	token := getToken(t, usr)

	t.Run("wrong current password", func(t *testing.T) {
		body := []byte(`{"current_password":"nope","password":"N3w-Passw0rd!","password_confirm":"N3w-Passw0rd!"}`)
		rec := serve(http.MethodPut, "/api/auth/me", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, errResp(
			"Validation failed",
			"current_password", "current password is incorrect",
		)))
		assert.NoError(t, err)
		assert.True(t, ok, rec.Body.String())
	})

	t.Run("profile and password", func(t *testing.T) {
		body := []byte(`{"name":"Alice Smith","bio":"  Learner  ","current_password":"` + testutil.Password +
			`","password":"N3w-Passw0rd!","password_confirm":"N3w-Passw0rd!"}`)
		rec := serve(http.MethodPut, "/api/auth/me", token, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		updated := reloadUser(t, usr.ID)
		assert.Equal(t, "Alice Smith", updated.Name)
		assert.Equal(t, "Learner", updated.Bio)
		assert.NoError(t, updated.CheckPassword("N3w-Passw0rd!"))
	})
}

func TestPasswordReset(t *testing.T) {
	resetDB()
	usr := testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)

	t.Run("unknown email", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/password-reset", "", []byte(`{"email":"nobody@example.com"}`))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, emailsvc.SentMessages)
	})

	rec := serve(http.MethodPost, "/api/auth/password-reset", "", []byte(`{"email":"alice@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok, "password reset email not sent")
	assert.Equal(t, "passwordReset", msg.TemplateName)
	data, ok := msg.TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, _ := data["UID"].(string)
	token, _ := data["Token"].(string)
	require.NotEmpty(t, uid)
	require.NotEmpty(t, token)

	confirm := func(uid, token, pwd string) []byte {
		return marchallObj(t, user.ResetUserPassword{UID: uid, Token: token, Password: pwd, PasswordConfirm: pwd})
	}

	tests := []httpTest{
		{
			name:     "invalid token",
			body:     confirm(uid, "bad-token", "N3w-Passw0rd!"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "token", "the password reset link is invalid or has expired")),
		},
		{
			name:     "invalid uid",
			body:     confirm("bad-uid", token, "N3w-Passw0rd!"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "token", "the password reset link is invalid or has expired")),
		},
		{
			name:     "success",
			body:     confirm(uid, token, "N3w-Passw0rd!"),
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "Password has been reset with the new password."}),
		},
		{
			name:     "token reused",
			body:     confirm(uid, token, "An0ther-Passw0rd!"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "token", "the password reset link is invalid or has expired")),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/auth/password-reset-confirm"
	}
	runHTTPTests(t, tests)

	reloaded := reloadUser(t, usr.ID)
	assert.NoError(t, reloaded.CheckPassword("N3w-Passw0rd!"))
}

func TestLeaderboard(t *testing.T) {
	resetDB()
	ctx := context.Background()
	low := testutil.CreateUser(t, usrRepo, "Low", "low@example.com", testutil.Password, user.RoleStudent, true)
	high := testutil.CreateUser(t, usrRepo, "High", "high@example.com", testutil.Password, user.RoleStudent, true)
	_, err := usrSvc.AwardPoints(ctx, low.ID, 10, nil)
	require.NoError(t, err)
	_, err = usrSvc.AwardPoints(ctx, high.ID, 600, nil)
	require.NoError(t, err)

	rec := serve(http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success     bool          `json:"success"`
		Leaderboard []user.Public `json:"leaderboard"`
	}
	unmarshalBody(t, rec, &resp)
	require.Len(t, resp.Leaderboard, 2)
	assert.Equal(t, high.ID, resp.Leaderboard[0].ID)
	assert.Equal(t, 600, resp.Leaderboard[0].Points)
	assert.Contains(t, resp.Leaderboard[0].Badges, user.BadgeBronzeLearner)
	assert.Equal(t, low.ID, resp.Leaderboard[1].ID)
}
