package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

	"github.com/campuscoin/campuscoin/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Jane Roe", "stu100", "jane@test.test", "s3cr3tpwd", user.StudentRoles, true)
	app.createUser(t, "Lazy Bob", "stu101", "bob@test.test", "s3cr3tpwd", user.StudentRoles, false)

	pending := app.createUser(t, "Pending Prof", "prof100", "pending@test.test", "s3cr3tpwd", user.TeacherRoles, false)
	setApproval(t, app, pending, user.ApprovalPending)
	rejected := app.createUser(t, "Rejected Prof", "prof101", "rejected@test.test", "s3cr3tpwd", user.TeacherRoles, false)
	setApproval(t, app, rejected, user.ApprovalRejected)

	body := func(studentID, pwd string) []byte {
		return marchallObj(t, LoginRequest{StudentID: studentID, Password: pwd})
	}

	tests := []httpTest{
		{
			name: "unknown student ID", body: body("nobody", "s3cr3tpwd"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: body("stu100", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: body("stu101", "s3cr3tpwd"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "pending teacher", body: body("prof100", "s3cr3tpwd"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "rejected teacher", body: body("prof101", "s3cr3tpwd"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account request was rejected"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body("stu100", "s3cr3tpwd"))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.NotEmpty(t, resp.Token)

		claims := new(Claims)
		_, err := jwt.ParseWithClaims(resp.Token, claims, func(token *jwt.Token) (interface{}, error) {
			return app.conf.SecretKey, nil
		})
		if err != nil {
			t.Fatalf("parsing token failed: %v", err)
		}
		assert.Equal(t, student.ID, claims.Subject)
		assert.Equal(t, "stu100", claims.StudentID)
		assert.True(t, claims.IsStudent)
		assert.False(t, claims.IsAdmin)
	})

	t.Run("login by email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body("jane@test.test", "s3cr3tpwd"))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)

	t.Run("student registration", func(t *testing.T) {
		body := marchallObj(t, user.Register{
			Name:            "Jane Roe",
			StudentID:       "stu200",
			Email:           "jane200@test.test",
			Password:        "s3cr3tpwd",
			PasswordConfirm: "s3cr3tpwd",
			Role:            "student",
			Course:          "Agriculture",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, user.ApprovalApproved, usr.ApprovalStatus)
		assert.Zero(t, usr.Balance)
	})

	t.Run("student without course", func(t *testing.T) {
		body := marchallObj(t, user.Register{
			Name:            "No Course",
			StudentID:       "stu201",
			Email:           "nocourse@test.test",
			Password:        "s3cr3tpwd",
			PasswordConfirm: "s3cr3tpwd",
			Role:            "student",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course": "course is required for students"}),
		}, rec)
	})

	t.Run("duplicate student ID", func(t *testing.T) {
		body := marchallObj(t, user.Register{
			Name:            "Copy Cat",
			StudentID:       "stu200",
			Email:           "copycat@test.test",
			Password:        "s3cr3tpwd",
			PasswordConfirm: "s3cr3tpwd",
			Role:            "student",
			Course:          "Agriculture",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": user.ErrStudentIDExists.Error()}),
		}, rec)
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Jane Roe", "stu300", "jane300@test.test", "s3cr3tpwd", user.StudentRoles, true)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Get me", token: app.getToken(t, student), wantCode: http.StatusOK, wantData: marchallObj(t, student)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Jane Roe", "stu400", "jane400@test.test", "s3cr3tpwd", user.StudentRoles, true)
	admin := app.createUser(t, "Admin", "admin", "admin@test.test", "s3cr3tpwd", user.AdminRoles, true)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: app.getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Get all", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", app.getToken(t, admin))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Total   int         `json:"total"`
			Results []user.User `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, 2, resp.Total)
		assert.Len(t, resp.Results, 2)
	})

	t.Run("search", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?search=jane", app.getToken(t, admin))
		app.server.ServeHTTP(rec, req)

		var resp struct {
			Total   int         `json:"total"`
			Results []user.User `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		if assert.Equal(t, 1, resp.Total) {
			assert.Equal(t, student.ID, resp.Results[0].ID)
		}
	})
}

func Test_userApi_professorRequests(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin", "admin@test.test", "s3cr3tpwd", user.AdminRoles, true)
	teacher := app.createUser(t, "Pending Prof", "prof400", "prof400@test.test", "s3cr3tpwd", user.TeacherRoles, false)
	setApproval(t, app, teacher, user.ApprovalPending)

	adminToken := app.getToken(t, admin)

	t.Run("pending requests listed by default", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/professor-requests", adminToken)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Total   int         `json:"total"`
			Results []user.User `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		if assert.Equal(t, 1, resp.Total) {
			assert.Equal(t, teacher.ID, resp.Results[0].ID)
		}
	})

	t.Run("approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/professor-requests/"+teacher.ID+"/approve", adminToken)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, user.ApprovalApproved, usr.ApprovalStatus)
		assert.True(t, usr.IsActive)
	})

	t.Run("approve twice", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/professor-requests/"+teacher.ID+"/approve", adminToken)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: user.ErrNotPending.Error()}),
		}, rec)
	})

	t.Run("stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/professor-requests/stats", adminToken)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var stats user.ApprovalStats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, 1, stats.Approved)
		assert.Equal(t, 1, stats.Total)
	})
}

func Test_userApi_leaderboard(t *testing.T) {
	app := setup(t)
	rich := app.createUser(t, "Rich Kid", "stu500", "rich@test.test", "s3cr3tpwd", user.StudentRoles, true)
	poor := app.createUser(t, "Poor Kid", "stu501", "poor@test.test", "s3cr3tpwd", user.StudentRoles, true)
	app.credit(t, rich.ID, 100)
	app.credit(t, poor.ID, 10)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/leaderboard", app.getToken(t, poor))
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var users []user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshalling response failed: %v", err)
	}
	if assert.Len(t, users, 2) {
		assert.Equal(t, rich.ID, users[0].ID)
		assert.Equal(t, 100, users[0].Balance)
	}
}

func setApproval(t *testing.T, app *testApp, usr user.User, status string) {
	t.Helper()
	usr.ApprovalStatus = status
	if _, err := app.usrRepo.UpdateUser(context.Background(), usr, nil); err != nil {
		t.Fatalf("setApproval() failed: %v", err)
	}
}
