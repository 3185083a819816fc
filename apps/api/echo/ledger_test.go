package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campuscoin/campuscoin/core/ledger"
	"github.com/campuscoin/campuscoin/core/user"
)

func Test_ledgerApi_transfer(t *testing.T) {
	app := setup(t)
	alice := app.createUser(t, "Alice", "stu100", "alice@test.test", "s3cr3tpwd", user.StudentRoles, true)
	bob := app.createUser(t, "Bob", "stu101", "bob@test.test", "s3cr3tpwd", user.StudentRoles, true)
	app.credit(t, alice.ID, 100)

	aliceToken := app.getToken(t, alice)
	body := func(dest string, amount int) []byte {
		return marchallObj(t, ledger.NewTransfer{DestinationStudentID: dest, Amount: amount, Description: "lunch money"})
	}

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/transactions/transfer", body("stu101", 40))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/transfer", aliceToken, body("stu101", 40))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp TransactionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, "Transfer completed", resp.Message)
		assert.Equal(t, 40, resp.Transaction.Amount)
		assert.Equal(t, bob.ID, resp.Transaction.Destination)
		assert.Equal(t, "lunch money", resp.Transaction.Description)
		assert.False(t, resp.Transaction.Source.IsSystem())

		assert.Equal(t, 60, balanceOf(t, app, alice.ID))
		assert.Equal(t, 40, balanceOf(t, app, bob.ID))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/transfer", aliceToken, body("stu101", 1000))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: ledger.ErrInsufficientFunds.Error()}),
		}, rec)
		assert.Equal(t, 60, balanceOf(t, app, alice.ID)) // untouched
	})

	t.Run("self transfer", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/transfer", aliceToken, body("stu100", 10))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown destination", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/transfer", aliceToken, body("nobody", 10))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_ledgerApi_reward(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Student", "stu200", "stu200@test.test", "s3cr3tpwd", user.StudentRoles, true)
	teacher := app.createUser(t, "Teacher", "prof200", "prof200@test.test", "s3cr3tpwd", user.TeacherRoles, true)

	body := marchallObj(t, ledger.NewReward{DestinationStudentID: "stu200", Amount: 25, Description: "helped in class"})

	t.Run("students may not grant rewards", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/reward", app.getToken(t, student), body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})

	t.Run("teacher grants a reward", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/reward", app.getToken(t, teacher), body)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp TransactionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, "Reward granted", resp.Message)
		assert.Equal(t, ledger.KindReceived, resp.Transaction.Kind)
		assert.Equal(t, 25, resp.Transaction.Amount)

		// the granter's balance is untouched
		assert.Equal(t, 0, balanceOf(t, app, teacher.ID))
		assert.Equal(t, 25, balanceOf(t, app, student.ID))
	})
}

func Test_ledgerApi_historyAndRetrieve(t *testing.T) {
	app := setup(t)
	alice := app.createUser(t, "Alice", "stu300", "alice300@test.test", "s3cr3tpwd", user.StudentRoles, true)
	bob := app.createUser(t, "Bob", "stu301", "bob301@test.test", "s3cr3tpwd", user.StudentRoles, true)
	carol := app.createUser(t, "Carol", "stu302", "carol302@test.test", "s3cr3tpwd", user.StudentRoles, true)
	admin := app.createUser(t, "Admin", "admin", "admin@test.test", "s3cr3tpwd", user.AdminRoles, true)
	app.credit(t, alice.ID, 100)

	// alice -> bob; carol is not involved
	transfer := marchallObj(t, ledger.NewTransfer{DestinationStudentID: "stu301", Amount: 30})
	req, rec := newAuthRequest(http.MethodPost, "/v1/transactions/transfer", app.getToken(t, alice), transfer)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seeding transfer failed: %v %s", rec.Code, rec.Body.String())
	}
	var seeded TransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &seeded); err != nil {
		t.Fatalf("unmarshalling response failed: %v", err)
	}
	txnID := seeded.Transaction.ID

	t.Run("history lists own transactions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions", app.getToken(t, bob))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Total   int                  `json:"total"`
			Results []ledger.Transaction `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		if assert.Equal(t, 1, resp.Total) {
			assert.Equal(t, txnID, resp.Results[0].ID)
			assert.Equal(t, "Alice", resp.Results[0].SourceName)
		}
	})

	t.Run("uninvolved history is empty", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions", app.getToken(t, carol))
		app.server.ServeHTTP(rec, req)

		var resp struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, 0, resp.Total)
	})

	t.Run("participants may retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions/"+txnID, app.getToken(t, alice))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("outsiders get a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions/"+txnID, app.getToken(t, carol))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		}, rec)
	})

	t.Run("admins may retrieve and query all", func(t *testing.T) {
		adminToken := app.getToken(t, admin)

		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions/"+txnID, adminToken)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/transactions/all", adminToken)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		assert.Equal(t, 1, resp.Total)
	})

	t.Run("students may not query all", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/transactions/all", app.getToken(t, carol))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func balanceOf(t *testing.T, app *testApp, accountID string) int {
	t.Helper()
	usr, err := app.usrRepo.GetUserByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balanceOf() failed: %v", err)
	}
	return usr.Balance
}
