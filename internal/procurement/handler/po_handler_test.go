package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/procura/internal/config"
	"github.com/bitfantasy/procura/internal/middleware"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/bitfantasy/procura/internal/procurement/testutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupPOHandlerTest(t *testing.T) (*gin.Engine, *testutil.TestEnv) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	cfg := config.ProcurementConfig{
		ApprovalThreshold:    10000,
		AutoAcceptConfidence: 0.85,
	}
	poHandler := NewPOHandler(service.NewPOService(repos.PO, repos.BOM, repos.Approval, repos.Supplier, db, cfg, zap.NewNop()))

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	pos := api.Group("/purchase-orders")
	pos.GET("", poHandler.List)
	pos.POST("", poHandler.Create)
	pos.GET("/:id", poHandler.Get)
	pos.POST("/:id/submit", poHandler.Submit)
	pos.POST("/:id/approve", middleware.RequireRole("po_approver"), poHandler.Approve)
	pos.POST("/:id/send", middleware.RequirePermission("po:send"), poHandler.Send)

	return router, &testutil.TestEnv{DB: db, Router: router, T: t}
}

func createDraftPO(t *testing.T, router *gin.Engine, token string, unitPrice float64) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders", map[string]interface{}{
		"supplier_id": "sup-a",
		"items": []map[string]interface{}{
			{"part_number": "R-1001", "description": "Resistor", "quantity": 10, "unit_price": unitPrice},
		},
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

func TestPOCreateDraft(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	po := createDraftPO(t, router, token, 2.5)
	if po["status"] != "draft" {
		t.Errorf("Expected draft, got %v", po["status"])
	}
	if po["total"].(string) != "25" && po["total"].(string) != "25.00" {
		t.Errorf("Expected total 25, got %v", po["total"])
	}
}

func TestPOApproveDraftConflict(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	po := createDraftPO(t, router, token, 2.5)
	poID := po["id"].(string)

	// Approving a draft is an invalid transition, surfaced as 409
	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/approve",
		map[string]interface{}{"approved": true}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPOSubmitThenApprove(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	// 10 × 1200 crosses the approval threshold
	po := createDraftPO(t, router, token, 1200)
	poID := po["id"].(string)

	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/submit", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on submit, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["data"].(map[string]interface{})["status"] != "pending_approval" {
		t.Fatalf("Expected pending_approval after submit, got %v", resp["data"])
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/approve",
		map[string]interface{}{"approved": true, "notes": "OK"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on approve, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["status"] != "approved" {
		t.Errorf("Expected approved, got %v", data["status"])
	}
	if data["approved_by"] != "test-user-001" {
		t.Errorf("Expected approver recorded, got %v", data["approved_by"])
	}
}

func TestPOSubmitBelowThresholdAutoApproved(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	po := createDraftPO(t, router, token, 2.5)
	poID := po["id"].(string)

	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/submit", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on submit, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != "approved" {
		t.Errorf("Expected auto-approved below threshold, got %v", data["status"])
	}
	if data["requires_approval"] != false {
		t.Errorf("Expected requires_approval false, got %v", data["requires_approval"])
	}
}

func TestPOApproveRequiresRole(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	admin := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	po := createDraftPO(t, router, admin, 1200)
	poID := po["id"].(string)
	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/submit", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on submit, got %d: %s", w.Code, w.Body.String())
	}

	// A buyer without the approver role cannot decide
	buyer := testutil.GenerateTestToken("buyer-001", "Buyer", "buyer@test.com",
		[]string{"buyer"}, []string{"po:read"})
	w = testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/approve",
		map[string]interface{}{"approved": true}, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 without approver role, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPOSendRequiresPermission(t *testing.T) {
	router, env := setupPOHandlerTest(t)
	admin := testutil.DefaultTestToken()
	testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")

	po := createDraftPO(t, router, admin, 2.5)
	poID := po["id"].(string)
	w := testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/submit", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on submit, got %d: %s", w.Code, w.Body.String())
	}

	buyer := testutil.GenerateTestToken("buyer-001", "Buyer", "buyer@test.com",
		[]string{"buyer"}, []string{"po:read"})
	w = testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/send", nil, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 without send permission, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/purchase-orders/"+poID+"/send", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with wildcard permission, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPOGetNotFound(t *testing.T) {
	router, _ := setupPOHandlerTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "GET", "/api/v1/purchase-orders/missing", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
