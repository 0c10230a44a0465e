package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/bitfantasy/procura/internal/procurement/testutil"
	"github.com/gin-gonic/gin"
)

func setupSupplierTest(t *testing.T) (*gin.Engine, *testutil.TestEnv) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	supplierHandler := NewSupplierHandler(service.NewSupplierService(repos.Supplier))

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	suppliers := api.Group("/suppliers")
	suppliers.GET("", supplierHandler.List)
	suppliers.POST("", supplierHandler.Create)
	suppliers.GET("/:id", supplierHandler.Get)
	suppliers.PUT("/:id", supplierHandler.Update)
	api.POST("/parts", supplierHandler.CreatePart)
	api.POST("/supplier-parts", supplierHandler.CreateSupplierPart)

	return router, &testutil.TestEnv{DB: db, Router: router, T: t}
}

func TestSupplierCreate(t *testing.T) {
	router, _ := setupSupplierTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/suppliers", map[string]interface{}{
		"code":          "SUP-A",
		"name":          "Alpha Components",
		"contact_email": "sales@alpha.example.com",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["id"] == nil || data["id"] == "" {
		t.Error("Expected non-empty id")
	}
	if data["name"] != "Alpha Components" {
		t.Errorf("Expected name 'Alpha Components', got %v", data["name"])
	}
	if data["status"] != "active" {
		t.Errorf("Expected status 'active', got %v", data["status"])
	}
}

func TestSupplierCreateMissingName(t *testing.T) {
	router, _ := setupSupplierTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/suppliers", map[string]interface{}{
		"code": "SUP-B",
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSupplierGetNotFound(t *testing.T) {
	router, _ := setupSupplierTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "GET", "/api/v1/suppliers/missing", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSupplierListUnauthorized(t *testing.T) {
	router, _ := setupSupplierTest(t)

	w := testutil.DoRequest(router, "GET", "/api/v1/suppliers", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", w.Code)
	}
}

func TestSupplierPartQuote(t *testing.T) {
	router, env := setupSupplierTest(t)
	token := testutil.DefaultTestToken()

	supplier := testutil.SeedSupplier(t, env.DB, "sup-a", "SUP-A", "Alpha Components")
	part := testutil.SeedPart(t, env.DB, "part-1", "R-1001", "Resistor 10K")

	w := testutil.DoRequest(router, "POST", "/api/v1/supplier-parts", map[string]interface{}{
		"supplier_id":          supplier.ID,
		"part_id":              part.ID,
		"supplier_part_number": "A-R-1001",
		"unit_price":           2.50,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["currency"] != "USD" {
		t.Errorf("Expected default currency USD, got %v", data["currency"])
	}
	if data["min_order_qty"].(float64) != 1 {
		t.Errorf("Expected default min_order_qty 1, got %v", data["min_order_qty"])
	}
}
