package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/procura/internal/middleware"
	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_procura"
	JWTSecret  = "procura-jwt-secret-key-2024"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "procura")
	password := getEnv("DB_PASSWORD", "procura123")
	dbname := getEnv("DB_NAME", "procura")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
		&entity.BOM{},
		&entity.BOMItem{},
		&entity.Supplier{},
		&entity.Part{},
		&entity.SupplierPart{},
		&entity.PurchaseOrder{},
		&entity.POItem{},
		&entity.ApprovalRequest{},
		&entity.ProcessingTask{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// Partial unique indexes that gorm tags cannot express
	indexSQL := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_pos_bom_supplier ON purchase_orders(bom_id, supplier_id) WHERE bom_id IS NOT NULL AND status NOT IN ('cancelled')",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_one_active ON processing_tasks(bom_id) WHERE status IN ('queued', 'running')",
	}
	for _, sql := range indexSQL {
		if err := db.Exec(sql).Error; err != nil {
			t.Fatalf("Failed to create test index: %v", err)
		}
	}

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"roles": roles,
		"perms": permissions,
		"iss":   "procura",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken(
		"test-user-001",
		"Test Admin",
		"admin@test.com",
		[]string{"procurement_admin"},
		[]string{"*"},
	)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedSupplier creates a supplier in the test database
func SeedSupplier(t *testing.T, db *gorm.DB, id, code, name string) *entity.Supplier {
	t.Helper()
	s := &entity.Supplier{
		ID:        id,
		Code:      code,
		Name:      name,
		Status:    entity.SupplierStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("Failed to seed supplier: %v", err)
	}
	return s
}

// SeedPart creates a part in the test database
func SeedPart(t *testing.T, db *gorm.DB, id, partNumber, name string) *entity.Part {
	t.Helper()
	p := &entity.Part{
		ID:         id,
		PartNumber: partNumber,
		Name:       name,
		Unit:       "EA",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed part: %v", err)
	}
	return p
}

// SeedSupplierPart creates a supplier-part quote in the test database
func SeedSupplierPart(t *testing.T, db *gorm.DB, id, supplierID, partID, supplierPartNumber string, unitPrice float64) *entity.SupplierPart {
	t.Helper()
	price := decimal.NewFromFloat(unitPrice)
	sp := &entity.SupplierPart{
		ID:                 id,
		SupplierID:         supplierID,
		PartID:             partID,
		SupplierPartNumber: supplierPartNumber,
		UnitPrice:          &price,
		Currency:           "USD",
		MinOrderQty:        1,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := db.Create(sp).Error; err != nil {
		t.Fatalf("Failed to seed supplier part: %v", err)
	}
	return sp
}

// SeedBOM creates a BOM in the test database
func SeedBOM(t *testing.T, db *gorm.DB, id, name string) *entity.BOM {
	t.Helper()
	b := &entity.BOM{
		ID:               id,
		Name:             name,
		Version:          "1.0",
		Status:           entity.BOMStatusDraft,
		SourceFileType:   "csv",
		ProcessingStatus: entity.ProcessingStatusPending,
		CreatedBy:        "test-user-001",
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("Failed to seed BOM: %v", err)
	}
	return b
}

// SeedBOMItem creates a BOM line item in the test database
func SeedBOMItem(t *testing.T, db *gorm.DB, id, bomID string, lineNumber int, partNumber, description string, qty float64) *entity.BOMItem {
	t.Helper()
	item := &entity.BOMItem{
		ID:             id,
		BOMID:          bomID,
		LineNumber:     lineNumber,
		PartNumberRaw:  partNumber,
		DescriptionRaw: description,
		Quantity:       decimal.NewFromFloat(qty),
		Unit:           "EA",
		Status:         entity.ItemStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed BOM item: %v", err)
	}
	return item
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
