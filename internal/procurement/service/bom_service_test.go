package service

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/parsing"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type bomFixture struct {
	db    *gorm.DB
	repos *repository.Repositories
	bom   *BOMService
}

func setupBOMTest(t *testing.T) *bomFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewBOMService(repos.BOM, repos.Task, newMemStore(), nil, db, zap.NewNop())
	return &bomFixture{db: db, repos: repos, bom: svc}
}

func uploadHeader(name string, size int) *multipart.FileHeader {
	return &multipart.FileHeader{
		Filename: name,
		Size:     int64(size),
		Header:   textproto.MIMEHeader{"Content-Type": []string{"application/octet-stream"}},
	}
}

func TestUploadStoresFileLocally(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	store := NewLocalStore(t.TempDir())
	svc := NewBOMService(repos.BOM, repos.Task, store, nil, db, zap.NewNop())
	ctx := context.Background()

	content := "Part Number,Description,Quantity\nR-1001,Resistor,2\n"
	bom, err := svc.Upload(ctx, "test-user-001", "", "", uploadHeader("board.csv", len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if bom.Name != "board" {
		t.Errorf("Expected name derived from filename, got %q", bom.Name)
	}
	if bom.SourceFileURL == "" {
		t.Fatal("Expected source file key recorded")
	}

	// 落盘内容可回读，解析阶段依赖同一把key
	rc, err := store.Get(ctx, bom.SourceFileURL)
	if err != nil {
		t.Fatalf("get stored file: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != content {
		t.Errorf("Stored content mismatch: %q", string(data))
	}
}

func TestUploadRejectsLegacyExcel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewBOMService(repos.BOM, repos.Task, NewLocalStore(t.TempDir()), nil, db, zap.NewNop())

	_, err := svc.Upload(context.Background(), "test-user-001", "", "",
		uploadHeader("legacy.xls", 10), strings.NewReader("0123456789"))
	if !errors.Is(err, parsing.ErrUnsupportedFormat) {
		t.Fatalf("Expected unsupported format for .xls, got %v", err)
	}
}

func TestGetStatusProjection(t *testing.T) {
	f := setupBOMTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-status", "Status BOM")

	if err := f.repos.BOM.UpdateProcessing(ctx, "bom-status", entity.ProcessingStatusMatching, 42.5, "匹配供应商"); err != nil {
		t.Fatalf("update: %v", err)
	}

	view, err := f.bom.GetStatus(ctx, "bom-status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if view.ProcessingStatus != entity.ProcessingStatusMatching {
		t.Errorf("Expected matching, got %s", view.ProcessingStatus)
	}
	if view.ProcessingProgress != 42.5 {
		t.Errorf("Expected progress 42.5, got %v", view.ProcessingProgress)
	}
	if len(view.Stages) != 4 {
		t.Fatalf("Expected 4 stage views, got %d", len(view.Stages))
	}
	if view.Stages[0].State != StageStateCompleted {
		t.Errorf("Expected parse completed, got %s", view.Stages[0].State)
	}
	if view.Stages[1].State != StageStateRunning {
		t.Errorf("Expected match running, got %s", view.Stages[1].State)
	}
	// total_cost stays null until the optimize stage materializes it
	if view.TotalCost != nil {
		t.Errorf("Expected nil total_cost, got %v", *view.TotalCost)
	}
}

func TestGetStatusUnknownBOM(t *testing.T) {
	f := setupBOMTest(t)
	_, err := f.bom.GetStatus(context.Background(), "missing")
	if err != repository.ErrNotFound {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteBlockedWhileProcessing(t *testing.T) {
	f := setupBOMTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-busy", "Busy BOM")

	task := &entity.ProcessingTask{
		ID:     uuid.New().String()[:32],
		BOMID:  "bom-busy",
		Status: entity.TaskStatusRunning,
	}
	if err := f.repos.Task.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	err := f.bom.Delete(ctx, "bom-busy")
	if !IsInvalidState(err) {
		t.Fatalf("Expected InvalidStateError, got %v", err)
	}

	// After the run finishes the BOM can be deleted, items included
	if err := f.repos.Task.Finish(ctx, task.ID, entity.TaskStatusCompleted, "", nil); err != nil {
		t.Fatalf("finish task: %v", err)
	}
	testutil.SeedBOMItem(t, f.db, "bi-del", "bom-busy", 1, "PN-1", "Item", 1)
	if err := f.bom.Delete(ctx, "bom-busy"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var itemCount int64
	f.db.Model(&entity.BOMItem{}).Where("bom_id = ?", "bom-busy").Count(&itemCount)
	if itemCount != 0 {
		t.Errorf("Expected items deleted with BOM, got %d", itemCount)
	}
}

func TestUpdateItemRecomputesCosts(t *testing.T) {
	f := setupBOMTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-upd", "Update BOM")
	f.db.Model(&entity.BOM{}).Where("id = ?", "bom-upd").
		Update("processing_status", entity.ProcessingStatusCompleted)

	item := testutil.SeedBOMItem(t, f.db, "ui-1", "bom-upd", 1, "PN-1", "Resistor", 4)
	cost := decimal.NewFromFloat(2.50)
	ext := item.Quantity.Mul(cost)
	item.Status = entity.ItemStatusMatched
	item.UnitCost = &cost
	item.ExtendedCost = &ext
	if err := f.db.Save(item).Error; err != nil {
		t.Fatalf("save item: %v", err)
	}

	// Price correction: extended cost follows
	newPrice := 3.00
	updated, err := f.bom.UpdateItem(ctx, "ui-1", &UpdateItemRequest{UnitCost: &newPrice})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if !updated.ExtendedCost.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected extended cost 12, got %s", updated.ExtendedCost)
	}

	bom, _ := f.repos.BOM.FindLean(ctx, "bom-upd")
	if bom.TotalCost == nil || !bom.TotalCost.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected total_cost 12, got %v", bom.TotalCost)
	}

	// Quantity correction recomputes from the new quantity
	newQty := 2.0
	updated, err = f.bom.UpdateItem(ctx, "ui-1", &UpdateItemRequest{Quantity: &newQty})
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if !updated.ExtendedCost.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected extended cost 6, got %s", updated.ExtendedCost)
	}
}
