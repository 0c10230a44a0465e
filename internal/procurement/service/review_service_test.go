package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type reviewFixture struct {
	db     *gorm.DB
	repos  *repository.Repositories
	review *ReviewService
}

func setupReviewTest(t *testing.T) *reviewFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewReviewService(repos.BOM, repos.Supplier, repos.Approval, db)
	return &reviewFixture{db: db, repos: repos, review: svc}
}

// seedReviewItem creates a needs_review line with a pending match approval
func seedReviewItem(t *testing.T, f *reviewFixture, id, bomID string, line int, confidence float64) *entity.BOMItem {
	t.Helper()
	item := testutil.SeedBOMItem(t, f.db, id, bomID, line, "PN-"+id, "Review item "+id, 4)
	item.Status = entity.ItemStatusNeedsReview
	item.MatchConfidence = &confidence
	item.ReviewReason = "低置信度匹配"
	if err := f.db.Save(item).Error; err != nil {
		t.Fatalf("save item: %v", err)
	}
	req := &entity.ApprovalRequest{
		ID:          "apr-" + id,
		EntityType:  entity.ApprovalEntitySupplierMatch,
		EntityID:    item.ID,
		RequestType: entity.ApprovalTypeMatchReview,
		Title:       "低置信度匹配待审核",
		Status:      entity.ApprovalStatusPending,
	}
	if err := f.db.Create(req).Error; err != nil {
		t.Fatalf("create approval: %v", err)
	}
	return item
}

func TestListQueueOrderedByConfidence(t *testing.T) {
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-queue", "Queue BOM")
	seedReviewItem(t, f, "q-high", "bom-queue", 1, 0.8)
	seedReviewItem(t, f, "q-low", "bom-queue", 2, 0.4)
	testutil.SeedBOMItem(t, f.db, "q-pending", "bom-queue", 3, "PN-x", "Not in queue", 1)

	queue, err := f.review.ListQueue(ctx, "bom-queue")
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("Expected 2 queue items, got %d", len(queue))
	}
	// Least certain first
	if queue[0].ID != "q-low" {
		t.Errorf("Expected lowest confidence first, got %s", queue[0].ID)
	}
}

func TestListQueueUnknownBOM(t *testing.T) {
	f := setupReviewTest(t)
	_, err := f.review.ListQueue(context.Background(), "missing")
	if err != repository.ErrNotFound {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolveItemWithSupplierCatalogPrice(t *testing.T) {
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-resolve", "Resolve BOM")
	testutil.SeedSupplier(t, f.db, "sup-a", "SUP-A", "Alpha Components")
	part := testutil.SeedPart(t, f.db, "part-1", "PN-rv-1", "Resistor 10K")
	testutil.SeedSupplierPart(t, f.db, "sp-1", "sup-a", part.ID, "A-PN-rv-1", 2.50)
	item := seedReviewItem(t, f, "rv-1", "bom-resolve", 1, 0.5)

	supplierID := "sup-a"
	resolved, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{
		SupplierID: &supplierID,
		Notes:      "确认Alpha供货",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.Status != entity.ItemStatusConfirmed {
		t.Errorf("Expected confirmed, got %s", resolved.Status)
	}
	if resolved.MatchMethod != entity.MatchMethodManual {
		t.Errorf("Expected manual match method, got %s", resolved.MatchMethod)
	}
	if resolved.MatchConfidence == nil || *resolved.MatchConfidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %v", resolved.MatchConfidence)
	}
	if resolved.ReviewReason != "" {
		t.Errorf("Expected review reason cleared, got %q", resolved.ReviewReason)
	}
	// Catalog price carried over: qty 4 × 2.50
	if resolved.UnitCost == nil || !resolved.UnitCost.Equal(decimal.NewFromFloat(2.50)) {
		t.Errorf("Expected catalog unit cost 2.50, got %v", resolved.UnitCost)
	}
	if resolved.ExtendedCost == nil || !resolved.ExtendedCost.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected extended cost 10, got %v", resolved.ExtendedCost)
	}

	// Pending approval request is closed
	pending, _ := f.repos.Approval.FindPendingByEntity(ctx, entity.ApprovalEntitySupplierMatch, item.ID)
	if pending != nil {
		t.Error("Expected pending approval closed after resolution")
	}

	// Aggregates always recomputed from item state
	bom, _ := f.repos.BOM.FindLean(ctx, "bom-resolve")
	if bom.MatchedItems != 1 {
		t.Errorf("Expected matched_items 1, got %d", bom.MatchedItems)
	}
}

func TestResolveItemManualPriceOverridesCatalog(t *testing.T) {
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-manual", "Manual BOM")
	testutil.SeedSupplier(t, f.db, "sup-a", "SUP-A", "Alpha Components")
	part := testutil.SeedPart(t, f.db, "part-1", "PN-mn-1", "Capacitor")
	testutil.SeedSupplierPart(t, f.db, "sp-1", "sup-a", part.ID, "A-PN-mn-1", 2.50)
	item := seedReviewItem(t, f, "mn-1", "bom-manual", 1, 0.5)

	supplierID := "sup-a"
	manualPrice := 3.00
	resolved, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{
		SupplierID:  &supplierID,
		ManualPrice: &manualPrice,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.UnitCost.Equal(decimal.NewFromFloat(3.00)) {
		t.Errorf("Expected manual price 3.00 to win, got %s", resolved.UnitCost)
	}
	// qty 4 × 3.00
	if !resolved.ExtendedCost.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected extended cost 12, got %s", resolved.ExtendedCost)
	}
}

func TestResolveItemRequiresSupplierOrPrice(t *testing.T) {
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-empty", "Empty BOM")
	item := seedReviewItem(t, f, "em-1", "bom-empty", 1, 0.5)

	_, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{})
	if err == nil {
		t.Fatal("Expected error when neither supplier nor price given")
	}
}

func TestResolveConfirmedItemAgain(t *testing.T) {
	// A correction re-resolves an already confirmed item
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-redo", "Redo BOM")
	item := seedReviewItem(t, f, "rd-1", "bom-redo", 1, 0.5)

	price1 := 2.00
	if _, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{ManualPrice: &price1}); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	price2 := 5.00
	resolved, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{ManualPrice: &price2})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	// qty 4 × 5.00
	if !resolved.ExtendedCost.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected corrected extended cost 20, got %s", resolved.ExtendedCost)
	}

	// The correction leaves its own audit record beside the original
	var reqs int64
	f.db.Model(&entity.ApprovalRequest{}).
		Where("entity_type = ? AND entity_id = ?", entity.ApprovalEntitySupplierMatch, item.ID).
		Count(&reqs)
	if reqs != 2 {
		t.Errorf("Expected 2 approval records, got %d", reqs)
	}
}

func TestResolveRecomputesMaterializedCost(t *testing.T) {
	f := setupReviewTest(t)
	ctx := context.Background()
	testutil.SeedBOM(t, f.db, "bom-cost", "Cost BOM")
	// Simulate a BOM whose optimize stage already materialized total_cost
	f.db.Model(&entity.BOM{}).Where("id = ?", "bom-cost").
		Update("processing_status", entity.ProcessingStatusAwaitingReview)
	item := seedReviewItem(t, f, "ct-1", "bom-cost", 1, 0.5)

	price := 2.50
	if _, err := f.review.ResolveItem(ctx, item.ID, "reviewer-001", &ResolveItemRequest{ManualPrice: &price}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	bom, _ := f.repos.BOM.FindLean(ctx, "bom-cost")
	if bom.TotalCost == nil {
		t.Fatal("Expected total_cost recomputed")
	}
	// qty 4 × 2.50
	if !bom.TotalCost.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected total_cost 10, got %s", bom.TotalCost)
	}
}
