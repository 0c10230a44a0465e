package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/shopspring/decimal"
)

// ErrUnavailable 匹配源不可用（可重试）
var ErrUnavailable = errors.New("matching source unavailable")

// Candidate 候选供应商匹配
type Candidate struct {
	SupplierID     string           `json:"supplier_id"`
	SupplierPartID string           `json:"supplier_part_id,omitempty"`
	SupplierName   string           `json:"supplier_name,omitempty"`
	PartID         string           `json:"part_id,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	LeadTimeDays   *int             `json:"lead_time_days,omitempty"`
	Confidence     float64          `json:"confidence"` // 0-1
	Method         string           `json:"method"`     // exact/fuzzy
}

// Gateway 匹配网关契约：按描述/零件号返回置信度降序的候选列表，可为空
type Gateway interface {
	FindCandidates(ctx context.Context, description, partNumber string) ([]Candidate, error)
}

// 目录匹配置信度
const (
	exactPartNumberConfidence    = 0.98 // 零件号精确命中
	supplierPartNumberConfidence = 0.92 // 供应商零件号命中
	fuzzyConfidenceCap           = 0.85 // 描述模糊匹配上限
	candidateLimit               = 6
)

// CatalogMatcher 基于供应商目录的确定性匹配器：零件号精确匹配优先，其次描述分词模糊匹配
type CatalogMatcher struct {
	suppliers *repository.SupplierRepository
}

func NewCatalogMatcher(suppliers *repository.SupplierRepository) *CatalogMatcher {
	return &CatalogMatcher{suppliers: suppliers}
}

// FindCandidates 实现Gateway契约
func (m *CatalogMatcher) FindCandidates(ctx context.Context, description, partNumber string) ([]Candidate, error) {
	var candidates []Candidate

	if pn := strings.TrimSpace(partNumber); pn != "" {
		sps, err := m.suppliers.FindSupplierPartsByPartNumber(ctx, pn, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, sp := range sps {
			conf := supplierPartNumberConfidence
			if sp.Part != nil && strings.EqualFold(sp.Part.PartNumber, pn) {
				conf = exactPartNumberConfidence
			}
			candidates = append(candidates, toCandidate(sp, conf, entity.MatchMethodExact))
		}
	}

	if len(candidates) == 0 && strings.TrimSpace(description) != "" {
		tokens := Tokenize(description)
		sps, err := m.suppliers.SearchSupplierPartsByDescription(ctx, tokens, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, sp := range sps {
			target := ""
			if sp.Part != nil {
				target = sp.Part.Name + " " + sp.Part.Description
			}
			conf := FuzzyConfidence(description, target)
			if conf <= 0 {
				continue
			}
			candidates = append(candidates, toCandidate(sp, conf, entity.MatchMethodFuzzy))
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}
	return candidates, nil
}

func toCandidate(sp entity.SupplierPart, confidence float64, method string) Candidate {
	c := Candidate{
		SupplierID:     sp.SupplierID,
		SupplierPartID: sp.ID,
		PartID:         sp.PartID,
		UnitPrice:      sp.UnitPrice,
		LeadTimeDays:   sp.LeadTimeDays,
		Confidence:     confidence,
		Method:         method,
	}
	if sp.Supplier != nil {
		c.SupplierName = sp.Supplier.Name
	}
	return c
}

// Tokenize 描述分词：小写、去标点、丢弃过短词
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-')
	})
	var tokens []string
	for _, f := range fields {
		f = strings.Trim(f, ".-")
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// FuzzyConfidence 描述词重叠率映射到(0, fuzzyConfidenceCap]
func FuzzyConfidence(query, target string) float64 {
	qTokens := Tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	tSet := make(map[string]struct{})
	for _, t := range Tokenize(target) {
		tSet[t] = struct{}{}
	}
	hits := 0
	for _, q := range qTokens {
		if _, ok := tSet[q]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return fuzzyConfidenceCap * float64(hits) / float64(len(qTokens))
}
