package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kafeai/brigade/pkg/errors"
)

// SalesSummary holds the headline revenue figures of one business day.
type SalesSummary struct {
	TotalGross float64 `json:"total_gross"`
	TotalNet   float64 `json:"total_net"`
	Receipts   int     `json:"receipts,omitempty"`
}

// DailyReport is one day's point-of-sale export.
type DailyReport struct {
	Date               string             `json:"date"`
	SalesSummary       SalesSummary       `json:"sales_summary"`
	SalesByCategory    map[string]float64 `json:"sales_by_category,omitempty"`
	PaymentMethods     map[string]float64 `json:"payment_methods,omitempty"`
	PerformanceMetrics map[string]any     `json:"performance_metrics,omitempty"`
}

// ReportStore reads daily sales reports from a directory of one JSON file
// per day, named <date>.json.
type ReportStore struct {
	dir string
}

// NewReportStore creates a store over the reports directory.
func NewReportStore(dir string) *ReportStore {
	return &ReportStore{dir: dir}
}

// List returns the report dates available, most recent first. An absent
// directory yields an empty list.
func (s *ReportStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.CodeStoreError, "list daily reports", err)
	}
	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// Read returns the report for a date.
func (s *ReportStore) Read(_ context.Context, date string) (*DailyReport, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, date+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound,
				fmt.Sprintf("no daily report for %s", date), nil)
		}
		return nil, errors.New(errors.CodeStoreError, "read daily report", err)
	}
	var report DailyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.New(errors.CodeStoreError, "decode daily report", err)
	}
	if report.Date == "" {
		report.Date = date
	}
	return &report, nil
}

// Recent returns up to n reports, most recent first.
func (s *ReportStore) Recent(ctx context.Context, n int) ([]*DailyReport, error) {
	dates, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) > n {
		dates = dates[:n]
	}
	reports := make([]*DailyReport, 0, len(dates))
	for _, date := range dates {
		report, err := s.Read(ctx, date)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
