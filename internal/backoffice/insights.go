package backoffice

import (
	"context"
	"net/url"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
)

// PricingService reads and saves the per-user pricing configuration.
type PricingService struct {
	client *apiclient.Client
}

const pricingPath = "/pricing/configuration"

func (s *PricingService) Get(ctx context.Context) (*PricingConfig, error) {
	var out PricingConfig
	if err := s.client.Get(ctx, pricingPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PricingService) Save(ctx context.Context, in PricingConfigInput) (*PricingConfig, error) {
	var out PricingConfig
	if err := s.client.Post(ctx, pricingPath, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DashboardService fetches server-computed dashboard series. Range values are
// passed through as given (e.g. "7d", "30d", "ytd").
type DashboardService struct {
	client *apiclient.Client
}

func rangeQuery(r string) url.Values {
	q := url.Values{}
	setIf(q, "range", r)
	return q
}

func (s *DashboardService) Summary(ctx context.Context, r string) (*DashboardSummary, error) {
	var out DashboardSummary
	if err := s.client.Get(ctx, "/dashboard/summary", rangeQuery(r), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *DashboardService) OrdersOverTime(ctx context.Context, r string) ([]OrdersPoint, error) {
	var out []OrdersPoint
	if err := s.client.Get(ctx, "/dashboard/orders", rangeQuery(r), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DashboardService) RevenueOverTime(ctx context.Context, r string) ([]RevenuePoint, error) {
	var out []RevenuePoint
	if err := s.client.Get(ctx, "/dashboard/revenue", rangeQuery(r), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportsService fetches financial reports.
type ReportsService struct {
	client *apiclient.Client
}

// ProfitAndLoss returns the statement for [startDate, endDate] (YYYY-MM-DD).
func (s *ReportsService) ProfitAndLoss(ctx context.Context, startDate, endDate string) (*ProfitAndLoss, error) {
	q := url.Values{}
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)

	var out ProfitAndLoss
	if err := s.client.Get(ctx, "/reports/profit-and-loss", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
