package backoffice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/pagination"
)

// OrdersService wraps /orders/.
type OrdersService struct {
	*Resource[Order, OrderInput]
}

func (s *OrdersService) List(ctx context.Context, f OrderFilter, cursor pagination.Cursor) ([]Order, error) {
	return s.ListPage(ctx, f.Values(), cursor)
}

// All returns every order matching f.
func (s *OrdersService) All(ctx context.Context, f OrderFilter) ([]Order, error) {
	return s.ListAll(ctx, f.Values())
}

// QuotesService wraps /orders/quotes/.
type QuotesService struct {
	*Resource[Quote, QuoteInput]
}

func (s *QuotesService) List(ctx context.Context, f OrderFilter, cursor pagination.Cursor) ([]Quote, error) {
	return s.ListPage(ctx, f.Values(), cursor)
}

func (s *QuotesService) All(ctx context.Context, f OrderFilter) ([]Quote, error) {
	return s.ListAll(ctx, f.Values())
}

// ConvertToOrder turns an accepted quote into an order.
func (s *QuotesService) ConvertToOrder(ctx context.Context, quoteID string) (*Order, error) {
	var out Order
	path := s.itemPath(quoteID) + "/convert-to-order"
	if err := s.client.Send(ctx, apiclient.NewRequest(http.MethodPost, path, nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MileageService wraps /mileage/.
type MileageService struct {
	*Resource[MileageLog, MileageInput]
}

func (s *MileageService) List(ctx context.Context, f MileageFilter, cursor pagination.Cursor) ([]MileageLog, error) {
	return s.ListPage(ctx, f.Values(), cursor)
}

func (s *MileageService) All(ctx context.Context, f MileageFilter) ([]MileageLog, error) {
	return s.ListAll(ctx, f.Values())
}

// noFilters is passed to collections that have no server-side filters.
var noFilters = url.Values{}
