package backoffice

import (
	"context"
	"net/http"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/pagination"
)

// ExpensesService wraps /expenses/. Create and update are multipart forms.
type ExpensesService struct {
	*Resource[Expense, ExpenseInput]
}

func (s *ExpensesService) List(ctx context.Context, f ExpenseFilter, cursor pagination.Cursor) ([]Expense, error) {
	return s.ListPage(ctx, f.Values(), cursor)
}

func (s *ExpensesService) All(ctx context.Context, f ExpenseFilter) ([]Expense, error) {
	return s.ListAll(ctx, f.Values())
}

func (s *ExpensesService) Create(ctx context.Context, in ExpenseInput) (*Expense, error) {
	return s.send(ctx, http.MethodPost, s.base, in.form())
}

// Update sends only the fields set in in.
func (s *ExpensesService) Update(ctx context.Context, id string, in ExpenseInput) (*Expense, error) {
	return s.send(ctx, http.MethodPut, s.itemPath(id)+"/", in.form())
}

func (in ExpenseInput) form() *apiclient.MultipartForm {
	f := apiclient.NewMultipartForm()
	if in.Date != nil {
		f.Add("date", *in.Date)
	}
	if in.Description != nil {
		f.Add("description", *in.Description)
	}
	if in.Amount != nil {
		f.Add("amount", in.Amount.String())
	}
	if in.Category != nil {
		f.Add("category", *in.Category)
	}
	return f
}
