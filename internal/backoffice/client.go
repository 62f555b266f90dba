// Package backoffice provides typed clients for the back-office API resources
// on top of the authenticated apiclient.
package backoffice

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/pagination"
)

// Client groups every resource service.
type Client struct {
	Orders      *OrdersService
	Quotes      *QuotesService
	Expenses    *ExpensesService
	Mileage     *MileageService
	Ingredients *Resource[Ingredient, IngredientInput]
	Recipes     *Resource[Recipe, RecipeInput]
	Calendar    *Resource[CalendarEvent, CalendarEventInput]
	Tasks       *Resource[Task, TaskInput]
	Pricing     *PricingService
	Dashboard   *DashboardService
	Reports     *ReportsService
	Imports     *ImportsService

	collections map[string]CollectionFunc
}

// New builds the resource clients. pageSize applies to batched list fetches.
func New(api *apiclient.Client, pageSize int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = pagination.MaxPageSize
	}

	c := &Client{
		Orders:      &OrdersService{newResource[Order, OrderInput](api, "/orders/", pageSize)},
		Quotes:      &QuotesService{newResource[Quote, QuoteInput](api, "/orders/quotes/", pageSize)},
		Expenses:    &ExpensesService{newResource[Expense, ExpenseInput](api, "/expenses/", pageSize)},
		Mileage:     &MileageService{newResource[MileageLog, MileageInput](api, "/mileage/", pageSize)},
		Ingredients: newResource[Ingredient, IngredientInput](api, "/ingredients/", pageSize),
		Recipes:     newResource[Recipe, RecipeInput](api, "/recipes/", pageSize),
		Calendar:    newResource[CalendarEvent, CalendarEventInput](api, "/calendar/", pageSize),
		Tasks:       newResource[Task, TaskInput](api, "/tasks/", pageSize),
		Pricing:     &PricingService{client: api},
		Dashboard:   &DashboardService{client: api},
		Reports:     &ReportsService{client: api},
		Imports:     &ImportsService{client: api, logger: logger},
	}

	c.collections = map[string]CollectionFunc{
		"orders":      collect(c.Orders.Resource),
		"quotes":      collect(c.Quotes.Resource),
		"expenses":    collect(c.Expenses.Resource),
		"mileage":     collect(c.Mileage.Resource),
		"ingredients": collect(c.Ingredients),
		"recipes":     collect(c.Recipes),
		"calendar":    collect(c.Calendar),
		"tasks":       collect(c.Tasks),
	}
	return c
}

// CollectionFunc fetches a whole collection for snapshotting.
type CollectionFunc func(ctx context.Context) (records any, count int, err error)

func collect[T, In any](r *Resource[T, In]) CollectionFunc {
	return func(ctx context.Context) (any, int, error) {
		items, err := r.ListAll(ctx, noFilters)
		if err != nil {
			return nil, 0, err
		}
		return items, len(items), nil
	}
}

// Collection returns the fetcher for a named collection.
func (c *Client) Collection(name string) (CollectionFunc, bool) {
	fn, ok := c.collections[name]
	return fn, ok
}

// CollectionNames lists the collections that can be snapshotted, sorted.
func (c *Client) CollectionNames() []string {
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
