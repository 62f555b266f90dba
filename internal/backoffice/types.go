package backoffice

import (
	"net/url"

	"github.com/shopspring/decimal"
)

func init() {
	// The API models money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Dates are exchanged as "YYYY-MM-DD" strings and datetimes as RFC 3339.

type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	EventType    string          `json:"event_type,omitempty"`
	Status       string          `json:"status"`
	DueDate      string          `json:"due_date,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Priority     string          `json:"priority,omitempty"`
	QuoteID      string          `json:"quote_id,omitempty"`
}

type OrderInput struct {
	OrderNumber  string           `json:"order_number,omitempty"`
	CustomerName string           `json:"customer_name,omitempty"`
	EventType    string           `json:"event_type,omitempty"`
	Status       string           `json:"status,omitempty"`
	DueDate      string           `json:"due_date,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	Priority     string           `json:"priority,omitempty"`
}

type Quote struct {
	ID           string          `json:"id"`
	QuoteNumber  string          `json:"quote_number"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	ValidUntil   string          `json:"valid_until,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type QuoteInput struct {
	QuoteNumber  string           `json:"quote_number,omitempty"`
	CustomerName string           `json:"customer_name,omitempty"`
	Status       string           `json:"status,omitempty"`
	ValidUntil   string           `json:"valid_until,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
}

type Expense struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
}

// ExpenseInput is sent as multipart form fields. Nil pointers are omitted,
// which is how partial updates are expressed.
type ExpenseInput struct {
	Date        *string
	Description *string
	Amount      *decimal.Decimal
	Category    *string
}

type MileageLog struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Distance      decimal.Decimal `json:"distance"`
	Description   string          `json:"description,omitempty"`
	Purpose       string          `json:"purpose,omitempty"`
	Reimbursement decimal.Decimal `json:"reimbursement"`
}

type MileageInput struct {
	Date        string           `json:"date,omitempty"`
	Distance    *decimal.Decimal `json:"distance,omitempty"`
	Description string           `json:"description,omitempty"`
	Purpose     string           `json:"purpose,omitempty"`
}

type Ingredient struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Cost        decimal.Decimal `json:"cost"`
	Description string          `json:"description,omitempty"`
}

type IngredientInput struct {
	Name        string           `json:"name,omitempty"`
	Unit        string           `json:"unit,omitempty"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	Description string           `json:"description,omitempty"`
}

type Recipe struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RecipeInput struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type CalendarEvent struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
}

type CalendarEventInput struct {
	Title         string `json:"title,omitempty"`
	StartDatetime string `json:"start_datetime,omitempty"`
	EndDatetime   string `json:"end_datetime,omitempty"`
}

type Task struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	DueDate string `json:"due_date,omitempty"`
}

type TaskInput struct {
	Title   string `json:"title,omitempty"`
	Status  string `json:"status,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

type PricingConfig struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	HourlyRate       decimal.Decimal `json:"hourly_rate"`
	OverheadPerMonth decimal.Decimal `json:"overhead_per_month"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

type PricingConfigInput struct {
	HourlyRate       decimal.Decimal `json:"hourly_rate"`
	OverheadPerMonth decimal.Decimal `json:"overhead_per_month"`
}

type DashboardSummary struct {
	Revenue        decimal.Decimal `json:"revenue"`
	TotalOrders    int             `json:"total_orders"`
	IngredientsLow int             `json:"ingredients_low"`
}

type OrdersPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type RevenuePoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ProfitAndLoss struct {
	TotalRevenue      decimal.Decimal   `json:"total_revenue"`
	CostOfGoodsSold   decimal.Decimal   `json:"cost_of_goods_sold"`
	GrossProfit       decimal.Decimal   `json:"gross_profit"`
	OperatingExpenses OperatingExpenses `json:"operating_expenses"`
	NetProfit         decimal.Decimal   `json:"net_profit"`
}

type OperatingExpenses struct {
	Total      decimal.Decimal            `json:"total"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
}

// ImportResult is the outcome of a synchronous CSV import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportJob tracks an asynchronous import.
type ImportJob struct {
	JobID   string        `json:"job_id"`
	Status  string        `json:"status"`
	Summary *ImportResult `json:"summary,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j ImportJob) Done() bool {
	switch j.Status {
	case "completed", "failed", "done", "error":
		return true
	}
	return false
}

// Filters

type OrderFilter struct {
	Status string
}

func (f OrderFilter) Values() url.Values {
	v := url.Values{}
	setIf(v, "status", f.Status)
	return v
}

type ExpenseFilter struct {
	StartDate string
	EndDate   string
	Category  string
}

func (f ExpenseFilter) Values() url.Values {
	v := url.Values{}
	setIf(v, "start_date", f.StartDate)
	setIf(v, "end_date", f.EndDate)
	setIf(v, "category", f.Category)
	return v
}

type MileageFilter struct {
	StartDate string
	EndDate   string
	Purpose   string
}

func (f MileageFilter) Values() url.Values {
	v := url.Values{}
	setIf(v, "start_date", f.StartDate)
	setIf(v, "end_date", f.EndDate)
	setIf(v, "purpose", f.Purpose)
	return v
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
