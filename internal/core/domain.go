package core

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type (
	PaymentType     string
	ExpenseCategory string

	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	User struct {
		ID             int64     `json:"id"`
		Email          string    `json:"email"`
		HashedPassword string    `json:"-"`
		FullName       string    `json:"full_name,omitempty"`
		IsActive       bool      `json:"is_active"`
		IsAdmin        bool      `json:"is_admin"`
		CreatedAt      time.Time `json:"created_at"`
	}

	Buyer struct {
		ID             int64      `json:"id"`
		Name           string     `json:"name"`
		Phone          string     `json:"phone,omitempty"`
		Address        string     `json:"address,omitempty"`
		Notes          string     `json:"notes,omitempty"`
		OpeningBalance Money      `json:"opening_balance"`
		CreatedAt      time.Time  `json:"created_at"`
		UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	}

	// BuyerBalance is a buyer together with its computed outstanding amount.
	BuyerBalance struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Phone       string `json:"phone,omitempty"`
		Outstanding Money  `json:"outstanding_balance"`
	}

	ProductType struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	SaleItem struct {
		ID            int64    `json:"id"`
		SaleID        int64    `json:"sale_id"`
		ProductTypeID int64    `json:"product_type_id"`
		Quantity      Quantity `json:"quantity"`
		Unit          string   `json:"unit"`
		PricePerUnit  Money    `json:"price_per_unit"`
		TotalPrice    Money    `json:"total_price"`
	}

	Sale struct {
		ID                 int64       `json:"id"`
		Date               Date        `json:"date"`
		BuyerID            int64       `json:"buyer_id"`
		PaymentType        PaymentType `json:"payment_type"`
		PaymentReceivedNow Money       `json:"payment_received_now"`
		Total              Money       `json:"total_amount"`
		Notes              string      `json:"notes,omitempty"`
		Seq                int64       `json:"-"`
		Items              []SaleItem  `json:"sale_items"`
		CreatedAt          time.Time   `json:"created_at"`
		UpdatedAt          *time.Time  `json:"updated_at,omitempty"`
	}

	Payment struct {
		ID            int64     `json:"id"`
		Date          Date      `json:"date"`
		BuyerID       int64     `json:"buyer_id"`
		Amount        Money     `json:"amount"`
		PaymentMethod string    `json:"payment_method"`
		Notes         string    `json:"notes,omitempty"`
		SaleID        *int64    `json:"sale_id,omitempty"`
		Seq           int64     `json:"-"`
		CreatedAt     time.Time `json:"created_at"`
	}

	Purchase struct {
		ID               int64      `json:"id"`
		Date             Date       `json:"date"`
		SellerName       string     `json:"seller_name"`
		SellerPhone      string     `json:"seller_phone,omitempty"`
		PickupLocation   string     `json:"pickup_location,omitempty"`
		ScrapType        string     `json:"scrap_type,omitempty"`
		TransportService string     `json:"transport_service,omitempty"`
		TransportCost    Money      `json:"transport_cost"`
		Quantity         Quantity   `json:"quantity"`
		Unit             string     `json:"unit"`
		PricePerUnit     Money      `json:"price_per_unit"`
		TotalCost        Money      `json:"total_purchase_cost"`
		Notes            string     `json:"notes,omitempty"`
		CreatedAt        time.Time  `json:"created_at"`
		UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	}

	Expense struct {
		ID          int64           `json:"id"`
		Date        Date            `json:"date"`
		Category    ExpenseCategory `json:"category"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		PurchaseID  *int64          `json:"purchase_id,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	}
)

const (
	PaymentPaid    PaymentType = "Paid"
	PaymentPartial PaymentType = "Partial"
	PaymentCredit  PaymentType = "Credit"
)

const (
	ExpenseRent        ExpenseCategory = "Rent"
	ExpenseElectricity ExpenseCategory = "Electricity"
	ExpenseWater       ExpenseCategory = "Water"
	ExpenseLabour      ExpenseCategory = "Labour"
	ExpenseTransport   ExpenseCategory = "Transport"
	ExpenseTax         ExpenseCategory = "Tax"
	ExpenseOther       ExpenseCategory = "Other"
)

const (
	DefaultUnit          = "kg"
	DefaultPaymentMethod = "Cash"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentPaid, PaymentPartial, PaymentCredit:
		return true
	}
	return false
}

func ExpenseCategories() []ExpenseCategory {
	return []ExpenseCategory{
		ExpenseRent, ExpenseElectricity, ExpenseWater, ExpenseLabour,
		ExpenseTransport, ExpenseTax, ExpenseOther,
	}
}

func (c ExpenseCategory) Valid() bool {
	for _, v := range ExpenseCategories() {
		if c == v {
			return true
		}
	}
	return false
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }

// MonthStart returns the first day of the date's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(unquoted)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan accepts the DATE shapes of both drivers: time.Time from PostgreSQL and
// text (or time.Time for declared DATE columns) from SQLite.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanText(s string) error {
	if len(s) >= len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// DateRange is an inclusive, optionally open-ended range of days.
type DateRange struct {
	Start *Date
	End   *Date
}

func (r DateRange) Validate() error {
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return Invalid("end_date", "must not be before start_date")
	}
	return nil
}

func (r DateRange) Contains(d Date) bool {
	if r.Start != nil && d.Before(*r.Start) {
		return false
	}
	if r.End != nil && d.After(*r.End) {
		return false
	}
	return true
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

// Page is 1-based pagination passed through from the API layer.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Limit
}

type BuyerFilter struct {
	Search string
	Page   Page
}

type SaleFilter struct {
	Range       DateRange
	BuyerID     int64
	PaymentType PaymentType
	Page        Page
}

type PurchaseFilter struct {
	Range DateRange
	Page  Page
}

type ExpenseFilter struct {
	Range    DateRange
	Category ExpenseCategory
	Page     Page
}
