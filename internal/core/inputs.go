package core

import (
	"strconv"
	"strings"
)

// Inputs are the typed write requests accepted by the services. Struct tags
// cover shape checks at the API boundary; Validate covers the domain rules and
// fills defaults.

type BuyerInput struct {
	Name           string `json:"name" validate:"required,max=255"`
	Phone          string `json:"phone" validate:"max=20"`
	Address        string `json:"address"`
	Notes          string `json:"notes"`
	OpeningBalance Money  `json:"opening_balance"`
}

func (in *BuyerInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return Invalid("name", "is required")
	}
	if !in.OpeningBalance.InRange() {
		return Invalid("opening_balance", "is out of range")
	}
	return nil
}

type ProductTypeInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

func (in *ProductTypeInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Invalid("name", "is required")
	}
	return nil
}

type SaleItemInput struct {
	ProductTypeID int64    `json:"product_type_id" validate:"required,gt=0"`
	Quantity      Quantity `json:"quantity"`
	Unit          string   `json:"unit" validate:"max=20"`
	PricePerUnit  Money    `json:"price_per_unit"`
}

type SaleInput struct {
	Date               Date            `json:"date"`
	BuyerID            int64           `json:"buyer_id" validate:"required,gt=0"`
	PaymentType        PaymentType     `json:"payment_type" validate:"omitempty,oneof=Paid Partial Credit"`
	PaymentReceivedNow Money           `json:"payment_received_now"`
	Notes              string          `json:"notes"`
	Items              []SaleItemInput `json:"sale_items" validate:"required,min=1,dive"`
}

func (in *SaleInput) Validate() error {
	if in.Date.IsZero() {
		in.Date = Today()
	}
	if in.PaymentType == "" {
		in.PaymentType = PaymentCredit
	}
	if !in.PaymentType.Valid() {
		return Invalid("payment_type", "must be one of Paid, Partial, Credit")
	}
	if in.PaymentReceivedNow.IsNegative() {
		return Invalid("payment_received_now", "must not be negative")
	}
	if !in.PaymentReceivedNow.InRange() {
		return Invalid("payment_received_now", "is out of range")
	}
	if len(in.Items) == 0 {
		return Invalid("sale_items", "at least one item is required")
	}
	for i := range in.Items {
		item := &in.Items[i]
		if item.ProductTypeID <= 0 {
			return Invalid(itemField(i, "product_type_id"), "is required")
		}
		if !item.Quantity.IsPositive() {
			return Invalid(itemField(i, "quantity"), "must be greater than zero")
		}
		if !item.PricePerUnit.IsPositive() {
			return Invalid(itemField(i, "price_per_unit"), "must be greater than zero")
		}
		if !item.Quantity.InRange() {
			return Invalid(itemField(i, "quantity"), "is out of range")
		}
		if !item.PricePerUnit.InRange() || !item.Quantity.Times(item.PricePerUnit).InRange() {
			return Invalid(itemField(i, "price_per_unit"), "is out of range")
		}
		if strings.TrimSpace(item.Unit) == "" {
			item.Unit = DefaultUnit
		}
	}
	if !in.Total().InRange() {
		return Invalid("sale_items", "total is out of range")
	}
	return nil
}

// Total is the exact sum of quantity × unit price over the items.
func (in SaleInput) Total() Money {
	total := Money{}
	for _, item := range in.Items {
		total = total.Add(item.Quantity.Times(item.PricePerUnit))
	}
	return total
}

// SaleUpdate changes a sale's header; a non-nil Items replaces the lines.
type SaleUpdate struct {
	Date               *Date           `json:"date"`
	BuyerID            *int64          `json:"buyer_id" validate:"omitempty,gt=0"`
	PaymentType        *PaymentType    `json:"payment_type" validate:"omitempty,oneof=Paid Partial Credit"`
	PaymentReceivedNow *Money          `json:"payment_received_now"`
	Notes              *string         `json:"notes"`
	Items              []SaleItemInput `json:"sale_items" validate:"omitempty,dive"`
}

type PaymentInput struct {
	Date          Date   `json:"date"`
	Amount        Money  `json:"amount"`
	PaymentMethod string `json:"payment_method" validate:"max=100"`
	Notes         string `json:"notes"`
}

func (in *PaymentInput) Validate() error {
	if !in.Amount.IsPositive() {
		return Invalid("amount", "must be greater than zero")
	}
	if !in.Amount.InRange() {
		return Invalid("amount", "is out of range")
	}
	if in.Date.IsZero() {
		in.Date = Today()
	}
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	if in.PaymentMethod == "" {
		in.PaymentMethod = DefaultPaymentMethod
	}
	return nil
}

type PurchaseInput struct {
	Date             Date     `json:"date"`
	SellerName       string   `json:"seller_name" validate:"required,max=255"`
	SellerPhone      string   `json:"seller_phone" validate:"max=20"`
	PickupLocation   string   `json:"pickup_location"`
	ScrapType        string   `json:"scrap_type" validate:"max=100"`
	TransportService string   `json:"transport_service" validate:"max=100"`
	TransportCost    Money    `json:"transport_cost"`
	Quantity         Quantity `json:"quantity"`
	Unit             string   `json:"unit" validate:"max=20"`
	PricePerUnit     Money    `json:"price_per_unit"`
	Notes            string   `json:"notes"`
}

func (in *PurchaseInput) Validate() error {
	in.SellerName = strings.TrimSpace(in.SellerName)
	if in.SellerName == "" {
		return Invalid("seller_name", "is required")
	}
	if in.Date.IsZero() {
		in.Date = Today()
	}
	if !in.Quantity.IsPositive() {
		return Invalid("quantity", "must be greater than zero")
	}
	if !in.PricePerUnit.IsPositive() {
		return Invalid("price_per_unit", "must be greater than zero")
	}
	if in.TransportCost.IsNegative() {
		return Invalid("transport_cost", "must not be negative")
	}
	if !in.Quantity.InRange() {
		return Invalid("quantity", "is out of range")
	}
	if !in.PricePerUnit.InRange() {
		return Invalid("price_per_unit", "is out of range")
	}
	if !in.TransportCost.InRange() {
		return Invalid("transport_cost", "is out of range")
	}
	if !in.TotalCost().InRange() {
		return Invalid("price_per_unit", "total cost is out of range")
	}
	if strings.TrimSpace(in.Unit) == "" {
		in.Unit = DefaultUnit
	}
	return nil
}

// TotalCost is quantity × price plus transport.
func (in PurchaseInput) TotalCost() Money {
	return in.Quantity.Times(in.PricePerUnit).Add(in.TransportCost)
}

type ExpenseInput struct {
	Date        Date            `json:"date"`
	Category    ExpenseCategory `json:"category" validate:"required"`
	Amount      Money           `json:"amount"`
	Description string          `json:"description"`
}

func (in *ExpenseInput) Validate() error {
	if !in.Category.Valid() {
		return Invalid("category", "unknown category %q", in.Category)
	}
	if !in.Amount.IsPositive() {
		return Invalid("amount", "must be greater than zero")
	}
	if !in.Amount.InRange() {
		return Invalid("amount", "is out of range")
	}
	if in.Date.IsZero() {
		in.Date = Today()
	}
	return nil
}

func itemField(i int, name string) string {
	return "sale_items[" + strconv.Itoa(i) + "]." + name
}
