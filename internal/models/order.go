package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"
)

// DateLayout is the canonical interchange form of a datestamp: yyyy/mm/dd.
const DateLayout = "2006/01/02"

const (
	ApplePrice  = 1.0
	OrangePrice = 2.0
)

// Epoch is the earliest date an order may carry.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// MaxQuantity is the largest quantity a stored order column can hold.
const MaxQuantity = math.MaxInt32

var datePattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)

const (
	msgNoSale         = "No sale has been made! Order at least one apple or orange."
	msgBuyerDigits    = "Buyer's name cannot contain numbers!"
	msgDateFormat     = "Date in wrong format! It should be yyyy/mm/dd (no spaces)."
	msgDateTypos      = msgDateFormat + " Perhaps check for typos?"
	msgDateTooOld     = "We only track orders after 1 January 2000. Please enter only valid orders."
	msgDateNotReal    = "Date %s is not a valid calendar date."
	msgQtyNotPositive = "Number of %s must be a positive integer."
	msgQtyTooLarge    = "Number of %s cannot exceed %d."
)

type Order struct {
	ID        int64  `json:"id"`
	Datestamp string `json:"datestamp"`
	Buyer     string `json:"buyer"`
	Apples    *int   `json:"apples"`
	Oranges   *int   `json:"oranges"`
}

// OrderInput is a candidate order as submitted by a client on create.
type OrderInput struct {
	Datestamp string `json:"datestamp"`
	Buyer     string `json:"buyer"`
	Apples    *int   `json:"apples"`
	Oranges   *int   `json:"oranges"`
}

// OrderPatch carries the fields a caller wants to revise. A nil field keeps the
// stored value; an omitted field and an explicit null are treated the same.
type OrderPatch struct {
	Datestamp *string `json:"datestamp"`
	Buyer     *string `json:"buyer"`
	Apples    *int    `json:"apples"`
	Oranges   *int    `json:"oranges"`
}

// AuditEntry is the state of an order immediately before an update.
type AuditEntry struct {
	OrderID   int64     `json:"id"`
	Datestamp string    `json:"datestamp"`
	Buyer     string    `json:"buyer"`
	Apples    *int      `json:"apples"`
	Oranges   *int      `json:"oranges"`
	ChangedAt time.Time `json:"changed_at"`
}

type Cost struct {
	OrderID int64   `json:"id"`
	Apples  float64 `json:"apples"`
	Oranges float64 `json:"oranges"`
	Total   float64 `json:"total"`
}

// Validate runs the input checks in a fixed order and reports the first
// violation: sale presence, quantities, buyer, date length, date pattern,
// calendar date, date range.
func (in OrderInput) Validate() error {
	if in.Apples == nil && in.Oranges == nil {
		return NewError(KindInvalidValue, msgNoSale)
	}
	if err := checkQuantity("apples", in.Apples); err != nil {
		return err
	}
	if err := checkQuantity("oranges", in.Oranges); err != nil {
		return err
	}
	for _, r := range in.Buyer {
		if unicode.IsDigit(r) {
			return NewError(KindInvalidValue, msgBuyerDigits)
		}
	}
	if _, err := ParseDatestamp(in.Datestamp); err != nil {
		return err
	}
	return nil
}

// ParseDatestamp checks a yyyy/mm/dd string and returns the date it denotes.
func ParseDatestamp(s string) (time.Time, error) {
	if utf8.RuneCountInString(s) != 10 {
		return time.Time{}, NewError(KindMalformedInput, msgDateTypos)
	}
	if !datePattern.MatchString(s) {
		return time.Time{}, NewError(KindMalformedInput, msgDateFormat)
	}

	// the pattern guarantees three ASCII digit groups
	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[5:7])
	day, _ := strconv.Atoi(s[8:10])

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if year < 1 || date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return time.Time{}, NewError(KindInvalidValue, fmt.Sprintf(msgDateNotReal, s))
	}
	if date.Before(Epoch) {
		return time.Time{}, NewError(KindOutOfRange, msgDateTooOld)
	}
	return date, nil
}

// FormatDatestamp renders a stored date in the interchange form.
func FormatDatestamp(t time.Time) string {
	return t.Format(DateLayout)
}

// NewOrder assembles an order from a validated input and an assigned id.
func NewOrder(id int64, in OrderInput) Order {
	return Order{
		ID:        id,
		Datestamp: in.Datestamp,
		Buyer:     in.Buyer,
		Apples:    copyInt(in.Apples),
		Oranges:   copyInt(in.Oranges),
	}
}

// Input returns the mutable fields of the order as a candidate input.
func (o Order) Input() OrderInput {
	return OrderInput{
		Datestamp: o.Datestamp,
		Buyer:     o.Buyer,
		Apples:    copyInt(o.Apples),
		Oranges:   copyInt(o.Oranges),
	}
}

// Merge applies the patch field by field: a supplied value replaces the stored
// one, an absent value keeps it. The id never changes.
func (o Order) Merge(p OrderPatch) Order {
	merged := Order{
		ID:        o.ID,
		Datestamp: o.Datestamp,
		Buyer:     o.Buyer,
		Apples:    copyInt(o.Apples),
		Oranges:   copyInt(o.Oranges),
	}
	if p.Datestamp != nil {
		merged.Datestamp = *p.Datestamp
	}
	if p.Buyer != nil {
		merged.Buyer = *p.Buyer
	}
	if p.Apples != nil {
		merged.Apples = copyInt(p.Apples)
	}
	if p.Oranges != nil {
		merged.Oranges = copyInt(p.Oranges)
	}
	return merged
}

// Snapshot captures the order as an audit entry stamped with changedAt.
func (o Order) Snapshot(changedAt time.Time) AuditEntry {
	return AuditEntry{
		OrderID:   o.ID,
		Datestamp: o.Datestamp,
		Buyer:     o.Buyer,
		Apples:    copyInt(o.Apples),
		Oranges:   copyInt(o.Oranges),
		ChangedAt: changedAt,
	}
}

func (o Order) Cost() Cost {
	c := Cost{OrderID: o.ID}
	if o.Apples != nil {
		c.Apples = float64(*o.Apples) * ApplePrice
	}
	if o.Oranges != nil {
		c.Oranges = float64(*o.Oranges) * OrangePrice
	}
	c.Total = c.Apples + c.Oranges
	return c
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func checkQuantity(name string, qty *int) error {
	switch {
	case qty == nil:
		return nil
	case *qty <= 0:
		return QuantityError(name)
	case *qty > MaxQuantity:
		return NewError(KindInvalidValue, fmt.Sprintf(msgQtyTooLarge, name, MaxQuantity))
	}
	return nil
}

// QuantityError reports a quantity that is not a positive integer.
func QuantityError(name string) *Error {
	return NewError(KindInvalidValue, fmt.Sprintf(msgQtyNotPositive, name))
}
