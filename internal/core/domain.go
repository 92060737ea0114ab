package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultCategory is assigned to transactions recorded without a category.
	DefaultCategory = "Outros"
	// InvestmentCategory is used for goal contributions and withdrawals.
	InvestmentCategory = "Investimento"
	// DefaultGoalColor is the display color of goals created without one.
	DefaultGoalColor = "#FF6600"

	maxDescriptionLen = 200
	maxNameLen        = 100
)

type (
	Date struct {
		time.Time
	}

	// Money is a signed amount in cents. Positive values are income and
	// negative values are expenses.
	Money struct {
		Cents int64
	}

	// Transaction is a single dated income or expense record. GoalID is empty
	// when the transaction is not linked to a goal.
	Transaction struct {
		ID          string    `json:"id"`
		UserID      string    `json:"userId"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		Value       Money     `json:"value"`
		Date        Date      `json:"date"`
		GoalID      string    `json:"goalId,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// Goal is a savings target. Current is derived from the transactions
	// linked to the goal and is only ever changed by the ledger.
	Goal struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Name      string    `json:"name"`
		Current   Money     `json:"current"`
		Target    Money     `json:"target"`
		Color     string    `json:"color"`
		CreatedAt time.Time `json:"createdAt"`
	}

	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash []byte    `json:"passwordHash"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	TransactionInput struct {
		Description string
		Category    string
		Value       Money
		Date        Date
		GoalID      string
	}

	// TransactionChanges describes a partial update. Nil fields are left
	// untouched; a GoalID pointing to "" unlinks the transaction.
	TransactionChanges struct {
		Description *string
		Category    *string
		Value       *Money
		Date        *Date
		GoalID      *string
	}

	GoalInput struct {
		Name   string
		Target Money
		Color  string
	}

	GoalChanges struct {
		Name   *string
		Target *Money
		Color  *string
	}
)

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return DefaultCategory
	}
	return c
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// Normalize trims text fields and fills in the default category.
func (in TransactionInput) Normalize() TransactionInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = normalizeCategory(in.Category)
	in.GoalID = strings.TrimSpace(in.GoalID)
	return in
}

func (in TransactionInput) Validate() error {
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	return in.Date.Validate()
}

func (t Transaction) Validate() error {
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	return t.Date.Validate()
}

// IsEmpty reports whether no field would change.
func (c TransactionChanges) IsEmpty() bool {
	return c.Description == nil && c.Category == nil && c.Value == nil && c.Date == nil && c.GoalID == nil
}

// Apply returns t with the requested changes applied.
func (c TransactionChanges) Apply(t Transaction) Transaction {
	if c.Description != nil {
		t.Description = strings.TrimSpace(*c.Description)
	}
	if c.Category != nil {
		t.Category = normalizeCategory(*c.Category)
	}
	if c.Value != nil {
		t.Value = *c.Value
	}
	if c.Date != nil {
		t.Date = *c.Date
	}
	if c.GoalID != nil {
		t.GoalID = strings.TrimSpace(*c.GoalID)
	}
	return t
}

// Linked reports whether the transaction references a goal.
func (t Transaction) Linked() bool {
	return t.GoalID != ""
}

func (in GoalInput) Normalize() GoalInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = DefaultGoalColor
	}
	return in
}

func (in GoalInput) Validate() error {
	return validateGoalFields(in.Name, in.Target)
}

func (g Goal) Validate() error {
	return validateGoalFields(g.Name, g.Target)
}

func validateGoalFields(name string, target Money) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return ErrNameTooLong
	}
	if target.Cents <= 0 {
		return ErrInvalidTarget
	}
	return nil
}

// Apply returns g with the requested changes applied. Current is never
// touched here.
func (c GoalChanges) Apply(g Goal) Goal {
	if c.Name != nil {
		g.Name = strings.TrimSpace(*c.Name)
	}
	if c.Target != nil {
		g.Target = *c.Target
	}
	if c.Color != nil {
		if color := strings.TrimSpace(*c.Color); color != "" {
			g.Color = color
		}
	}
	return g
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
