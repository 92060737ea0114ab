package http

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"financas/internal/core"
	"financas/internal/ledger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type transactionRequest struct {
	Description string      `json:"description" validate:"required,max=200"`
	Category    string      `json:"category" validate:"max=60"`
	Value       *core.Money `json:"value" validate:"required"`
	Date        string      `json:"date" validate:"required,datetime=2006-01-02"`
	GoalID      string      `json:"goalId" validate:"max=64"`
}

func (req transactionRequest) input() (core.TransactionInput, error) {
	d, err := core.ParseDate(req.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Description: req.Description,
		Category:    req.Category,
		Value:       *req.Value,
		Date:        d,
		GoalID:      req.GoalID,
	}, nil
}

// transactionPatch is a partial update. A null or missing goalId leaves the
// link unchanged; an empty string unlinks.
type transactionPatch struct {
	Description *string     `json:"description" validate:"omitempty,max=200"`
	Category    *string     `json:"category" validate:"omitempty,max=60"`
	Value       *core.Money `json:"value"`
	Date        *string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	GoalID      *string     `json:"goalId" validate:"omitempty,max=64"`
}

func (p transactionPatch) changes() (core.TransactionChanges, error) {
	ch := core.TransactionChanges{
		Description: p.Description,
		Category:    p.Category,
		Value:       p.Value,
		GoalID:      p.GoalID,
	}
	if p.Date != nil {
		d, err := core.ParseDate(*p.Date)
		if err != nil {
			return ch, err
		}
		ch.Date = &d
	}
	return ch, nil
}

type goalRequest struct {
	Name   string      `json:"name" validate:"required,max=100"`
	Target *core.Money `json:"target" validate:"required"`
	Color  string      `json:"color" validate:"omitempty,hexcolor"`
}

type goalPatch struct {
	Name   *string     `json:"name" validate:"omitempty,max=100"`
	Target *core.Money `json:"target"`
	Color  *string     `json:"color" validate:"omitempty,hexcolor"`
}

type movementRequest struct {
	Amount      *core.Money `json:"amount" validate:"required"`
	Description string      `json:"description" validate:"max=200"`
	Date        string      `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (req movementRequest) movement() (ledger.Movement, error) {
	m := ledger.Movement{Amount: *req.Amount, Description: req.Description}
	if req.Date != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			return m, err
		}
		m.Date = d
	}
	return m, nil
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed JSON body")
	}
	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// parseYearMonth reads year and month query parameters, defaulting to the
// current month.
func parseYearMonth(r *http.Request, now time.Time) (year, month int, err error) {
	year, month = now.Year(), int(now.Month())
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if year, err = strconv.Atoi(v); err != nil || year < 1 || year > 9999 {
			return 0, 0, badRequest("invalid year %q", v)
		}
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			return 0, 0, badRequest("invalid month %q", v)
		}
		if month < 1 || month > 12 {
			return 0, 0, core.ErrInvalidMonth
		}
	}
	return year, month, nil
}

// parseFilter builds a transaction filter. Year and month are optional.
func parseFilter(r *http.Request) (core.TransactionFilter, error) {
	q := r.URL.Query()
	f := core.TransactionFilter{
		Search: strings.TrimSpace(q.Get("q")),
		GoalID: strings.TrimSpace(q.Get("goal")),
	}
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return f, badRequest("invalid year %q", v)
		}
		f.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return f, badRequest("invalid month %q", v)
		}
		f.Month = m
	}
	return f, nil
}
