// Package google appends ledger events to a Google Sheets journal.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"financas/internal/core"
	"financas/internal/log"
	ports "financas/internal/sheets"
)

const (
	defaultJournalSheet = "Journal"
	journalColumns      = "J"
	// RAW stores values as given. Descriptions and goal names are user
	// input and must never be parsed as formulas.
	valueInputOption = "RAW"
)

var journalHeader = []any{
	"Timestamp", "Event", "User", "Transaction", "Date",
	"Description", "Category", "Value", "Goal", "Goal current",
}

// Config selects the spreadsheet and the credentials. Service account
// credentials win over OAuth ones.
type Config struct {
	SpreadsheetID string
	JournalSheet  string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	journalBase   string
	logger        *log.Logger

	// next-row cache for the sheet last written
	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.JournalWriter = (*Client)(nil)

// New creates a journal client for cfg.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	base := strings.TrimSpace(cfg.JournalSheet)
	if base == "" {
		base = defaultJournalSheet
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      cfg.SpreadsheetID,
		journalBase:        base,
		logger:             logger,
		cacheValidDuration: 2 * time.Minute,
	}, nil
}

func readInlineOrFile(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// newSheetsService authenticates with a service account when one is
// configured (GOOGLE_APPLICATION_CREDENTIALS included), otherwise with an
// OAuth client and a token produced by oauth-init.
func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	saFile := cfg.ServiceAccountFile
	if cfg.ServiceAccountJSON == "" && saFile == "" {
		saFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	saJSON, err := readInlineOrFile(cfg.ServiceAccountJSON, saFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if len(saJSON) > 0 {
		logger.InfoContext(ctx, "Using service account credentials", "credentials_size", len(saJSON))
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	clientJSON, err := readInlineOrFile(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readInlineOrFile(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	logger.InfoContext(ctx, "Using OAuth credentials", "token_expiry", tok.Expiry)
	// oauth2 takes its base transport from the context
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &tok)))
}

// newHTTPClientWithPooling returns an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// journalRow flattens ev into the journal columns A:J.
func journalRow(ev core.LedgerEvent) []any {
	row := make([]any, len(journalHeader))
	for i := range row {
		row[i] = ""
	}
	row[0] = ev.At.UTC().Format(time.RFC3339)
	row[1] = string(ev.Type)
	row[2] = ev.UserID
	if t := ev.Transaction; t != nil {
		row[3] = t.ID
		row[4] = t.Date.String()
		row[5] = t.Description
		row[6] = t.Category
		row[7] = t.Value.Float()
		row[8] = t.GoalID
	}
	if g := ev.Goal; g != nil {
		row[8] = g.Name
		row[9] = g.Current.Float()
	}
	return row
}

// InvalidateRowCache forces the next append to re-read the sheet length.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

// nextRow returns the first empty row of sheet and reserves it.
func (c *Client) nextRow(ctx context.Context, sheet string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedSheet != sheet || !time.Now().Before(c.cacheExpiresAt) {
		rng := fmt.Sprintf("%s!A:A", sheet)
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", rng, err)
		}
		c.cachedSheet = sheet
		c.cachedRowCount = len(resp.Values)
		c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	}
	c.cachedRowCount++
	return c.cachedRowCount, nil
}

func (c *Client) writeRow(ctx context.Context, sheet string, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, row, journalColumns, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// AppendEvent writes ev to the journal sheet of the event's year. An empty
// sheet gets the header row first.
func (c *Client) AppendEvent(ctx context.Context, ev core.LedgerEvent) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.journalBase, ev.At.Year())

	row, err := c.nextRow(ctx, sheet)
	if err != nil {
		return "", err
	}
	if row == 1 {
		if err := c.writeRow(ctx, sheet, row, journalHeader); err != nil {
			c.InvalidateRowCache()
			return "", err
		}
		if row, err = c.nextRow(ctx, sheet); err != nil {
			return "", err
		}
	}
	if err := c.writeRow(ctx, sheet, row, journalRow(ev)); err != nil {
		// another writer may have moved the end of the sheet
		c.InvalidateRowCache()
		return "", err
	}

	ref := fmt.Sprintf("%s!A%d:%s%d", sheet, row, journalColumns, row)
	c.logger.DebugContext(ctx, "Journal row written",
		log.FieldEventType, ev.Type,
		log.FieldOperation, log.OpAppend,
		"row_ref", ref)
	return ref, nil
}
