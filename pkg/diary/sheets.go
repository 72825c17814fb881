// Package diary keeps a trading diary of fully closed positions in a Google
// Sheet, one row per position.
package diary

import (
	"context"
	"fmt"
	"sync"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timeLayout = "2006-01-02 15:04:05"

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// SheetsDiary appends closed positions to a sheet. The header row is written
// before the first append when the sheet is empty.
type SheetsDiary struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *logrus.Logger

	mu          sync.Mutex
	headerReady bool
}

// NewSheetsDiary authenticates with the service-account CredentialsFile unless
// opts already carry credentials.
func NewSheetsDiary(ctx context.Context, cfg Config, logger *logrus.Logger, opts ...option.ClientOption) (*SheetsDiary, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("diary: spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "trading"
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("diary: failed to create sheets service: %w", err)
	}

	return &SheetsDiary{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger,
	}, nil
}

func (d *SheetsDiary) RecordClosed(ctx context.Context, p models.ClosedPosition) error {
	if err := d.ensureHeader(ctx); err != nil {
		return err
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{Row(p)}}

	resp, err := d.service.Spreadsheets.Values.Append(d.spreadsheetID, d.sheetName, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("diary: append %s: %w", p.Symbol, err)
	}

	fields := logrus.Fields{"symbol": p.Symbol, "pnl": p.TotalPnL}
	if resp.Updates != nil {
		fields["range"] = resp.Updates.UpdatedRange
	}
	d.logger.WithFields(fields).Info("Recorded closed position in diary")
	return nil
}

func (d *SheetsDiary) ensureHeader(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.headerReady {
		return nil
	}

	headerRange := d.sheetName + "!A1:M1"
	existing, err := d.service.Spreadsheets.Values.Get(d.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("diary: read header: %w", err)
	}
	if len(existing.Values) == 0 {
		vr := &sheets.ValueRange{Values: [][]interface{}{Header()}}
		if _, err := d.service.Spreadsheets.Values.Update(d.spreadsheetID, headerRange, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do(); err != nil {
			return fmt.Errorf("diary: write header: %w", err)
		}
		d.logger.WithField("sheet", d.sheetName).Info("Wrote diary header")
	}
	d.headerReady = true
	return nil
}

// Header lists the column titles matching Row.
func Header() []interface{} {
	return []interface{}{
		"Closed at", "Symbol", "Sell leg", "Quantity",
		"Spot entry", "Spot exit", "Futures entry", "Futures exit",
		"Spread at open %", "Spread at close %",
		"Spot PnL", "Futures PnL", "Total PnL",
	}
}

func Row(p models.ClosedPosition) []interface{} {
	return []interface{}{
		p.ClosedAt.UTC().Format(timeLayout),
		p.Symbol,
		string(p.SellLeg),
		p.Quantity,
		p.SpotEntryPrice,
		p.SpotExitPrice,
		p.FutureEntryPrice,
		p.FutureExitPrice,
		p.SpreadAtOpen,
		p.SpreadAtClose,
		p.SpotPnL,
		p.FuturesPnL,
		p.TotalPnL,
	}
}
