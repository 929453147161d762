package services

import (
	"context"
	"fmt"
	"io"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

const statementMaxEntries = 500

// StatementService renders a caller's ledger view as a PDF.
type StatementService struct {
	billing *BillingService
	now     func() time.Time
}

func NewStatementService(billing *BillingService, opts ...Option) *StatementService {
	o := buildOptions(opts)
	return &StatementService{billing: billing, now: o.now}
}

var statementColumns = []struct {
	title string
	width float64
}{
	{"Settled", 34},
	{"Conversation", 58},
	{"Minutes", 18},
	{"Rate", 18},
	{"Amount", 22},
	{"Balance", 22},
}

func (s *StatementService) Render(ctx context.Context, caller Party, w io.Writer) error {
	history, err := s.billing.History(ctx, caller, 1, maxPageLimit)
	if err != nil {
		return err
	}
	entries := history.Entries
	for page := 2; history.HasMore && len(entries) < statementMaxEntries; page++ {
		history, err = s.billing.History(ctx, caller, page, maxPageLimit)
		if err != nil {
			return err
		}
		entries = append(entries, history.Entries...)
	}

	title := "Credit Statement"
	if caller.RateRole() == RateCredit {
		title = "Earnings Statement"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s", caller.ID()))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", s.now().UTC().Format(time.RFC1123)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	for _, col := range statementColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Amount)
		row := []string{
			entry.SettledAt.UTC().Format("2006-01-02 15:04"),
			truncate(entry.ConversationID, 32),
			fmt.Sprintf("%d", entry.BillableMinutes),
			entry.RatePerMinute.StringFixed(2),
			entry.Amount.StringFixed(2),
			entry.BalanceAfter.StringFixed(2),
		}
		for i, col := range statementColumns {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(col.width, 6, row[i], "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	label := "Total debited"
	if caller.RateRole() == RateCredit {
		label = "Total credited"
	}
	pdf.Cell(0, 6, fmt.Sprintf("%s: %s (%d sessions)", label, total.StringFixed(2), len(entries)))

	if err := pdf.Output(w); err != nil {
		return apperrors.New500Error(fmt.Errorf("render statement: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
