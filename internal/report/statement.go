// Package report renders the monthly statement PDF.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"

	"financas/internal/core"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// Statement is everything printed on one monthly statement.
type Statement struct {
	Owner        string
	Summary      core.Summary
	Transactions []core.Transaction
	GeneratedAt  time.Time
}

func monthTitle(year, month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("%s de %d", monthNames[month-1], year)
}

// BuildStatementPDF renders st as an A4 PDF. Transactions are expected to
// be already filtered to the statement month.
func BuildStatementPDF(st Statement) ([]byte, error) {
	sum := st.Summary
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Extrato "+monthTitle(sum.Year, sum.Month)), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("Extrato mensal"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, tr("Período: "+monthTitle(sum.Year, sum.Month)))
	pdf.Ln(6)
	if st.Owner != "" {
		pdf.Cell(0, 8, tr("Titular: "+st.Owner))
		pdf.Ln(6)
	}
	generated := st.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	pdf.Cell(0, 8, tr("Gerado em: "+generated.Format("02/01/2006 15:04")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Resumo")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, row := range [][2]string{
		{"Receitas do mês", sum.MonthIncome.String()},
		{"Despesas do mês", sum.MonthExpenses.String()},
		{"Saldo do mês", sum.MonthBalance.String()},
		{"Saldo total", sum.Balance.String()},
	} {
		pdf.Cell(70, 7, tr(row[0]))
		pdf.CellFormat(50, 7, tr(row[1]), "", 0, "R", false, 0, "")
		pdf.Ln(7)
	}
	pdf.Ln(4)

	if len(sum.Categories) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Despesas por categoria")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(70, 7, "Categoria")
		pdf.CellFormat(50, 7, "Valor", "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, "%", "", 0, "R", false, 0, "")
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 11)
		for _, c := range sum.Categories {
			pdf.Cell(70, 7, tr(c.Category))
			pdf.CellFormat(50, 7, tr(c.Amount.String()), "", 0, "R", false, 0, "")
			pdf.CellFormat(30, 7, fmt.Sprintf("%.1f%%", c.Share), "", 0, "R", false, 0, "")
			pdf.Ln(7)
		}
		pdf.Ln(4)
	}

	if len(sum.Goals) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Metas")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(60, 7, "Meta")
		pdf.CellFormat(40, 7, "Atual", "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, "Objetivo", "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, "Progresso", "", 0, "R", false, 0, "")
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 11)
		for _, g := range sum.Goals {
			pdf.Cell(60, 7, tr(g.Name))
			pdf.CellFormat(40, 7, tr(g.Current.String()), "", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, tr(g.Target.String()), "", 0, "R", false, 0, "")
			pdf.CellFormat(30, 7, fmt.Sprintf("%.0f%%", g.Progress), "", 0, "R", false, 0, "")
			pdf.Ln(7)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, tr("Lançamentos"))
	pdf.Ln(8)
	if len(st.Transactions) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 7, tr("Nenhum lançamento no período."))
		pdf.Ln(7)
	} else {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(25, 7, "Data")
		pdf.Cell(75, 7, tr("Descrição"))
		pdf.Cell(45, 7, "Categoria")
		pdf.CellFormat(40, 7, "Valor", "", 0, "R", false, 0, "")
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 10)
		for _, t := range st.Transactions {
			pdf.Cell(25, 6, t.Date.Format("02/01/2006"))
			pdf.Cell(75, 6, tr(truncate(t.Description, 40)))
			pdf.Cell(45, 6, tr(truncate(t.Category, 22)))
			pdf.CellFormat(40, 6, tr(t.Value.String()), "", 0, "R", false, 0, "")
			pdf.Ln(6)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
