package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

func (g *XLSXGenerator) Generate(ctx context.Context, portfolios []model.PortfolioFullInfo) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(portfolios) == 0 {
		return nil, "", errors.New("empty portfolios")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	for i, portfolio := range portfolios {
		err := g.fillSheet(ctx, f, portfolio, i+1)
		if err != nil {
			return nil, "", err
		}
	}

	// drop the default sheet, every portfolio got its own
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(ctx context.Context, f *excelize.File, portfolio model.PortfolioFullInfo, ordinal int) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.fillSheet"

	sheetName := fmt.Sprintf("%d. %s", ordinal, portfolio.PortfolioName)
	_, err := f.NewSheet(sheetName)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	// summary block
	if err := g.setSectionHeader(f, sheetName, "A1", "D1", "Summary", "#cfe2f3"); err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A2", "market value")
	_ = f.SetCellStr(sheetName, "B2", "cost basis")
	_ = f.SetCellStr(sheetName, "C2", "unrealized p/l")
	_ = f.SetCellStr(sheetName, "D2", "lots")

	_ = f.SetCellValue(sheetName, "A3", portfolio.MarketValue.InexactFloat64())
	_ = f.SetCellValue(sheetName, "B3", portfolio.CostBasis.InexactFloat64())
	_ = f.SetCellValue(sheetName, "C3", portfolio.UnrealizedPL.InexactFloat64())
	_ = f.SetCellInt(sheetName, "D3", int(portfolio.LotsCount))

	// holdings block
	if err := g.setSectionHeader(f, sheetName, "A5", "I5", "Holdings", "#d9ead3"); err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A6", "code")
	_ = f.SetCellStr(sheetName, "B6", "name")
	_ = f.SetCellStr(sheetName, "C6", "purchase date")
	_ = f.SetCellStr(sheetName, "D6", "purchase price")
	_ = f.SetCellStr(sheetName, "E6", "bought")
	_ = f.SetCellStr(sheetName, "F6", "remaining")
	_ = f.SetCellStr(sheetName, "G6", "last price")
	_ = f.SetCellStr(sheetName, "H6", "market value")
	_ = f.SetCellStr(sheetName, "I6", "unrealized p/l")

	rowNum := 6
	for _, holding := range portfolio.Holdings {
		rowNum++
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowNum), holding.StockCode)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", rowNum), holding.Shortname)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", rowNum), holding.PurchaseDate.Format("2006-01-02"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowNum), holding.PurchaseUnitPrice.InexactFloat64())
		_ = f.SetCellInt(sheetName, fmt.Sprintf("E%d", rowNum), int(holding.PurchaseQuantity))
		_ = f.SetCellInt(sheetName, fmt.Sprintf("F%d", rowNum), int(holding.RemainingQuantity))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowNum), holding.Price.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowNum), holding.MarketValue.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", rowNum), holding.UnrealizedPL.InexactFloat64())
	}

	// transaction history block
	rowNum += 2

	if err := g.setSectionHeader(f, sheetName, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("F%d", rowNum), "Transactions", "#cccccc"); err != nil {
		return err
	}

	rowNum++
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowNum), "type")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", rowNum), "code")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", rowNum), "quantity")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", rowNum), "unit price")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", rowNum), "amount")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("F%d", rowNum), "date")

	for _, txn := range portfolio.Transactions {
		rowNum++
		amount := txn.UnitPrice.Mul(decimal.NewFromInt(txn.Quantity))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowNum), txn.Type)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", rowNum), txn.StockCode)
		_ = f.SetCellInt(sheetName, fmt.Sprintf("C%d", rowNum), int(txn.Quantity))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowNum), txn.UnitPrice.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowNum), amount.InexactFloat64())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("F%d", rowNum), txn.Date.Format("2006-01-02"))
	}

	return nil
}

func (g *XLSXGenerator) setSectionHeader(f *excelize.File, sheetName, fromCell, toCell, title, color string) error {
	if err := f.MergeCell(sheetName, fromCell, toCell); err != nil {
		return err
	}

	f.SetCellValue(sheetName, fromCell, title)

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(sheetName, fromCell, fromCell, styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	return nil
}
