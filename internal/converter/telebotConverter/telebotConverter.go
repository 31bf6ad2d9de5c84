package telebotConverter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/tgCallback"
	tele "gopkg.in/telebot.v4"
)

func PortfoliosResponse(portfolios []model.Portfolio) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	sb.WriteString("📊 Your portfolios:\n\n")

	rows := make([]tele.Row, 0, len(portfolios))
	for _, portfolio := range portfolios {
		sb.WriteString(fmt.Sprintf(" • %s\n", portfolio.PortfolioName))

		strID := strconv.FormatInt(portfolio.PortfolioID, 10)
		rows = append(rows, markup.Row(
			markup.Data(portfolio.PortfolioName, tgCallback.SelectPortfolioPrefix+strID),
			markup.Data("🗑", tgCallback.DeletePortfolioPrefix+strID),
		))
	}

	sb.WriteString("\nTap a portfolio to work with it.")
	markup.Inline(rows...)

	return sb.String(), markup
}

func PortfolioSummaryResponse(summary model.PortfolioSummary) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📊 Portfolio: %s\n", summary.PortfolioName))
	sb.WriteString(fmt.Sprintf("💰 Market value: %s\n", summary.MarketValue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("🧾 Cost basis: %s\n", summary.CostBasis.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s Unrealized P/L: %s\n", plEmoji(summary.UnrealizedPL.IsNegative()), summary.UnrealizedPL.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("📦 Lots: %d\n", summary.LotsCount))

	return sb.String()
}

func HoldingsResponse(holdings []model.Holding) string {
	if len(holdings) == 0 {
		return "No holdings yet. Use /buy to add one."
	}

	var sb strings.Builder
	sb.WriteString("📋 Holdings:\n\n")

	for _, holding := range holdings {
		sb.WriteString(fmt.Sprintf("**%s**", holding.StockCode))
		if holding.Shortname != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", holding.Shortname))
		}
		sb.WriteString("\n")

		sb.WriteString(fmt.Sprintf("   ▸ bought %s: %d @ %s\n",
			holding.PurchaseDate.Format("2006-01-02"),
			holding.PurchaseQuantity,
			holding.PurchaseUnitPrice.StringFixed(2),
		))
		sb.WriteString(fmt.Sprintf("   ▸ remaining: **%d**\n", holding.RemainingQuantity))

		if !holding.Price.IsZero() {
			sb.WriteString(fmt.Sprintf("   ▸ last price: %s\n", holding.Price.StringFixed(2)))
			sb.WriteString(fmt.Sprintf("   ▸ market value: %s\n", holding.MarketValue.StringFixed(2)))
			sb.WriteString(fmt.Sprintf("   ▸ unrealized P/L: **%s**\n", holding.UnrealizedPL.StringFixed(2)))
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

func BuyResultResponse(txn model.BuyTransaction) string {
	return fmt.Sprintf(
		"✅ Bought %d %s @ %s on %s",
		txn.Quantity,
		txn.StockCode,
		txn.UnitPrice.StringFixed(2),
		txn.Date.Format("2006-01-02"),
	)
}

func SaleResultResponse(txn model.SellTransaction, summary model.ProfitLossSummary) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("✅ Sold %d %s @ %s\n\n", txn.Quantity, txn.StockCode, txn.UnitPrice.StringFixed(2)))

	sb.WriteString("Allocated against lots:\n")
	for _, gain := range summary.PerAllocation {
		sb.WriteString(fmt.Sprintf(
			"   ▸ lot %d: %d units, P/L %s, tax est. %s\n",
			gain.LotID,
			gain.Quantity,
			gain.ProfitLoss.StringFixed(2),
			gain.TaxEstimate.StringFixed(2),
		))
	}

	sb.WriteString(fmt.Sprintf("\n%s Total P/L: **%s**\n", plEmoji(summary.TotalProfitLoss.IsNegative()), summary.TotalProfitLoss.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("🏛 Estimated tax: %s\n", summary.TotalTaxEstimate.StringFixed(2)))

	return sb.String()
}

func TransactionsResponse(transactions []model.Transaction) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}

	if len(transactions) == 0 {
		return "No transactions yet.", markup
	}

	var sb strings.Builder
	sb.WriteString("🧾 Transactions:\n\n")

	rows := make([]tele.Row, 0, len(transactions))
	for i, txn := range transactions {
		sb.WriteString(fmt.Sprintf(
			"%d. %s %s %d @ %s on %s\n",
			i+1,
			txn.Type,
			txn.StockCode,
			txn.Quantity,
			txn.UnitPrice.StringFixed(2),
			txn.Date.Format("2006-01-02"),
		))

		rows = append(rows, markup.Row(markup.Data(
			fmt.Sprintf("🗑 %d. %s %s", i+1, txn.Type, txn.StockCode),
			tgCallback.DeleteTransactionPrefix+strconv.FormatInt(txn.ID, 10),
		)))
	}

	markup.Inline(rows...)

	return sb.String(), markup
}

func plEmoji(negative bool) string {
	if negative {
		return "🔻"
	}
	return "📈"
}
