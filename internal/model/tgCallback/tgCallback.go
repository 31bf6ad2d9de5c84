package tgCallback

// Callback data prefixes. The suffix after ":" carries the entity id.
const (
	SelectPortfolioPrefix   = "selectPortfolio:"
	DeletePortfolioPrefix   = "deletePortfolio:"
	DeleteTransactionPrefix = "deleteTransaction:"
)
