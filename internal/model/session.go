package model

type Action int

const (
	DefaultAction Action = iota
	ExpectingPortfolioName
	ExpectingBuyOrder
	ExpectingSellOrder
)

// Session is the per-chat dialog state: what input the bot expects next
// and which portfolio the chat currently works with.
type Session struct {
	Action      Action
	PortfolioID int64
}
