package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/internal/converter/dbConverter"
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/dbModel"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
)

type Postgres struct {
	db  *sqlx.DB
	cfg *config.Config
}

func NewPostgres(cfg *config.Config, db *sqlx.DB) *Postgres {
	return &Postgres{db: db, cfg: cfg}
}

func (r *Postgres) RegUser(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO users(chat_id) VALUES($1)
		ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		RETURNING user_id
	`

	slog.Debug("RegUser start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("RegUser failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RegUser completed", slog.String("rqID", rqID))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, chatID).Scan(&userID)
	if err != nil {
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) GetUserID(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT user_id FROM users WHERE chat_id = $1`

	slog.Debug("GetUserID start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUserID failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserID completed", slog.String("rqID", rqID))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, chatID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) CreatePortfolio(ctx context.Context, portfolioName string, userID int64) (portfolioID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO portfolios(name, user_id) VALUES($1, $2) RETURNING portfolio_id`

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreatePortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreatePortfolio completed", slog.String("rqID", rqID))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, portfolioName, userID).Scan(&portfolioID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return 0, ErrAlreadyExists
			}
		}
		return 0, err
	}

	return portfolioID, nil
}

func (r *Postgres) GetPortfolios(ctx context.Context, chatID int64) (portfolios []model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPortfolios"
	query := `
		SELECT p.portfolio_id, p.name FROM portfolios p
		JOIN users u USING(user_id)
		WHERE u.chat_id = $1
		ORDER BY p.portfolio_id
		`

	slog.Debug("GetPortfolios start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPortfolios failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPortfolios completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var portfolio dbModel.Portfolio
		err = rows.StructScan(&portfolio)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, dbConverter.ConvertPortfolio(portfolio))
	}

	return portfolios, nil
}

func (r *Postgres) GetPortfolioName(ctx context.Context, portfolioID int64) (name string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPortfolioName"
	query := `SELECT name FROM portfolios WHERE portfolio_id = $1`

	slog.Debug("GetPortfolioName start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPortfolioName failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPortfolioName completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.db.QueryRowxContext(ctx, query, portfolioID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	return name, nil
}

// DeletePortfolio removes the portfolio together with its lots and their
// transaction history. Administrative operation, not part of the sale flow.
func (r *Postgres) DeletePortfolio(ctx context.Context, portfolioID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeletePortfolio"

	slog.Debug("DeletePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		if err != nil {
			slog.Error("DeletePortfolio failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeletePortfolio completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queries := []string{
		`DELETE FROM sell_allocations WHERE transaction_id IN (SELECT transaction_id FROM transactions WHERE portfolio_id = $1)`,
		`DELETE FROM transactions WHERE portfolio_id = $1`,
		`DELETE FROM holdings WHERE portfolio_id = $1`,
		`DELETE FROM portfolios WHERE portfolio_id = $1`,
	}
	for _, query := range queries {
		if _, err = tx.ExecContext(ctx, query, portfolioID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InsertLot creates the lot and its buy transaction atomically: a lot never
// exists without its 1:1 creation companion.
func (r *Postgres) InsertLot(ctx context.Context, lot model.Lot) (buyTxn model.BuyTransaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertLot"

	slog.Debug("InsertLot start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("lot", lot))
	defer func() {
		if err != nil {
			slog.Error("InsertLot failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertLot completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.BuyTransaction{}, err
	}
	defer tx.Rollback()

	holdingQuery := `
		INSERT INTO holdings(portfolio_id, stock_code, purchase_date, purchase_unit_price, purchase_quantity, remaining_quantity)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING holding_id
	`

	var lotID int64
	err = tx.QueryRowContext(
		ctx,
		holdingQuery,
		lot.PortfolioID,
		lot.StockCode,
		lot.PurchaseDate,
		lot.PurchaseUnitPrice,
		lot.PurchaseQuantity,
	).Scan(&lotID)
	if err != nil {
		return model.BuyTransaction{}, err
	}

	txnQuery := `
		INSERT INTO transactions(holding_id, portfolio_id, tx_type, stock_code, quantity, unit_price, tx_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING transaction_id
	`

	var txnID int64
	err = tx.QueryRowContext(
		ctx,
		txnQuery,
		lotID,
		lot.PortfolioID,
		model.TransactionTypeBuy,
		lot.StockCode,
		lot.PurchaseQuantity,
		lot.PurchaseUnitPrice,
		lot.PurchaseDate,
	).Scan(&txnID)
	if err != nil {
		return model.BuyTransaction{}, err
	}

	if err = tx.Commit(); err != nil {
		return model.BuyTransaction{}, err
	}

	return model.BuyTransaction{
		ID:          txnID,
		LotID:       lotID,
		PortfolioID: lot.PortfolioID,
		StockCode:   lot.StockCode,
		Quantity:    lot.PurchaseQuantity,
		UnitPrice:   lot.PurchaseUnitPrice,
		Date:        lot.PurchaseDate,
	}, nil
}

func (r *Postgres) getLots(ctx context.Context, query string, args ...any) (lots []model.Lot, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("getLots start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("getLots failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("getLots completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var holding dbModel.Holding
		err = rows.StructScan(&holding)
		if err != nil {
			return nil, err
		}
		lots = append(lots, dbConverter.ConvertHolding(holding))
	}

	return lots, nil
}

func (r *Postgres) GetLotsByStockCode(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
	query := `
		SELECT holding_id, portfolio_id, stock_code, purchase_date, purchase_unit_price, purchase_quantity, remaining_quantity
		FROM holdings
		WHERE portfolio_id = $1
		AND stock_code = $2
		ORDER BY holding_id
		`

	return r.getLots(ctx, query, portfolioID, stockCode)
}

func (r *Postgres) GetLotsByPortfolio(ctx context.Context, portfolioID int64) ([]model.Lot, error) {
	query := `
		SELECT holding_id, portfolio_id, stock_code, purchase_date, purchase_unit_price, purchase_quantity, remaining_quantity
		FROM holdings
		WHERE portfolio_id = $1
		ORDER BY stock_code, holding_id
		`

	return r.getLots(ctx, query, portfolioID)
}

func (r *Postgres) GetLotByID(ctx context.Context, lotID int64) (lot model.Lot, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetLotByID"
	query := `
		SELECT holding_id, portfolio_id, stock_code, purchase_date, purchase_unit_price, purchase_quantity, remaining_quantity
		FROM holdings
		WHERE holding_id = $1
		`

	slog.Debug("GetLotByID start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("lotID", lotID))
	defer func() {
		if err != nil {
			slog.Error("GetLotByID failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetLotByID completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var holding dbModel.Holding
	err = r.db.QueryRowxContext(ctx, query, lotID).StructScan(&holding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Lot{}, ErrNotFound
		}
		return model.Lot{}, err
	}

	return dbConverter.ConvertHolding(holding), nil
}

// ApplySale persists a sell transaction, its allocation rows and the new
// remaining quantities in one database transaction. Each lot update is
// conditional on the remaining quantity the sale was computed from; a lot
// touched by a concurrent sale matches no row and the whole transaction is
// rolled back with ErrStaleLot so the caller can retry from a fresh
// snapshot.
func (r *Postgres) ApplySale(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (txnID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ApplySale"

	slog.Debug("ApplySale start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("transaction", txn))
	defer func() {
		if err != nil {
			slog.Error("ApplySale failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ApplySale completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("txnID", txnID))
		}
	}()

	allocated := make(map[int64]int64, len(txn.Allocations))
	for _, alloc := range txn.Allocations {
		allocated[alloc.LotID] += alloc.Quantity
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	txnQuery := `
		INSERT INTO transactions(portfolio_id, tx_type, stock_code, quantity, unit_price, tx_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING transaction_id
	`

	err = tx.QueryRowContext(
		ctx,
		txnQuery,
		txn.PortfolioID,
		model.TransactionTypeSell,
		txn.StockCode,
		txn.Quantity,
		txn.UnitPrice,
		txn.SellDate,
	).Scan(&txnID)
	if err != nil {
		return 0, err
	}

	allocQuery := `
		INSERT INTO sell_allocations(transaction_id, holding_id, quantity)
		VALUES ($1, $2, $3)
	`

	for _, alloc := range txn.Allocations {
		if _, err = tx.ExecContext(ctx, allocQuery, txnID, alloc.LotID, alloc.Quantity); err != nil {
			return 0, err
		}
	}

	lotQuery := `
		UPDATE holdings
		SET remaining_quantity = $1
		WHERE holding_id = $2
		AND remaining_quantity = $3
	`

	for _, lot := range updatedLots {
		expected := lot.RemainingQuantity + allocated[lot.ID]

		res, execErr := tx.ExecContext(ctx, lotQuery, lot.RemainingQuantity, lot.ID, expected)
		if execErr != nil {
			return 0, execErr
		}

		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return 0, execErr
		}
		if affected == 0 {
			return 0, ErrStaleLot
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return txnID, nil
}

func (r *Postgres) GetTransactions(ctx context.Context, portfolioID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactions"
	query := `
		SELECT transaction_id, COALESCE(holding_id, 0) AS holding_id, tx_type, stock_code, quantity, unit_price, tx_date
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY tx_date, transaction_id
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var txn dbModel.Transaction
		err = rows.StructScan(&txn)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbConverter.ConvertTransaction(txn))
	}

	return transactions, nil
}

func (r *Postgres) DeleteTransaction(ctx context.Context, transactionID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteTransaction"

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	defer func() {
		if err != nil {
			slog.Error("DeleteTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sell_allocations WHERE transaction_id = $1`, transactionID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE transaction_id = $1`, transactionID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetDistinctStockCodes lists every code with live holdings. Feeds the
// scheduled quote refresh.
func (r *Postgres) GetDistinctStockCodes(ctx context.Context) (stockCodes []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetDistinctStockCodes"
	query := `
		SELECT DISTINCT stock_code
		FROM holdings
		WHERE remaining_quantity > 0
		ORDER BY stock_code
		`

	slog.Debug("GetDistinctStockCodes start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetDistinctStockCodes failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetDistinctStockCodes completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var code string
		if err = rows.Scan(&code); err != nil {
			return nil, err
		}
		stockCodes = append(stockCodes, code)
	}

	return stockCodes, nil
}
