package snapshots

import (
	"database/sql"
	"fmt"

	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// FinancialsRequest scopes one account-level financials recomputation.
type FinancialsRequest struct {
	AccountID   int64
	StartDate   models.Date
	EndDate     models.Date
	ForceRecalc bool
}

type BrokerFinancialManager struct {
	db        *sql.DB
	cash      *database.CashMovementStore
	dividends *database.DividendStore
	divTaxes  *database.DividendTaxStore
}

func NewBrokerFinancialManager(db *sql.DB) *BrokerFinancialManager {
	return &BrokerFinancialManager{
		db:        db,
		cash:      database.NewCashMovementStore(db),
		dividends: database.NewDividendStore(db),
		divTaxes:  database.NewDividendTaxStore(db),
	}
}

// ProcessBatchedFinancials recomputes the account-level cash aggregates as of
// the request's end date and upserts the broker_financials row.
func (m *BrokerFinancialManager) ProcessBatchedFinancials(req FinancialsRequest) BatchResult {
	saved, err := m.recompute(req)
	if err != nil {
		logger.L.Error("Broker financials failed", "accountID", req.AccountID, "error", err)
		return BatchResult{Errors: []string{err.Error()}}
	}
	result := BatchResult{Success: true}
	if saved {
		result.SavedCount = 1
	}
	return result
}

// ProcessImport recomputes financials for every account an import touched.
func (m *BrokerFinancialManager) ProcessImport(meta *models.ImportMetadata, endDate models.Date, force bool) BatchResult {
	if meta == nil || len(meta.AffectedAccountIDs) == 0 {
		return BatchResult{Success: true}
	}
	combined := BatchResult{Success: true}
	for accountID := range meta.AffectedAccountIDs {
		r := m.ProcessBatchedFinancials(FinancialsRequest{
			AccountID:   accountID,
			StartDate:   models.DateOf(meta.OldestMovement),
			EndDate:     endDate,
			ForceRecalc: force,
		})
		combined.SavedCount += r.SavedCount
		combined.Errors = append(combined.Errors, r.Errors...)
		if !r.Success {
			combined.Success = false
		}
	}
	return combined
}

func (m *BrokerFinancialManager) recompute(req FinancialsRequest) (bool, error) {
	asOf, _ := req.EndDate.Value()
	if !req.ForceRecalc {
		var existing int
		err := m.db.QueryRow(`
			SELECT COUNT(1) FROM broker_financials WHERE account_id = ? AND as_of = ?`,
			req.AccountID, asOf).Scan(&existing)
		if err != nil {
			return false, err
		}
		if existing > 0 {
			return false, nil
		}
	}

	movements, err := m.cash.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	deposits, withdrawals, fees, interest := models.Money{}, models.Money{}, models.Money{}, models.Money{}
	for _, mv := range movements {
		switch mv.Kind {
		case models.CashDeposit:
			deposits = deposits.Add(mv.Amount)
		case models.CashWithdrawal:
			withdrawals = withdrawals.Add(mv.Amount.Abs())
		case models.CashFee:
			fees = fees.Add(mv.Amount.Abs())
		case models.CashInterestEarned, models.CashInterestPaid:
			interest = interest.Add(mv.Amount)
		}
	}

	dividendsNet := models.Money{}
	dividends, err := m.dividends.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, d := range dividends {
		dividendsNet = dividendsNet.Add(d.Amount)
	}
	taxes, err := m.divTaxes.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, t := range taxes {
		dividendsNet = dividendsNet.Sub(t.Amount)
	}

	depositsVal, _ := deposits.Value()
	withdrawalsVal, _ := withdrawals.Value()
	feesVal, _ := fees.Value()
	interestVal, _ := interest.Value()
	dividendsVal, _ := dividendsNet.Value()
	_, err = m.db.Exec(`
		INSERT INTO broker_financials (account_id, as_of, deposits, withdrawals, fees, interest, dividends_net)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, as_of) DO UPDATE SET
			deposits = excluded.deposits,
			withdrawals = excluded.withdrawals,
			fees = excluded.fees,
			interest = excluded.interest,
			dividends_net = excluded.dividends_net`,
		req.AccountID, asOf, depositsVal, withdrawalsVal, feesVal, interestVal, dividendsVal)
	if err != nil {
		return false, fmt.Errorf("error upserting broker financials: %w", err)
	}
	return true, nil
}
