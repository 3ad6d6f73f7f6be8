package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/models"
)

func setupEngine(t *testing.T) (*Engine, *sql.DB, int64) {
	t.Helper()
	db := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { db.Close() })

	account := &models.BrokerAccount{Broker: "tastytrade", Name: "test"}
	_, err := database.NewAccountStore(db).Save(account)
	require.NoError(t, err)
	return NewEngine(db), db, account.ID
}

func stamp(day, hour int) models.DateStamp {
	return models.NewDateStamp(time.Date(2024, time.June, day, hour, 0, 0, 0, time.UTC))
}

func openTrade(day, hour int) *models.OptionTrade {
	return &models.OptionTrade{
		Underlying:   "AAPL",
		OptionType:   models.OptionCall,
		Strike:       models.MustMoney("190"),
		Expiration:   models.NewDate(2024, time.June, 21),
		Action:       models.SellToOpen,
		IsOpen:       true,
		Premium:      models.MustMoney("100.00"),
		NetPremium:   models.MustMoney("98.75"),
		Multiplier:   100,
		CurrencyCode: "USD",
		ExecutedAt:   stamp(day, hour),
	}
}

func closeTrade(day, hour int) *models.OptionTrade {
	trade := openTrade(day, hour)
	trade.Action = models.BuyToClose
	trade.IsOpen = false
	trade.Premium = models.MustMoney("-40.00")
	trade.NetPremium = models.MustMoney("-41.25")
	return trade
}

func TestPersistGetOrCreateReferenceEntities(t *testing.T) {
	engine, db, accountID := setupEngine(t)

	batch := &models.RecordBatch{
		Dividends: []*models.Dividend{
			{Symbol: "KO", Amount: models.MustMoney("12.40"), CurrencyCode: "USD", PaidAt: stamp(3, 0)},
			{Symbol: "KO", Amount: models.MustMoney("12.40"), CurrencyCode: "USD", PaidAt: stamp(10, 0)},
		},
	}
	result, err := engine.Persist(context.Background(), batch, accountID, nil)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 2, result.Dividends)

	var tickerCount, currencyCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM tickers`).Scan(&tickerCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM currencies`).Scan(&currencyCount))
	require.Equal(t, 1, tickerCount, "repeated symbols must reuse the ticker row")
	require.Equal(t, 1, currencyCount)
	require.Equal(t, batch.Dividends[0].TickerID, batch.Dividends[1].TickerID)
}

func TestPersistLinksClosingTradeToOldestOpen(t *testing.T) {
	engine, db, accountID := setupEngine(t)

	first := openTrade(1, 10)
	second := openTrade(2, 10)
	closing := closeTrade(5, 10)
	batch := &models.RecordBatch{OptionTrades: []*models.OptionTrade{first, second, closing}}

	result, err := engine.Persist(context.Background(), batch, accountID, nil)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 1, result.LinkedCloses)
	require.Zero(t, result.UnmatchedCloses)
	require.Equal(t, first.ID, closing.ClosedWith, "FIFO must settle the earliest open")

	store := database.NewOptionTradeStore(db)
	reloadedFirst, err := store.GetByID(first.ID)
	require.NoError(t, err)
	require.False(t, reloadedFirst.IsOpen)

	reloadedSecond, err := store.GetByID(second.ID)
	require.NoError(t, err)
	require.True(t, reloadedSecond.IsOpen, "the later open stays open")

	reloadedClose, err := store.GetByID(closing.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, reloadedClose.ClosedWith)
}

func TestPersistUnmatchedCloseIsNotFatal(t *testing.T) {
	engine, _, accountID := setupEngine(t)

	closing := closeTrade(5, 10)
	batch := &models.RecordBatch{OptionTrades: []*models.OptionTrade{closing}}

	result, err := engine.Persist(context.Background(), batch, accountID, nil)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 1, result.OptionTrades, "the close still persists")
	require.Equal(t, 1, result.UnmatchedCloses)
	require.Zero(t, closing.ClosedWith)
}

func TestPersistCollectsPerRecordErrors(t *testing.T) {
	engine, _, accountID := setupEngine(t)

	bad := openTrade(1, 10)
	bad.Underlying = ""
	good := openTrade(2, 10)
	batch := &models.RecordBatch{OptionTrades: []*models.OptionTrade{bad, good}}

	result, err := engine.Persist(context.Background(), batch, accountID, nil)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 1, result.OptionTrades, "remaining records still persist")
}

func TestPersistCancellationReturnsPartialResult(t *testing.T) {
	engine, _, accountID := setupEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := &models.RecordBatch{
		CashMovements: []*models.CashMovement{
			{Kind: models.CashDeposit, Amount: models.MustMoney("100"), CurrencyCode: "USD", OccurredAt: stamp(1, 0)},
		},
	}
	result, err := engine.Persist(ctx, batch, accountID, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.Zero(t, result.Saved())
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0].Error(), "cancelled")
}

func TestPersistReportsProgress(t *testing.T) {
	engine, _, accountID := setupEngine(t)

	batch := &models.RecordBatch{
		CashMovements: []*models.CashMovement{
			{Kind: models.CashDeposit, Amount: models.MustMoney("100"), CurrencyCode: "USD", OccurredAt: stamp(1, 0)},
			{Kind: models.CashWithdrawal, Amount: models.MustMoney("-50"), CurrencyCode: "USD", OccurredAt: stamp(2, 0)},
		},
	}
	var calls []int
	_, err := engine.Persist(context.Background(), batch, accountID, func(done, total int) {
		require.Equal(t, 2, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, calls)
}

func TestPersistMetadataTracksAffectedTickersAndOldestDate(t *testing.T) {
	engine, _, accountID := setupEngine(t)

	batch := &models.RecordBatch{
		OptionTrades: []*models.OptionTrade{openTrade(5, 10)},
		Dividends: []*models.Dividend{
			{Symbol: "KO", Amount: models.MustMoney("12.40"), CurrencyCode: "USD", PaidAt: stamp(2, 0)},
		},
	}
	result, err := engine.Persist(context.Background(), batch, accountID, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"AAPL", "KO"}, result.Metadata.TickerList())
	require.Equal(t, stamp(2, 0).Time(), result.Metadata.OldestMovement)
	require.Equal(t, 2, result.Metadata.TotalMovements)
}
