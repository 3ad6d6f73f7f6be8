package tastytrade

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/models"
)

const sampleCSV = `Date,Type,Sub Type,Action,Symbol,Instrument Type,Description,Value,Quantity,Average Price,Commissions,Fees,Multiplier,Underlying Symbol,Expiration Date,Strike Price,Call or Put,Currency
2024-06-03T09:31:00-0500,Money Movement,Deposit,,,,Wire in,"1,500.00",,,,,,,,,,USD
2024-06-03T10:15:00-0500,Trade,,SELL_TO_OPEN,AAPL  240621C00190000,Equity Option,Sold 2 AAPL calls,250.00,2,1.25,-2.00,-0.24,100,AAPL,6/21/24,190,CALL,USD
2024-06-05T11:00:00-0500,Trade,,BUY,NVDA,Equity,Bought 10 NVDA,"-9,000.00",10,900.00,-1.00,-0.08,,NVDA,,,,USD
2024-06-10T14:00:00-0500,Money Movement,Dividend,,KO,,KO dividend,9.40,,,,,,KO,,,,USD
2024-06-10T14:00:00-0500,Money Movement,Dividend,,KO,,KO dividend withholding,-1.41,,,,,,KO,,,,USD
2024-06-21T16:30:00-0500,Receive Deliver,Expiration,,AAPL  240621C00190000,Equity Option,Expired,0.00,2,,,,100,AAPL,6/21/24,190,CALL,USD
`

func TestParseSampleStatement(t *testing.T) {
	result, err := NewParser().Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Transactions, 6)

	deposit := result.Transactions[0]
	require.Equal(t, models.ClassCashMovement, deposit.Class)
	require.Equal(t, models.CashDeposit, deposit.CashKind)
	require.True(t, deposit.Value.Equal(models.MustMoney("1500.00")))
	require.Equal(t, 2, deposit.LineNumber)

	option := result.Transactions[1]
	require.Equal(t, models.ClassTrade, option.Class)
	require.Equal(t, models.SellToOpen, option.TradeAction)
	require.Equal(t, models.InstrumentOption, option.Instrument)
	require.Equal(t, "AAPL", option.Underlying)
	require.Equal(t, 2, option.Quantity)
	require.Equal(t, 100, option.Multiplier)
	require.True(t, option.Strike.Equal(models.MustMoney("190")))
	require.Equal(t, models.NewDate(2024, time.June, 21), option.Expiration)
	require.Equal(t, models.OptionCall, option.OptionType)
	require.True(t, option.Commission.IsNegative())

	stock := result.Transactions[2]
	require.Equal(t, models.InstrumentEquity, stock.Instrument)
	require.Equal(t, models.Buy, stock.TradeAction)
	require.True(t, stock.Value.Equal(models.MustMoney("-9000.00")))

	dividend, tax := result.Transactions[3], result.Transactions[4]
	require.Equal(t, models.CashDividend, dividend.CashKind)
	require.True(t, dividend.Value.IsPositive())
	require.Equal(t, models.CashDividend, tax.CashKind)
	require.True(t, tax.Value.IsNegative())

	expiration := result.Transactions[5]
	require.Equal(t, models.ClassReceiveDeliver, expiration.Class)
	require.Equal(t, models.ReceiveDeliverExpiration, expiration.ReceiveDeliverKind)
}

func TestParseCollectsBadRows(t *testing.T) {
	csv := "Date,Type,Sub Type,Action,Value\n" +
		"not-a-date,Trade,,BUY,100.00\n" +
		"2024-06-03T10:00:00,Money Movement,Deposit,,50.00\n"

	result, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2, result.Errors[0].Line)
	require.Len(t, result.Transactions, 1)
}

func TestParseMissingRequiredColumn(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("Symbol,Quantity\nAAPL,1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing required column")
}

func TestParseEmptyFile(t *testing.T) {
	result, err := NewParser().Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, result.Transactions)
}

func TestParseUnsupportedActionIsCollected(t *testing.T) {
	csv := "Date,Type,Sub Type,Action,Value\n" +
		"2024-06-03T10:00:00,Trade,,SHORT_SQUEEZE,100.00\n"

	result, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Empty(t, result.Transactions)
}
