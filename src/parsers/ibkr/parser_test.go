package ibkr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/models"
)

const sampleCSV = `Type,DateTime,AssetClass,Symbol,UnderlyingSymbol,Buy/Sell,Open/CloseIndicator,Quantity,TradeMoney,IBCommission,Multiplier,Strike,Expiry,Put/Call,CurrencyPrimary,Description,Amount
Deposits/Withdrawals,2024-06-03;09:00:00,,,,,,,,,,,,,USD,Wire transfer,2500
TRD,2024-06-03;10:15:00,OPT,AAPL  240621C00190000,AAPL,SELL,O,-2,-250,-1.50,100,190,20240621,C,USD,Sold 2 calls,
TRD,2024-06-05;11:00:00,STK,NVDA,NVDA,BUY,,10,9000,-1.00,,,,,USD,Bought shares,
TRD,2024-06-14;10:00:00,OPT,AAPL  240621C00190000,AAPL,BUY,C,2,100,-1.50,100,190,20240621,C,USD,Closed 2 calls,
Dividends,2024-06-10;00:00:00,,KO,KO,,,,,,,,,,USD,KO cash dividend,9.40
Withholding Tax,2024-06-10;00:00:00,,KO,KO,,,,,,,,,,USD,KO withholding,-1.41
Broker Interest Received,2024-06-28;00:00:00,,,,,,,,,,,,,USD,Credit interest,0.85
ACAT,2024-06-17;00:00:00,STK,MSFT,MSFT,,,25,,,,,,,USD,Incoming transfer,
`

func TestParseFlexSample(t *testing.T) {
	result, err := NewParser().Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Transactions, 8)

	deposit := result.Transactions[0]
	require.Equal(t, models.ClassCashMovement, deposit.Class)
	require.Equal(t, models.CashDeposit, deposit.CashKind)
	require.True(t, deposit.Value.Equal(models.MustMoney("2500")))

	sell := result.Transactions[1]
	require.Equal(t, models.ClassTrade, sell.Class)
	require.Equal(t, models.SellToOpen, sell.TradeAction)
	require.Equal(t, models.InstrumentOption, sell.Instrument)
	require.Equal(t, "AAPL", sell.Underlying)
	require.Equal(t, 2, sell.Quantity)
	require.Equal(t, models.NewDate(2024, time.June, 21), sell.Expiration)
	require.Equal(t, models.OptionCall, sell.OptionType)
	require.True(t, sell.Value.Equal(models.MustMoney("250")), "cash effect is the negated trade money")

	buyStock := result.Transactions[2]
	require.Equal(t, models.Buy, buyStock.TradeAction)
	require.Equal(t, models.InstrumentEquity, buyStock.Instrument)
	require.True(t, buyStock.Value.Equal(models.MustMoney("-9000")))

	closeCall := result.Transactions[3]
	require.Equal(t, models.BuyToClose, closeCall.TradeAction)

	dividend, tax := result.Transactions[4], result.Transactions[5]
	require.Equal(t, models.CashDividend, dividend.CashKind)
	require.Equal(t, "KO", dividend.Underlying)
	require.True(t, dividend.Value.IsPositive())
	require.Equal(t, models.CashDividend, tax.CashKind)
	require.True(t, tax.Value.IsNegative())

	interest := result.Transactions[6]
	require.Equal(t, models.CashInterestEarned, interest.CashKind)

	acat := result.Transactions[7]
	require.Equal(t, models.ClassReceiveDeliver, acat.Class)
	require.Equal(t, models.ReceiveDeliverACAT, acat.ReceiveDeliverKind)
	require.Equal(t, 25, acat.Quantity)
}

func TestParseSkipsOutgoingTransfers(t *testing.T) {
	csv := "Type,DateTime,AssetClass,Symbol,UnderlyingSymbol,Quantity\n" +
		"ACAT,2024-06-17;00:00:00,STK,MSFT,MSFT,-25\n"

	result, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Empty(t, result.Transactions)
}

func TestParseCollectsUnsupportedRowTypes(t *testing.T) {
	csv := "Type,DateTime\n" +
		"FX Translation,2024-06-01;00:00:00\n" +
		"Deposits/Withdrawals,2024-06-02;00:00:00\n"

	result, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Len(t, result.Transactions, 1)
}

func TestParseMissingHeader(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("Symbol,Quantity\nAAPL,1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing required column")
}
