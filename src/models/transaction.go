package models

import (
	"sort"
	"time"
)

// TransactionClass is the top-level tag of a broker-neutral transaction.
// Every RawTransaction is exactly one of these; the matching subtype field
// is set and the other two are empty.
type TransactionClass string

const (
	ClassCashMovement   TransactionClass = "CASH_MOVEMENT"
	ClassTrade          TransactionClass = "TRADE"
	ClassReceiveDeliver TransactionClass = "RECEIVE_DELIVER"
)

// CashMovementKind is the subtype of a cash-movement transaction.
type CashMovementKind string

const (
	CashDeposit        CashMovementKind = "DEPOSIT"
	CashWithdrawal     CashMovementKind = "WITHDRAWAL"
	CashFee            CashMovementKind = "FEE"
	CashInterestEarned CashMovementKind = "INTEREST_EARNED"
	CashInterestPaid   CashMovementKind = "INTEREST_PAID"
	CashTransfer       CashMovementKind = "TRANSFER"
	// CashDividend is a dividend (or dividend withholding tax, when the
	// value is negative) booked through the cash ledger. It never persists
	// as a CashMovement; conversion splits it into Dividend/DividendTax.
	CashDividend CashMovementKind = "DIVIDEND"
)

// TradeAction is the subtype of a trade transaction.
type TradeAction string

const (
	BuyToOpen   TradeAction = "BUY_TO_OPEN"
	SellToOpen  TradeAction = "SELL_TO_OPEN"
	BuyToClose  TradeAction = "BUY_TO_CLOSE"
	SellToClose TradeAction = "SELL_TO_CLOSE"
	// Plain buy/sell, used for equities where open/close is not meaningful.
	Buy  TradeAction = "BUY"
	Sell TradeAction = "SELL"
)

func (a TradeAction) IsOpening() bool { return a == BuyToOpen || a == SellToOpen || a == Buy }
func (a TradeAction) IsClosing() bool { return a == BuyToClose || a == SellToClose || a == Sell }

// ReceiveDeliverKind is the subtype of a receive/deliver event.
type ReceiveDeliverKind string

const (
	ReceiveDeliverACAT       ReceiveDeliverKind = "ACAT"
	ReceiveDeliverAssignment ReceiveDeliverKind = "ASSIGNMENT"
	ReceiveDeliverExercise   ReceiveDeliverKind = "EXERCISE"
	ReceiveDeliverExpiration ReceiveDeliverKind = "EXPIRATION"
)

// InstrumentType identifies what kind of instrument a transaction touches.
type InstrumentType string

const (
	InstrumentEquity InstrumentType = "EQUITY"
	InstrumentOption InstrumentType = "EQUITY_OPTION"
)

// OptionType is call or put.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// RawTransaction is the broker-neutral representation of one statement row
// after parsing. Built once per import and never mutated.
type RawTransaction struct {
	Timestamp          time.Time
	Class              TransactionClass
	CashKind           CashMovementKind
	TradeAction        TradeAction
	ReceiveDeliverKind ReceiveDeliverKind
	Instrument         InstrumentType
	Symbol             string // full instrument symbol, e.g. "AAPL 240621C00190000"
	Underlying         string // underlying ticker, e.g. "AAPL"
	Value              Money  // signed: debits negative, credits positive
	Quantity           int
	Commission         Money
	Fees               Money
	Multiplier         int
	Strike             Money
	Expiration         Date
	OptionType         OptionType
	Currency           string
	Description        string
	LineNumber         int
}

// sortPriority orders transactions sharing a timestamp: cash movements
// first, opening trades before closing trades, receive/deliver last. This
// guarantees opening positions are persisted before related closes.
func (t RawTransaction) sortPriority() int {
	switch t.Class {
	case ClassCashMovement:
		return 0
	case ClassTrade:
		if t.TradeAction.IsClosing() {
			return 2
		}
		return 1
	case ClassReceiveDeliver:
		return 3
	default:
		return 4
	}
}

// SortTransactions orders a transaction list by timestamp, then by the fixed
// type priority, then by source line number for determinism.
func SortTransactions(txs []RawTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		if pi, pj := txs[i].sortPriority(), txs[j].sortPriority(); pi != pj {
			return pi < pj
		}
		return txs[i].LineNumber < txs[j].LineNumber
	})
}

// StrikeAdjustment records a special-dividend-driven strike change detected
// in a transaction set. Trades opened before DetectedAt at OriginalStrike
// are rewritten to NewStrike before persistence so FIFO matching sees the
// corrected strike.
type StrikeAdjustment struct {
	Ticker         string
	OptionType     OptionType
	Expiration     Date
	OriginalStrike Money
	NewStrike      Money
	DividendAmount Money
	DetectedAt     time.Time
}
