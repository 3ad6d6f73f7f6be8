package models

import "time"

// BrokerAccount is a user-configured account at one of the supported brokers.
type BrokerAccount struct {
	ID            int64  `json:"id"`
	Broker        string `json:"broker"` // "tastytrade" or "ibkr"
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	CreatedAt     time.Time
}

// Currency is a reference entity created on first encounter (get-or-create,
// keyed by 3-letter code).
type Currency struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// Ticker is a reference entity created on first encounter (get-or-create,
// keyed by symbol).
type Ticker struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// StockTrade is a persisted equity trade. Quantity and price are positive
// magnitudes; direction is carried by the Direction code.
type StockTrade struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	TickerID     int64     `json:"ticker_id"`
	Symbol       string    `json:"symbol"` // resolved to TickerID on save
	Direction    string    `json:"direction"` // "LONG" or "SHORT"
	BuySell      string    `json:"buy_sell"`  // "BUY" or "SELL"
	Quantity     float64   `json:"quantity"`
	Price        Money     `json:"price"`
	Commission   Money     `json:"commission"`
	Fees         Money     `json:"fees"`
	CurrencyID   int64     `json:"currency_id"`
	CurrencyCode string    `json:"currency_code"`
	ExecutedAt   DateStamp `json:"executed_at"`
	SourceLine   int       `json:"-"`
}

const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// OptionTrade is a persisted single-contract option trade. Multi-contract
// orders are expanded before reaching here, so Quantity is always 1 and
// FIFO matching operates one contract at a time.
//
// IsOpen and ClosedWith are the fields FIFO linking mutates after creation:
// a matched close gets ClosedWith set to the opening trade's ID, and the
// opening trade's IsOpen flips to false.
type OptionTrade struct {
	ID           int64      `json:"id"`
	AccountID    int64      `json:"account_id"`
	TickerID     int64      `json:"ticker_id"`
	Underlying   string     `json:"underlying"`
	OptionType   OptionType `json:"option_type"`
	Strike       Money      `json:"strike"`
	Expiration   Date       `json:"expiration"`
	Action       TradeAction `json:"action"`
	IsOpen       bool       `json:"is_open"`
	ClosedWith   int64      `json:"closed_with"` // opening trade ID, 0 when unlinked
	Premium      Money      `json:"premium"`     // signed per-contract value
	NetPremium   Money      `json:"net_premium"` // premium less commission and fees
	Commission   Money      `json:"commission"`
	Fees         Money      `json:"fees"`
	Multiplier   int        `json:"multiplier"`
	CurrencyID   int64      `json:"currency_id"`
	CurrencyCode string     `json:"currency_code"`
	ExecutedAt   DateStamp  `json:"executed_at"`
	Notes        string     `json:"notes"`
	SourceLine   int        `json:"-"`
}

// Dividend is a per-ticker dividend payment, always positive.
type Dividend struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	TickerID     int64     `json:"ticker_id"`
	Symbol       string    `json:"symbol"`
	Amount       Money     `json:"amount"`
	CurrencyID   int64     `json:"currency_id"`
	CurrencyCode string    `json:"currency_code"`
	PaidAt       DateStamp `json:"paid_at"`
	SourceLine   int       `json:"-"`
}

// DividendTax is withholding tax on a dividend, stored as a positive amount.
type DividendTax struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	TickerID     int64     `json:"ticker_id"`
	Symbol       string    `json:"symbol"`
	Amount       Money     `json:"amount"`
	CurrencyID   int64     `json:"currency_id"`
	CurrencyCode string    `json:"currency_code"`
	PaidAt       DateStamp `json:"paid_at"`
	SourceLine   int       `json:"-"`
}

// CashMovement is an account-level cash event: deposits, withdrawals, fees,
// interest, transfers. Amount keeps the source sign.
type CashMovement struct {
	ID           int64            `json:"id"`
	AccountID    int64            `json:"account_id"`
	Kind         CashMovementKind `json:"kind"`
	Amount       Money            `json:"amount"`
	CurrencyID   int64            `json:"currency_id"`
	CurrencyCode string           `json:"currency_code"`
	OccurredAt   DateStamp        `json:"occurred_at"`
	Description  string           `json:"description"`
	SourceLine   int              `json:"-"`
}

// RecordBatch is the set of domain records produced by conversion, before
// persistence assigns identities.
type RecordBatch struct {
	CashMovements []*CashMovement
	OptionTrades  []*OptionTrade
	StockTrades   []*StockTrade
	Dividends     []*Dividend
	DividendTaxes []*DividendTax
}

// Len is the total number of records in the batch.
func (b *RecordBatch) Len() int {
	return len(b.CashMovements) + len(b.OptionTrades) + len(b.StockTrades) +
		len(b.Dividends) + len(b.DividendTaxes)
}

// Metadata summarizes the whole batch the way persistence observes records.
// Snapshot scoping uses this instead of the per-run chunk metadata: a resumed
// run re-processes only the remaining chunks, but its snapshot passes must
// still cover the tickers and dates of chunks completed before the interrupt.
func (b *RecordBatch) Metadata(accountID int64) *ImportMetadata {
	m := NewImportMetadata()
	for _, r := range b.CashMovements {
		m.Observe(accountID, "", r.OccurredAt.Time())
	}
	for _, r := range b.OptionTrades {
		m.Observe(accountID, r.Underlying, r.ExecutedAt.Time())
	}
	for _, r := range b.StockTrades {
		m.Observe(accountID, r.Symbol, r.ExecutedAt.Time())
	}
	for _, r := range b.Dividends {
		m.Observe(accountID, r.Symbol, r.PaidAt.Time())
	}
	for _, r := range b.DividendTaxes {
		m.Observe(accountID, r.Symbol, r.PaidAt.Time())
	}
	return m
}

// FilterRange returns the subset of records whose timestamp falls inside
// [start, end] with inclusive day boundaries; the upper bound extends to the
// end of the chunk's last day. Relative order within each slice is kept, so
// FIFO-sensitive option ordering survives filtering.
func (b *RecordBatch) FilterRange(start, end Date) *RecordBatch {
	from, to := start.Time(), end.EndOfDay()
	in := func(ds DateStamp) bool {
		t := ds.Time()
		return !t.Before(from) && !t.After(to)
	}
	out := &RecordBatch{}
	for _, r := range b.CashMovements {
		if in(r.OccurredAt) {
			out.CashMovements = append(out.CashMovements, r)
		}
	}
	for _, r := range b.OptionTrades {
		if in(r.ExecutedAt) {
			out.OptionTrades = append(out.OptionTrades, r)
		}
	}
	for _, r := range b.StockTrades {
		if in(r.ExecutedAt) {
			out.StockTrades = append(out.StockTrades, r)
		}
	}
	for _, r := range b.Dividends {
		if in(r.PaidAt) {
			out.Dividends = append(out.Dividends, r)
		}
	}
	for _, r := range b.DividendTaxes {
		if in(r.PaidAt) {
			out.DividendTaxes = append(out.DividendTaxes, r)
		}
	}
	return out
}
