// Package ibkr parses Interactive Brokers Flex Query CSV exports.
package ibkr

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// IBKRParser implements the parsers.Parser interface for IBKR Flex Query
// CSV files with trade and cash transaction rows mixed in one export.
type IBKRParser struct{}

func NewParser() *IBKRParser {
	return &IBKRParser{}
}

var dateTimeFormats = []string{
	"2006-01-02;15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02,15:04:05",
	"2006-01-02",
	"20060102;150405",
	"20060102",
}

func (p *IBKRParser) Parse(file io.Reader) (*models.ParseResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return &models.ParseResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ibkr parser: failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	if _, ok := cols["Type"]; !ok {
		return nil, fmt.Errorf("ibkr parser: missing required column %q", "Type")
	}
	if _, ok := cols["DateTime"]; !ok {
		return nil, fmt.Errorf("ibkr parser: missing required column %q", "DateTime")
	}

	result := &models.ParseResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, models.ParseError{Line: line, Err: err})
			continue
		}
		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		tx, skip, err := p.processRow(field, line)
		if err != nil {
			logger.L.Warn("IBKR parser: skipping row", "line", line, "error", err)
			result.Errors = append(result.Errors, models.ParseError{Line: line, Raw: strings.Join(record, ","), Err: err})
			continue
		}
		if skip {
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}
	return result, nil
}

func (p *IBKRParser) processRow(field func(string) string, line int) (models.RawTransaction, bool, error) {
	timestamp, err := parseDateTime(field("DateTime"))
	if err != nil {
		return models.RawTransaction{}, false, err
	}

	tx := models.RawTransaction{
		Timestamp:   timestamp,
		Symbol:      field("Symbol"),
		Underlying:  field("UnderlyingSymbol"),
		Currency:    orDefault(field("CurrencyPrimary"), "USD"),
		Description: field("Description"),
		LineNumber:  line,
	}

	switch rowType := field("Type"); rowType {
	case "TRD", "Trade":
		return p.processTrade(tx, field)
	case "ACAT", "Transfers":
		return p.processTransfer(tx, field)
	case "Deposits/Withdrawals":
		amount, err := parseNumber(field("Amount"))
		if err != nil {
			return tx, false, fmt.Errorf("bad amount: %w", err)
		}
		tx.Class = models.ClassCashMovement
		tx.Value = models.MoneyFromFloat(amount)
		if amount < 0 {
			tx.CashKind = models.CashWithdrawal
		} else {
			tx.CashKind = models.CashDeposit
		}
		return tx, false, nil
	case "Dividends", "Payment In Lieu Of Dividends", "Withholding Tax":
		amount, err := parseNumber(field("Amount"))
		if err != nil {
			return tx, false, fmt.Errorf("bad amount: %w", err)
		}
		tx.Class = models.ClassCashMovement
		tx.CashKind = models.CashDividend
		tx.Value = models.MoneyFromFloat(amount)
		if tx.Underlying == "" {
			tx.Underlying = tx.Symbol
		}
		return tx, false, nil
	case "Broker Interest Received":
		return cashRow(tx, field, models.CashInterestEarned)
	case "Broker Interest Paid":
		return cashRow(tx, field, models.CashInterestPaid)
	case "Other Fees":
		return cashRow(tx, field, models.CashFee)
	default:
		return tx, false, fmt.Errorf("unsupported row type %q", rowType)
	}
}

func cashRow(tx models.RawTransaction, field func(string) string, kind models.CashMovementKind) (models.RawTransaction, bool, error) {
	amount, err := parseNumber(field("Amount"))
	if err != nil {
		return tx, false, fmt.Errorf("bad amount: %w", err)
	}
	tx.Class = models.ClassCashMovement
	tx.CashKind = kind
	tx.Value = models.MoneyFromFloat(amount)
	return tx, false, nil
}

func (p *IBKRParser) processTrade(tx models.RawTransaction, field func(string) string) (models.RawTransaction, bool, error) {
	quantity, err := parseNumber(field("Quantity"))
	if err != nil {
		return tx, false, fmt.Errorf("bad quantity: %w", err)
	}
	tradeMoney, err := parseNumber(field("TradeMoney"))
	if err != nil {
		return tx, false, fmt.Errorf("bad trade money: %w", err)
	}
	commission, _ := parseNumber(field("IBCommission"))

	tx.Class = models.ClassTrade
	// TradeMoney carries the position cost; the cash effect is its negation.
	tx.Value = models.MoneyFromFloat(-tradeMoney)
	tx.Commission = models.MoneyFromFloat(commission)
	if quantity < 0 {
		quantity = -quantity
	}
	tx.Quantity = int(quantity)

	buySell := field("Buy/Sell")
	openClose := field("Open/CloseIndicator")

	switch field("AssetClass") {
	case "STK":
		tx.Instrument = models.InstrumentEquity
		if tx.Underlying == "" {
			tx.Underlying = tx.Symbol
		}
		switch buySell {
		case "BUY":
			tx.TradeAction = models.Buy
		case "SELL":
			tx.TradeAction = models.Sell
		default:
			return tx, false, fmt.Errorf("unsupported buy/sell %q", buySell)
		}
	case "OPT":
		tx.Instrument = models.InstrumentOption
		if err := p.fillOptionFields(&tx, field); err != nil {
			return tx, false, err
		}
		action, err := optionAction(buySell, openClose)
		if err != nil {
			return tx, false, err
		}
		tx.TradeAction = action
	default:
		return tx, false, fmt.Errorf("unsupported asset class %q", field("AssetClass"))
	}
	return tx, false, nil
}

// processTransfer maps ACAT position transfers. Only incoming equity
// transfers persist; anything else in the transfers section is skipped.
func (p *IBKRParser) processTransfer(tx models.RawTransaction, field func(string) string) (models.RawTransaction, bool, error) {
	if field("AssetClass") != "STK" {
		return tx, true, nil
	}
	quantity, err := parseNumber(field("Quantity"))
	if err != nil {
		return tx, false, fmt.Errorf("bad quantity: %w", err)
	}
	if quantity <= 0 {
		return tx, true, nil
	}
	tx.Class = models.ClassReceiveDeliver
	tx.ReceiveDeliverKind = models.ReceiveDeliverACAT
	tx.Instrument = models.InstrumentEquity
	tx.Quantity = int(quantity)
	if tx.Underlying == "" {
		tx.Underlying = tx.Symbol
	}
	return tx, false, nil
}

func (p *IBKRParser) fillOptionFields(tx *models.RawTransaction, field func(string) string) error {
	strike, err := parseNumber(field("Strike"))
	if err != nil {
		return fmt.Errorf("bad strike: %w", err)
	}
	tx.Strike = models.MoneyFromFloat(strike)
	expiry := field("Expiry")
	parsed, err := time.Parse("20060102", expiry)
	if err != nil {
		return fmt.Errorf("bad expiry %q", expiry)
	}
	tx.Expiration = models.DateOf(parsed)
	switch field("Put/Call") {
	case "C", "CALL":
		tx.OptionType = models.OptionCall
	case "P", "PUT":
		tx.OptionType = models.OptionPut
	default:
		return fmt.Errorf("unknown put/call %q", field("Put/Call"))
	}
	if m := field("Multiplier"); m != "" {
		mult, err := parseNumber(m)
		if err == nil {
			tx.Multiplier = int(mult)
		}
	}
	if tx.Multiplier == 0 {
		tx.Multiplier = 100
	}
	if tx.Underlying == "" {
		// Option symbols lead with the underlying, e.g. "AAPL  240621C00190000".
		if i := strings.IndexByte(tx.Symbol, ' '); i > 0 {
			tx.Underlying = tx.Symbol[:i]
		}
	}
	return nil
}

func optionAction(buySell, openClose string) (models.TradeAction, error) {
	switch buySell + "/" + openClose {
	case "BUY/O":
		return models.BuyToOpen, nil
	case "SELL/O":
		return models.SellToOpen, nil
	case "BUY/C":
		return models.BuyToClose, nil
	case "SELL/C":
		return models.SellToClose, nil
	default:
		return "", fmt.Errorf("unsupported option action %s/%s", buySell, openClose)
	}
}

func parseDateTime(value string) (time.Time, error) {
	for _, format := range dateTimeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

func parseNumber(value string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if cleaned == "" {
		return 0, nil
	}
	return strconv.ParseFloat(cleaned, 64)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
