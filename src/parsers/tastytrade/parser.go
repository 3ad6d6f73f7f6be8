// Package tastytrade parses tastytrade transaction history CSV exports.
package tastytrade

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

// TastytradeParser implements the parsers.Parser interface for tastytrade
// transaction history CSV files.
type TastytradeParser struct{}

func NewParser() *TastytradeParser {
	return &TastytradeParser{}
}

var dateTimeFormats = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var expirationFormats = []string{
	"1/2/06",
	"01/02/2006",
	"2006-01-02",
}

// Parse reads a tastytrade CSV export. Columns are resolved from the header
// row, so column order changes in the export do not break parsing.
func (p *TastytradeParser) Parse(file io.Reader) (*models.ParseResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return &models.ParseResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tastytrade parser: failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Date", "Type", "Action", "Value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("tastytrade parser: missing required column %q", required)
		}
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
		tx, err := p.processRow(field, line)
		if err != nil {
			logger.L.Warn("Tastytrade parser: skipping row", "line", line, "error", err)
			result.Errors = append(result.Errors, models.ParseError{Line: line, Raw: strings.Join(record, ","), Err: err})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}
	return result, nil
}

func (p *TastytradeParser) processRow(field func(string) string, line int) (models.RawTransaction, error) {
	timestamp, err := parseDateTime(field("Date"))
	if err != nil {
		return models.RawTransaction{}, err
	}
	value, err := parseMoney(field("Value"))
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("bad value: %w", err)
	}

	tx := models.RawTransaction{
		Timestamp:   timestamp,
		Symbol:      field("Symbol"),
		Underlying:  field("Underlying Symbol"),
		Value:       value,
		Currency:    orDefault(field("Currency"), "USD"),
		Description: field("Description"),
		LineNumber:  line,
	}
	if tx.Underlying == "" {
		tx.Underlying = field("Root Symbol")
	}
	tx.Commission, _ = parseMoney(field("Commissions"))
	tx.Fees, _ = parseMoney(field("Fees"))
	if q := field("Quantity"); q != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(q, ",", ""), 64)
		if err != nil {
			return models.RawTransaction{}, fmt.Errorf("bad quantity %q: %w", q, err)
		}
		if f < 0 {
			f = -f
		}
		tx.Quantity = int(f)
	}
	if m := field("Multiplier"); m != "" {
		tx.Multiplier, _ = strconv.Atoi(m)
	}

	switch field("Instrument Type") {
	case "Equity":
		tx.Instrument = models.InstrumentEquity
	case "Equity Option":
		tx.Instrument = models.InstrumentOption
		if err := p.fillOptionFields(&tx, field); err != nil {
			return models.RawTransaction{}, err
		}
	case "":
		// Cash rows carry no instrument.
	default:
		return models.RawTransaction{}, fmt.Errorf("unsupported instrument type %q", field("Instrument Type"))
	}

	switch field("Type") {
	case "Money Movement":
		tx.Class = models.ClassCashMovement
		kind, err := cashKind(field("Sub Type"), value)
		if err != nil {
			return models.RawTransaction{}, err
		}
		tx.CashKind = kind
	case "Trade":
		tx.Class = models.ClassTrade
		action, err := tradeAction(field("Action"))
		if err != nil {
			return models.RawTransaction{}, err
		}
		tx.TradeAction = action
	case "Receive Deliver":
		tx.Class = models.ClassReceiveDeliver
		kind, err := receiveDeliverKind(field("Sub Type"))
		if err != nil {
			return models.RawTransaction{}, err
		}
		tx.ReceiveDeliverKind = kind
		// Forward-split style rows keep their trade action when present.
		if a := field("Action"); a != "" {
			if action, err := tradeAction(a); err == nil {
				tx.TradeAction = action
			}
		}
	default:
		return models.RawTransaction{}, fmt.Errorf("unsupported transaction type %q", field("Type"))
	}

	return tx, nil
}

func (p *TastytradeParser) fillOptionFields(tx *models.RawTransaction, field func(string) string) error {
	strike, err := parseMoney(field("Strike Price"))
	if err != nil {
		return fmt.Errorf("bad strike price: %w", err)
	}
	tx.Strike = strike
	if exp := field("Expiration Date"); exp != "" {
		date, err := parseExpiration(exp)
		if err != nil {
			return err
		}
		tx.Expiration = date
	}
	switch field("Call or Put") {
	case "CALL", "Call":
		tx.OptionType = models.OptionCall
	case "PUT", "Put":
		tx.OptionType = models.OptionPut
	case "":
		return fmt.Errorf("option row missing Call or Put")
	default:
		return fmt.Errorf("unknown option type %q", field("Call or Put"))
	}
	if tx.Multiplier == 0 {
		tx.Multiplier = 100
	}
	return nil
}

func cashKind(subType string, value models.Money) (models.CashMovementKind, error) {
	switch subType {
	case "Deposit":
		return models.CashDeposit, nil
	case "Withdrawal":
		return models.CashWithdrawal, nil
	case "Dividend":
		return models.CashDividend, nil
	case "Credit Interest":
		return models.CashInterestEarned, nil
	case "Debit Interest":
		return models.CashInterestPaid, nil
	case "Balance Adjustment", "Fee":
		return models.CashFee, nil
	case "Transfer":
		return models.CashTransfer, nil
	case "Deposit/Withdrawal":
		if value.IsNegative() {
			return models.CashWithdrawal, nil
		}
		return models.CashDeposit, nil
	default:
		return "", fmt.Errorf("unsupported money movement sub type %q", subType)
	}
}

func tradeAction(action string) (models.TradeAction, error) {
	switch action {
	case "BUY_TO_OPEN":
		return models.BuyToOpen, nil
	case "SELL_TO_OPEN":
		return models.SellToOpen, nil
	case "BUY_TO_CLOSE":
		return models.BuyToClose, nil
	case "SELL_TO_CLOSE":
		return models.SellToClose, nil
	case "BUY":
		return models.Buy, nil
	case "SELL":
		return models.Sell, nil
	default:
		return "", fmt.Errorf("unsupported trade action %q", action)
	}
}

func receiveDeliverKind(subType string) (models.ReceiveDeliverKind, error) {
	switch subType {
	case "ACAT":
		return models.ReceiveDeliverACAT, nil
	case "Assignment":
		return models.ReceiveDeliverAssignment, nil
	case "Exercise":
		return models.ReceiveDeliverExercise, nil
	case "Expiration":
		return models.ReceiveDeliverExpiration, nil
	default:
		return "", fmt.Errorf("unsupported receive/deliver sub type %q", subType)
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

func parseExpiration(value string) (models.Date, error) {
	for _, format := range expirationFormats {
		if t, err := time.Parse(format, value); err == nil {
			return models.DateOf(t), nil
		}
	}
	return models.Date{}, fmt.Errorf("unparseable expiration date %q", value)
}

// parseMoney handles the export's money formatting: thousands separators,
// leading currency signs and "--" for empty.
func parseMoney(value string) (models.Money, error) {
	cleaned := strings.ReplaceAll(value, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "--" {
		return models.Money{}, nil
	}
	return models.MoneyFromString(cleaned)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
