package statement

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/normalize"
)

// IsOFX reports whether the raw bytes look like an OFX/QFX export rather than
// CSV-like text, checking both v1 SGML and v2 XML header markers.
func IsOFX(raw []byte) bool {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	upper := strings.ToUpper(string(head))
	return strings.Contains(upper, "OFXHEADER") ||
		strings.Contains(upper, "<?OFX") ||
		strings.Contains(upper, "<OFX>")
}

// ParseOFX converts an OFX/QFX export into normalized transactions for the
// given account, routed through the same report contract as CSV parsing.
// Bank and credit-card statements are supported; the OFX sign convention
// (negative = outflow) maps onto direction.
func ParseOFX(raw []byte, accountID string) ([]domain.NormalizedTransaction, *domain.ImportReport, error) {
	if accountID == "" {
		return nil, nil, fmt.Errorf("account ID cannot be empty")
	}

	resp, err := ofxgo.ParseResponse(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUnrecognizedLayout, err)
	}

	var tranList *ofxgo.TransactionList
	switch {
	case len(resp.Bank) > 0:
		stmt, ok := resp.Bank[0].(*ofxgo.StatementResponse)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected bank statement type %T", resp.Bank[0])
		}
		tranList = stmt.BankTranList
	case len(resp.CreditCard) > 0:
		stmt, ok := resp.CreditCard[0].(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected credit card statement type %T", resp.CreditCard[0])
		}
		tranList = stmt.BankTranList
	default:
		return nil, nil, fmt.Errorf("%w: no bank or credit card statement in OFX file", domain.ErrUnrecognizedLayout)
	}

	if tranList == nil {
		return nil, nil, fmt.Errorf("%w: missing transaction list", domain.ErrEmptyStatement)
	}

	report := &domain.ImportReport{}
	transactions := make([]domain.NormalizedTransaction, 0, len(tranList.Transactions))

	for i, ofxTxn := range tranList.Transactions {
		report.TotalRows++
		txn, err := mapOFXTransaction(ofxTxn, accountID)
		if err != nil {
			report.AddIssue(i+1, err)
			continue
		}
		report.ParsedRows++
		transactions = append(transactions, *txn)
	}

	if report.TotalRows == 0 {
		return nil, nil, fmt.Errorf("%w: transaction list has no entries", domain.ErrEmptyStatement)
	}
	return transactions, report, nil
}

func mapOFXTransaction(ofxTxn ofxgo.Transaction, accountID string) (*domain.NormalizedTransaction, error) {
	date := ofxTxn.DtPosted.Time
	if date.IsZero() {
		date = ofxTxn.DtUser.Time
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: missing posted and user date", domain.ErrUnparsableDate)
	}

	description := normalize.Description(ofxTxn.Name.String())
	if description == "" {
		description = normalize.Description(ofxTxn.Memo.String())
	}
	if description == "" {
		return nil, fmt.Errorf("%w: missing name and memo", domain.ErrMalformedRow)
	}

	amount, err := decimal.NewFromString(ofxTxn.TrnAmt.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrUnparsableAmount, ofxTxn.TrnAmt.String(), err)
	}

	direction := domain.DirectionIncome
	if amount.IsNegative() {
		direction = domain.DirectionExpense
	}

	txn, err := domain.NewNormalizedTransaction(accountID, date, description, amount.Abs(), direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRow, err)
	}
	txn.Reference = ofxTxn.FiTID.String()
	return txn, nil
}
