package statement

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ledgermint/ledgermint/internal/domain"
)

const bankExport = `Account Name : Mr. JOHN DOE
Account Number : 00000012345678901
Start Date : 1 Apr 2021
Txn Date,Value Date,Description,Ref No./Cheque No.,Debit,Credit,Balance
02/04/2021,02/04/2021,TO TRANSFER-UPI/DR/109095560565/Mrs Y,TRANSFER TO 4897691162099,20,,"1,098.30"
05/04/2021,05/04/2021,TO TRANSFER-UPI/DR/109518131538/GROCERY MART,TRANSFER TO 4897691162099,162,,936.30
08/04/2021,08/04/2021,TO TRANSFER-UPI/DR/109866302835/Mr Z,TRANSFER TO 4897691162099,50,,886.30
10/04/2021,10/04/2021,BY TRANSFER-NEFT/SALARY APR,TRANSFER FROM 4897693344556,,18000,"18,886.30"
12/04/2021,12/04/2021,TO TRANSFER-UPI/DR/110200443311/NETFLIX COM,TRANSFER TO 4897691162099,300,,"18,586.30"
`

func TestParseBankExport(t *testing.T) {
	txns, report, err := Parse([]byte(bankExport), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	if report.TotalRows != 5 || report.ParsedRows != 5 {
		t.Fatalf("report = %d/%d rows, want 5/5", report.ParsedRows, report.TotalRows)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", report.Issues)
	}

	wantAmounts := []string{"20", "162", "50", "18000", "300"}
	wantDirections := []domain.Direction{
		domain.DirectionExpense,
		domain.DirectionExpense,
		domain.DirectionExpense,
		domain.DirectionIncome,
		domain.DirectionExpense,
	}
	for i, txn := range txns {
		if txn.Amount.String() != wantAmounts[i] {
			t.Errorf("txn %d amount = %s, want %s", i, txn.Amount, wantAmounts[i])
		}
		if txn.Direction != wantDirections[i] {
			t.Errorf("txn %d direction = %s, want %s", i, txn.Direction, wantDirections[i])
		}
		if txn.AccountID != "acc-1" {
			t.Errorf("txn %d accountID = %s, want acc-1", i, txn.AccountID)
		}
	}

	// Quoted thousands-separated balance must survive parsing exactly.
	if txns[0].Balance == nil || txns[0].Balance.String() != "1098.3" {
		t.Errorf("txn 0 balance = %v, want 1098.3", txns[0].Balance)
	}
	if txns[3].Balance == nil || txns[3].Balance.String() != "18886.3" {
		t.Errorf("txn 3 balance = %v, want 18886.3", txns[3].Balance)
	}

	wantDate := time.Date(2021, 4, 2, 0, 0, 0, 0, time.UTC)
	if !txns[0].Date.Equal(wantDate) {
		t.Errorf("txn 0 date = %s, want %s", txns[0].Date, wantDate)
	}
	if txns[0].ValueDate == nil || !txns[0].ValueDate.Equal(wantDate) {
		t.Errorf("txn 0 value date = %v, want %s", txns[0].ValueDate, wantDate)
	}
}

func TestParseRowLevelFailuresDoNotAbort(t *testing.T) {
	text := strings.Join([]string{
		`Date,Description,Debit,Credit`,
		`2021-04-02,GOOD ROW,20,`,
		`not-a-date,BAD DATE,30,`,
		`2021-04-03,BOTH PRESENT,10,10`,
		`2021-04-04,NEITHER PRESENT,,`,
		`2021-04-05,UNPARSABLE AMOUNT,abc,`,
		`2021-04-06,ANOTHER GOOD ROW,,75`,
	}, "\n")

	txns, report, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	if len(txns) != 2 {
		t.Fatalf("parsed %d transactions, want 2", len(txns))
	}
	if report.TotalRows != 6 {
		t.Errorf("TotalRows = %d, want 6", report.TotalRows)
	}
	if report.SkippedRows() != 4 {
		t.Fatalf("SkippedRows() = %d, want 4: %v", report.SkippedRows(), report.Issues)
	}

	wantErrs := []error{
		domain.ErrUnparsableDate,
		domain.ErrMalformedRow,
		domain.ErrMalformedRow,
		domain.ErrUnparsableAmount,
	}
	for i, issue := range report.Issues {
		if !errors.Is(issue.Err, wantErrs[i]) {
			t.Errorf("issue %d = %v, want %v", i, issue.Err, wantErrs[i])
		}
	}

	// Line numbers are 1-based positions in the original file.
	if report.Issues[0].Line != 3 {
		t.Errorf("first issue line = %d, want 3", report.Issues[0].Line)
	}
}

func TestParsePresentButZeroCredit(t *testing.T) {
	text := "Date,Description,Debit,Credit\n2021-04-02,REVERSAL ADJUSTMENT,,0\n"

	txns, _, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("parsed %d transactions, want 1", len(txns))
	}
	if !txns[0].Amount.IsZero() {
		t.Errorf("amount = %s, want 0", txns[0].Amount)
	}
	if txns[0].Direction != domain.DirectionIncome {
		t.Errorf("direction = %s, want income", txns[0].Direction)
	}
}

func TestParseSignedAmountColumn(t *testing.T) {
	text := "Date,Description,Amount\n2021-04-02,NETFLIX COM,-499.00\n2021-04-03,REFUND,499.00\n"

	txns, _, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("parsed %d transactions, want 2", len(txns))
	}
	if txns[0].Direction != domain.DirectionExpense || txns[0].Amount.String() != "499" {
		t.Errorf("txn 0 = %s %s, want expense 499", txns[0].Direction, txns[0].Amount)
	}
	if txns[1].Direction != domain.DirectionIncome {
		t.Errorf("txn 1 direction = %s, want income", txns[1].Direction)
	}
}

func TestParseShortRowPadsAbsent(t *testing.T) {
	// A row missing trailing columns is padded, not rejected.
	text := "Date,Description,Debit,Credit,Balance\n2021-04-02,SHORT ROW,20\n"

	txns, report, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("parsed %d transactions, want 1: %v", len(txns), report.Issues)
	}
	if txns[0].Balance != nil {
		t.Errorf("balance = %v, want nil", txns[0].Balance)
	}
}

func TestParseQuotedNewlineKeepsLineNumbers(t *testing.T) {
	// The first data record spans two physical lines; the issue on the bad
	// row must still point at its real position in the file.
	text := "Date,Description,Amount\n" +
		"2021-04-02,\"COFFEE\nSHOP\",-30\n" +
		"not-a-date,BAD ROW,-5\n"

	txns, report, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("parsed %d transactions, want 1: %v", len(txns), report.Issues)
	}
	if txns[0].Description != "COFFEE SHOP" {
		t.Errorf("description = %q, want %q", txns[0].Description, "COFFEE SHOP")
	}
	if len(report.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(report.Issues), report.Issues)
	}
	if report.Issues[0].Line != 4 {
		t.Errorf("issue line = %d, want 4", report.Issues[0].Line)
	}
}

func TestParseUTF16LEWithBOM(t *testing.T) {
	text := "Date,Description,Amount\n2021-04-02,NETFLIX COM,-499.00\n"
	raw := []byte{0xFF, 0xFE}
	for _, r := range text {
		raw = append(raw, byte(r), byte(r>>8))
	}

	txns, report, err := Parse(raw, "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 1 || report.ParsedRows != 1 {
		t.Fatalf("parsed %d transactions (%d rows), want 1 (1): %v", len(txns), report.ParsedRows, report.Issues)
	}
	if txns[0].Description != "NETFLIX COM" {
		t.Errorf("description = %q, want %q", txns[0].Description, "NETFLIX COM")
	}
	if txns[0].Amount.String() != "499" || txns[0].Direction != domain.DirectionExpense {
		t.Errorf("txn = %s %s, want expense 499", txns[0].Direction, txns[0].Amount)
	}
}

func TestParseBOMAndBlankLines(t *testing.T) {
	text := "\xEF\xBB\xBFDate,Description,Amount\n\n2021-04-02,COFFEE,-30\n\n"

	txns, report, err := Parse([]byte(text), "acc-1")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if len(txns) != 1 || report.TotalRows != 1 {
		t.Errorf("parsed %d transactions (%d rows), want 1 (1)", len(txns), report.TotalRows)
	}
}

func TestParseEmptyStatement(t *testing.T) {
	_, _, err := Parse([]byte("Date,Description,Amount\n"), "acc-1")
	if !errors.Is(err, domain.ErrEmptyStatement) {
		t.Errorf("Parse() error = %v, want ErrEmptyStatement", err)
	}
}

func TestParseUnrecognizedLayout(t *testing.T) {
	_, _, err := Parse([]byte("some random text\nno header here\n"), "acc-1")
	if !errors.Is(err, domain.ErrUnrecognizedLayout) {
		t.Errorf("Parse() error = %v, want ErrUnrecognizedLayout", err)
	}
}

func TestParseEmptyAccountID(t *testing.T) {
	_, _, err := Parse([]byte(bankExport), "")
	if err == nil {
		t.Error("Parse() with empty account ID succeeded, want error")
	}
}

func TestIsOFX(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "sgml header", raw: "OFXHEADER:100\nDATA:OFXSGML\n", want: true},
		{name: "xml declaration", raw: `<?xml version="1.0"?><?OFX OFXHEADER="200"?>`, want: true},
		{name: "bare tag", raw: "<OFX><SIGNONMSGSRSV1>", want: true},
		{name: "csv", raw: "Date,Description,Amount\n", want: false},
		{name: "empty", raw: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOFX([]byte(tt.raw)); got != tt.want {
				t.Errorf("IsOFX(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
