package layout

import (
	"errors"
	"strings"
	"testing"

	"github.com/ledgermint/ledgermint/internal/domain"
)

func TestDetectSplitAmountLayoutWithPreamble(t *testing.T) {
	text := strings.Join([]string{
		`Account Name : Mr. JOHN DOE`,
		`Address : 123 MG ROAD`,
		``,
		`Txn Date,Value Date,Description,Ref No./Cheque No.,Debit,Credit,Balance`,
		`02/04/2021,02/04/2021,TO TRANSFER-UPI,REF123,20,,"1,098.30"`,
	}, "\n")

	l, err := Detect(text)
	if err != nil {
		t.Fatalf("Detect() unexpected error: %v", err)
	}

	if l.Delimiter != ',' {
		t.Errorf("Delimiter = %q, want ','", l.Delimiter)
	}
	if l.HeaderIndex != 3 {
		t.Errorf("HeaderIndex = %d, want 3", l.HeaderIndex)
	}
	if !l.HasSplitAmounts() {
		t.Error("HasSplitAmounts() = false, want true")
	}

	wantColumns := map[Field]int{
		FieldDate:        0,
		FieldValueDate:   1,
		FieldDescription: 2,
		FieldReference:   3,
		FieldDebit:       4,
		FieldCredit:      5,
		FieldBalance:     6,
	}
	for field, want := range wantColumns {
		if got, ok := l.Columns[field]; !ok || got != want {
			t.Errorf("Columns[%s] = %d (present=%v), want %d", field, got, ok, want)
		}
	}

	if got := l.Preamble["Account Name"]; got != "Mr. JOHN DOE" {
		t.Errorf("Preamble[Account Name] = %q, want %q", got, "Mr. JOHN DOE")
	}
}

func TestDetectSignedAmountLayout(t *testing.T) {
	text := "Date;Description;Amount\n2021-03-04;NETFLIX COM;-499.00\n"

	l, err := Detect(text)
	if err != nil {
		t.Fatalf("Detect() unexpected error: %v", err)
	}
	if l.Delimiter != ';' {
		t.Errorf("Delimiter = %q, want ';'", l.Delimiter)
	}
	if l.HasSplitAmounts() {
		t.Error("HasSplitAmounts() = true, want false")
	}
	if _, ok := l.Columns[FieldAmount]; !ok {
		t.Error("amount column not detected")
	}
}

func TestDetectHeaderSynonyms(t *testing.T) {
	tests := []struct {
		name   string
		header string
		field  Field
		column int
	}{
		{name: "narration", header: "Date,Narration,Amount", field: FieldDescription, column: 1},
		{name: "particulars", header: "Date,Particulars,Withdrawal Amt,Deposit Amt", field: FieldDescription, column: 1},
		{name: "withdrawal is debit", header: "Date,Particulars,Withdrawal Amt,Deposit Amt", field: FieldDebit, column: 2},
		{name: "deposit is credit", header: "Date,Particulars,Withdrawal Amt,Deposit Amt", field: FieldCredit, column: 3},
		{name: "dr shorthand", header: "Date,Details,DR,CR", field: FieldDebit, column: 2},
		{name: "cr shorthand", header: "Date,Details,DR,CR", field: FieldCredit, column: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Detect(tt.header + "\nrow,row,1,2\n")
			if err != nil {
				t.Fatalf("Detect() unexpected error: %v", err)
			}
			if got, ok := l.Columns[tt.field]; !ok || got != tt.column {
				t.Errorf("Columns[%s] = %d (present=%v), want %d", tt.field, got, ok, tt.column)
			}
		})
	}
}

func TestDetectValueDateDoesNotShadowDate(t *testing.T) {
	l, err := Detect("Value Date,Txn Date,Description,Amount\nx,y,z,1\n")
	if err != nil {
		t.Fatalf("Detect() unexpected error: %v", err)
	}
	if got := l.Columns[FieldValueDate]; got != 0 {
		t.Errorf("Columns[valueDate] = %d, want 0", got)
	}
	if got := l.Columns[FieldDate]; got != 1 {
		t.Errorf("Columns[date] = %d, want 1", got)
	}
}

func TestDetectNoHeader(t *testing.T) {
	_, err := Detect("just some text\nwith no recognizable header\n")
	if !errors.Is(err, domain.ErrUnrecognizedLayout) {
		t.Errorf("Detect() error = %v, want ErrUnrecognizedLayout", err)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	_, err := Detect("   \n  \n")
	if !errors.Is(err, domain.ErrEmptyStatement) {
		t.Errorf("Detect() error = %v, want ErrEmptyStatement", err)
	}
}

func TestDetectHeaderBeyondScanWindow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < headerScanWindow; i++ {
		b.WriteString("filler line\n")
	}
	b.WriteString("Date,Description,Amount\n")

	_, err := Detect(b.String())
	if !errors.Is(err, domain.ErrUnrecognizedLayout) {
		t.Errorf("Detect() error = %v, want ErrUnrecognizedLayout", err)
	}
}
