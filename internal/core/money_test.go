package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half away from zero
		{"-1.005", "-1.01", true},
		{" 2.50 ", "2.50", true},
		{"-5", "-5.00", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestLineTotalsAreExact(t *testing.T) {
	in := SaleInput{Items: []SaleItemInput{
		{Quantity: MustQuantity("2"), PricePerUnit: MustMoney("10.50")},
		{Quantity: MustQuantity("1"), PricePerUnit: MustMoney("5.00")},
	}}
	if got := in.Total(); !got.Equal(MustMoney("26.00")) || got.String() != "26.00" {
		t.Fatalf("expected 26.00, got %s", got)
	}

	// 0.1 + 0.2 style drift must not appear across many small lines.
	many := SaleInput{}
	for i := 0; i < 1000; i++ {
		many.Items = append(many.Items, SaleItemInput{Quantity: MustQuantity("1"), PricePerUnit: MustMoney("0.10")})
	}
	if got := many.Total(); got.String() != "100.00" {
		t.Fatalf("expected 100.00, got %s", got)
	}
}

func TestQuantityTimesRounds(t *testing.T) {
	got := MustQuantity("1.333").Times(MustMoney("3.00"))
	if got.String() != "4.00" {
		t.Fatalf("expected 4.00, got %s", got)
	}
	got = MustQuantity("0.005").Times(MustMoney("1.00"))
	if got.String() != "0.01" {
		t.Fatalf("expected 0.01, got %s", got)
	}
}

func TestMoneyMinorUnits(t *testing.T) {
	m := MustMoney("-12.34")
	if m.Cents() != -1234 {
		t.Fatalf("expected -1234 cents, got %d", m.Cents())
	}
	if !MoneyFromCents(-1234).Equal(m) {
		t.Fatalf("round trip through cents changed value")
	}
	if q := MustQuantity("2.5"); q.Milli() != 2500 {
		t.Fatalf("expected 2500 milli, got %d", q.Milli())
	}
}

func TestMoneyScan(t *testing.T) {
	cases := []struct {
		name string
		src  any
		want string
	}{
		{"int64", int64(2600), "26.00"},
		{"numeric text", []byte("-150"), "-1.50"},
		{"string", "7", "0.07"},
		{"null", nil, "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Money
			if err := m.Scan(tc.src); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if m.String() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, m)
			}
		})
	}
	var m Money
	if err := m.Scan(true); err == nil {
		t.Fatal("expected error for bool source")
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		A Money    `json:"a"`
		B Money    `json:"b"`
		Q Quantity `json:"q"`
	}
	if err := json.Unmarshal([]byte(`{"a": 10.5, "b": "3,25", "q": 1.25}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.String() != "10.50" || payload.B.String() != "3.25" || payload.Q.String() != "1.250" {
		t.Fatalf("unexpected values %s %s %s", payload.A, payload.B, payload.Q)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"10.50","b":"3.25","q":"1.250"}` {
		t.Fatalf("unexpected json %s", out)
	}

	if err := json.Unmarshal([]byte(`{"a": "ten"}`), &payload); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestMoneyRange(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"999999999999.99", true},
		{"-999999999999.99", true},
		{"1000000000000", false},
		{"184467440737095517.16", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := MustMoney(tt.in)
			if m.InRange() != tt.ok {
				t.Errorf("InRange = %v, want %v", m.InRange(), tt.ok)
			}
			v, err := m.Value()
			if tt.ok && (err != nil || v != m.Cents()) {
				t.Errorf("Value = %v, %v", v, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("Value err = %v, want ErrInvalidAmount", err)
			}

			var decoded Money
			err = json.Unmarshal([]byte(`"`+tt.in+`"`), &decoded)
			if (err == nil) != tt.ok {
				t.Errorf("UnmarshalJSON err = %v", err)
			}
		})
	}

	if _, err := MustQuantity("1000000000").Value(); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("quantity Value err = %v", err)
	}
	var q Quantity
	if err := json.Unmarshal([]byte("1e12"), &q); err == nil {
		t.Error("oversized quantity must not decode")
	}
}
