package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "one ether in wei", input: "1000000000000000000", want: "1000000000000000000"},
		{name: "beyond uint64", input: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "trims whitespace", input: "  42 ", want: "42"},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "fractional", input: "1.5", wantErr: true},
		{name: "exponent", input: "1e18", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseUnits(t *testing.T) {
	a, err := ParseUnits("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", a.String())
	assert.Equal(t, "1.5", a.FormatUnits(18))

	_, err = ParseUnits("0.0000000000000000001", 18)
	assert.Error(t, err, "more precision than the unit allows")

	_, err = ParseUnits("-2", 18)
	assert.Error(t, err)

	assert.True(t, Ether("1").Equal(NewAmount(1_000_000_000_000_000_000)))
}

func TestNewAmountFromDecimal(t *testing.T) {
	_, err := NewAmountFromDecimal(decimal.NewFromFloat(0.5))
	assert.Error(t, err)

	a, err := NewAmountFromDecimal(decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.Equal(t, "7", a.String())
}

func TestAmountArithmetic(t *testing.T) {
	one := Ether("1")
	half := Ether("0.5")

	assert.Equal(t, "1500000000000000000", one.Add(half).String())
	assert.Equal(t, 1, one.Cmp(half))
	assert.True(t, half.LessThan(one))
	assert.True(t, one.GreaterThan(half))
	assert.True(t, Zero.IsZero())
	assert.False(t, Zero.IsPositive())

	diff, err := one.Sub(half)
	require.NoError(t, err)
	assert.True(t, diff.Equal(half))

	_, err = half.Sub(one)
	assert.Error(t, err)
}

func TestAmountJSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	data, err := json.Marshal(payload{Amount: NewAmount(250)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"250"}`, string(data))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"1000"}`), &p))
	assert.Equal(t, "1000", p.Amount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount":77}`), &p))
	assert.Equal(t, "77", p.Amount.String())

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"-5"}`), &p))
}
