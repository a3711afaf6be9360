package margin

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRule_Amount(t *testing.T) {
	base := decimal.NewFromInt(50000)

	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{"ten percent", Rule{Type: TypePercentage, Value: decimal.NewFromInt(10)}, "5000"},
		{"fractional percent rounds", Rule{Type: TypePercentage, Value: decimal.RequireFromString("2.555")}, "1277.5"},
		{"fixed ignores base", Rule{Type: TypeFixed, Value: decimal.NewFromInt(1500)}, "1500"},
		{"fixed rounds to cents", Rule{Type: TypeFixed, Value: decimal.RequireFromString("1500.125")}, "1500.13"},
		{"zero percent", Rule{Type: TypePercentage, Value: decimal.Zero}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Amount(base).String())
		})
	}

	odd := Rule{Type: TypePercentage, Value: decimal.RequireFromString("3.333")}
	assert.Equal(t, "33.33", odd.Amount(decimal.NewFromInt(1000)).String())
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{"global percentage", Rule{Scope: ScopeGlobal, Type: TypePercentage, Value: decimal.NewFromInt(5)}, nil},
		{"category fixed", Rule{Scope: ScopeCategory, ScopeValue: "pln", Type: TypeFixed, Value: decimal.NewFromInt(2500)}, nil},
		{"product without value", Rule{Scope: ScopeProduct, Type: TypeFixed, Value: decimal.NewFromInt(1)}, ErrMissingScopeValue},
		{"bad scope", Rule{Scope: "region", Type: TypeFixed, Value: decimal.NewFromInt(1)}, ErrInvalidScope},
		{"percent above 100", Rule{Scope: ScopeGlobal, Type: TypePercentage, Value: decimal.NewFromInt(101)}, ErrInvalidPercentage},
		{"negative fixed", Rule{Scope: ScopeGlobal, Type: TypeFixed, Value: decimal.NewFromInt(-1)}, ErrNegativeFixed},
		{"bad type", Rule{Scope: ScopeGlobal, Type: "tiered", Value: decimal.NewFromInt(1)}, ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRule_Key(t *testing.T) {
	assert.Equal(t, "global", Rule{Scope: ScopeGlobal, ScopeValue: "ignored"}.Key())
	assert.Equal(t, "category:pln", Rule{Scope: ScopeCategory, ScopeValue: "pln"}.Key())
}
