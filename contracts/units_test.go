package contracts

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	assert.True(t, ToDecimal(nil, EtherDecimals).IsZero())
	assert.Equal(t, "0.05", ToDecimal(big.NewInt(50_000), USDCDecimals).String())
	assert.Equal(t, "1", ToDecimal(big.NewInt(1e18), EtherDecimals).String())
}

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{name: "whole", in: "5", want: "5000000"},
		{name: "fractional", in: "2.5", want: "2500000"},
		{name: "smallest unit", in: "0.000001", want: "1"},
		{name: "too precise", in: "0.0000001", wantErr: "more than 6 decimals"},
		{name: "negative", in: "-1", wantErr: "negative amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromDecimal(decimal.RequireFromString(tt.in), USDCDecimals)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToInt64Overflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	_, err := toInt64(huge, "points")
	assert.ErrorContains(t, err, "overflows int64")
}
