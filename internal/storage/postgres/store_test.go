package postgres

import (
	"math/big"
	"testing"

	"github.com/moose-code/snubb/internal/storage"
)

var _ storage.Sink = (*Store)(nil)

func TestBigNumeric(t *testing.T) {
	huge, ok := new(big.Int).SetString("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", 16)
	if !ok {
		t.Fatal("parse max uint256")
	}

	tests := []struct {
		name string
		v    *big.Int
		want string
	}{
		{"nil", nil, "0"},
		{"zero", big.NewInt(0), "0"},
		{"small", big.NewInt(12345), "12345"},
		{"max uint256", huge, "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bigNumeric(tt.v); got != tt.want {
				t.Errorf("bigNumeric(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}
