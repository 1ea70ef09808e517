package bigmath

import (
	"math/big"
	"testing"
)

func TestBigMath(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestSubFloor", testSubFloor},
		{"TestMulDivUp", testMulDivUp},
		{"TestPercentMul", testPercentMul},
		{"TestFlashFee", testFlashFee},
		{"TestMin", testMin},
		{"TestSum", testSum},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testSubFloor(t *testing.T) {
	if got := SubFloor(big.NewInt(100), big.NewInt(40)); got.Int64() != 60 {
		t.Errorf("SubFloor(100, 40) = %v; want 60", got)
	}
	if got := SubFloor(big.NewInt(40), big.NewInt(100)); got.Sign() != 0 {
		t.Errorf("SubFloor(40, 100) = %v; want 0", got)
	}
}

func testMulDivUp(t *testing.T) {
	if got := MulDivUp(big.NewInt(10), big.NewInt(1), big.NewInt(3)); got.Int64() != 4 {
		t.Errorf("MulDivUp(10, 1, 3) = %v; want 4", got)
	}
	if got := MulDivUp(big.NewInt(9), big.NewInt(1), big.NewInt(3)); got.Int64() != 3 {
		t.Errorf("MulDivUp(9, 1, 3) = %v; want 3", got)
	}
	if got := MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3)); got.Int64() != 3 {
		t.Errorf("MulDiv(10, 1, 3) = %v; want 3", got)
	}
}

func testPercentMul(t *testing.T) {
	if got := PercentMul(big.NewInt(1_000_000), 9); got.Int64() != 900 {
		t.Errorf("PercentMul(1000000, 9) = %v; want 900", got)
	}
	if got := PercentMul(big.NewInt(1_000_000), 10500); got.Int64() != 1_050_000 {
		t.Errorf("PercentMul(1000000, 10500) = %v; want 1050000", got)
	}
}

func testFlashFee(t *testing.T) {
	if got := CalculateFlashFee(big.NewInt(1_000_000), 3000); got.Int64() != 3000 {
		t.Errorf("CalculateFlashFee(1000000, 3000) = %v; want 3000", got)
	}
	if got := CalculateFlashFee(big.NewInt(1), 500); got.Int64() != 1 {
		t.Errorf("CalculateFlashFee(1, 500) = %v; want 1", got)
	}
	if got := CalculateFlashFee(nil, 500); got.Sign() != 0 {
		t.Errorf("CalculateFlashFee(nil, 500) = %v; want 0", got)
	}
}

func testMin(t *testing.T) {
	x, y := big.NewInt(5), big.NewInt(7)
	got := Min(x, y)
	if got.Int64() != 5 {
		t.Errorf("Min(5, 7) = %v; want 5", got)
	}
	got.SetInt64(0)
	if x.Int64() != 5 {
		t.Errorf("Min aliased its argument")
	}
}

func testSum(t *testing.T) {
	if got := Sum(big.NewInt(1), nil, big.NewInt(2)); got.Int64() != 3 {
		t.Errorf("Sum(1, nil, 2) = %v; want 3", got)
	}
}
