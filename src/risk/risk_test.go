package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradingroom/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name     string
		side     model.Side
		entry    decimal.Decimal
		leverage int
		want     decimal.Decimal
	}{
		{name: "long 10x", side: model.SideLong, entry: d("100"), leverage: 10, want: d("90.5")},
		{name: "short 10x", side: model.SideShort, entry: d("100"), leverage: 10, want: d("109.5")},
		{name: "long 1x", side: model.SideLong, entry: d("200"), leverage: 1, want: d("1")},
		{name: "short 4x", side: model.SideShort, entry: d("40000"), leverage: 4, want: d("49800")},
		{name: "zero leverage is not computable", side: model.SideLong, entry: d("100"), leverage: 0, want: decimal.Zero},
		{name: "negative leverage is not computable", side: model.SideShort, entry: d("100"), leverage: -5, want: decimal.Zero},
		{name: "missing entry is not computable", side: model.SideLong, entry: decimal.Zero, leverage: 10, want: decimal.Zero},
		{name: "unknown side", side: model.Side("flat"), entry: d("100"), leverage: 10, want: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiquidationPrice(tt.side, tt.entry, tt.leverage)
			if !got.Equal(tt.want) {
				t.Fatalf("expected liquidation price %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCalculate(t *testing.T) {
	terms := Calculate(model.SideLong, d("2"), d("100"), 10, d("0.001"))

	if !terms.OrderValue.Equal(d("200")) {
		t.Fatalf("expected order value 200, got %s", terms.OrderValue)
	}
	if !terms.OpenFee.Equal(d("0.2")) {
		t.Fatalf("expected fee 0.2, got %s", terms.OpenFee)
	}
	if !terms.InitialMargin.Equal(d("20")) {
		t.Fatalf("expected margin 20, got %s", terms.InitialMargin)
	}
	if !terms.TotalCost.Equal(d("20.2")) {
		t.Fatalf("expected total cost 20.2, got %s", terms.TotalCost)
	}
	if !terms.LiquidationPrice.Equal(d("90.5")) {
		t.Fatalf("expected liquidation 90.5, got %s", terms.LiquidationPrice)
	}
}

func TestInitialMarginWithoutLeverage(t *testing.T) {
	if got := InitialMargin(d("150"), 0); !got.Equal(d("150")) {
		t.Fatalf("expected full order value as margin, got %s", got)
	}
}

func TestPnL(t *testing.T) {
	if got := PnL(model.SideLong, d("100"), d("110"), d("2")); !got.Equal(d("20")) {
		t.Fatalf("expected long pnl 20, got %s", got)
	}
	if got := PnL(model.SideShort, d("100"), d("110"), d("2")); !got.Equal(d("-20")) {
		t.Fatalf("expected short pnl -20, got %s", got)
	}
}
