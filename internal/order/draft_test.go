package order

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"apex-trader/internal/model"

	"github.com/shopspring/decimal"
)

func aapl() model.Tradeable {
	return model.Tradeable{Symbol: "AAPL", ReferencePrice: decimal.RequireFromString("150.00"), HeldShares: 5}
}

func TestEstimatedTotal(t *testing.T) {
	tests := []struct {
		name string
		edit func(d *Draft)
		want string
	}{
		{"market order uses reference price", func(d *Draft) { d.Quantity = "3" }, "450"},
		{"limit order uses limit price", func(d *Draft) {
			d.Kind = model.KindLimit
			d.Quantity = "2"
			d.LimitPrice = "10.50"
		}, "21"},
		{"unparseable quantity", func(d *Draft) { d.Quantity = "abc" }, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDraft(aapl())
			tt.edit(&d)
			got := d.EstimatedTotal()
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("EstimatedTotal() = %s, want %s", got, tt.want)
			}
			if again := d.EstimatedTotal(); !again.Equal(got) {
				t.Errorf("EstimatedTotal() not idempotent: %s then %s", got, again)
			}
		})
	}
}

func TestEstimatedTotalFollowsEdits(t *testing.T) {
	d := NewDraft(aapl())
	if got := d.EstimatedTotalString(); got != "$150.00" {
		t.Errorf("initial total = %s", got)
	}
	d.Quantity = "3"
	if got := d.EstimatedTotalString(); got != "$450.00" {
		t.Errorf("after quantity edit = %s", got)
	}
	d.Kind = model.KindLimit
	d.LimitPrice = "10.50"
	if got := d.EstimatedTotalString(); got != "$31.50" {
		t.Errorf("after switching to limit = %s", got)
	}
	d.ReferencePrice = decimal.NewFromInt(999)
	if got := d.EstimatedTotalString(); got != "$31.50" {
		t.Errorf("limit total moved with reference price: %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		edit      func(d *Draft)
		wantField string
	}{
		{"valid buy", func(d *Draft) { d.Quantity = "10" }, ""},
		{"zero", func(d *Draft) { d.Quantity = "0" }, "quantity"},
		{"negative", func(d *Draft) { d.Quantity = "-2" }, "quantity"},
		{"fractional", func(d *Draft) { d.Quantity = "1.5" }, "quantity"},
		{"non-numeric", func(d *Draft) { d.Quantity = "ten" }, "quantity"},
		{"empty", func(d *Draft) { d.Quantity = "" }, "quantity"},
		{"exponent", func(d *Draft) { d.Quantity = "1e2" }, "quantity"},
		{"large exponent", func(d *Draft) { d.Quantity = "1e19" }, "quantity"},
		{"above int64", func(d *Draft) { d.Quantity = "9223372036854775808" }, "quantity"},
		{"above uint64", func(d *Draft) { d.Quantity = "18446744073709551617" }, "quantity"},
		{"sell above int64", func(d *Draft) { d.Side = model.SideSell; d.Quantity = "9223372036854775808" }, "quantity"},
		{"max int64", func(d *Draft) { d.Quantity = "9223372036854775807" }, ""},
		{"sell within holdings", func(d *Draft) { d.Side = model.SideSell; d.Quantity = "5" }, ""},
		{"sell beyond holdings", func(d *Draft) { d.Side = model.SideSell; d.Quantity = "10" }, "quantity"},
		{"negative limit", func(d *Draft) { d.Kind = model.KindLimit; d.LimitPrice = "-1" }, "limitPrice"},
		{"non-numeric limit", func(d *Draft) { d.Kind = model.KindLimit; d.LimitPrice = "cheap" }, "limitPrice"},
		{"zero limit", func(d *Draft) { d.Kind = model.KindLimit; d.LimitPrice = "0" }, ""},
		{"bad limit ignored for market", func(d *Draft) { d.LimitPrice = "cheap" }, ""},
		{"quantity checked first", func(d *Draft) {
			d.Kind = model.KindLimit
			d.LimitPrice = "-1"
			d.Quantity = "0"
		}, "quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDraft(aapl())
			tt.edit(&d)
			err := d.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %s, want %s", ve.Field, tt.wantField)
			}
		})
	}
}

func TestRequestPriceInForce(t *testing.T) {
	d := NewDraft(aapl())
	d.Quantity = "3"
	req, err := d.Request()
	if err != nil {
		t.Fatal(err)
	}
	if req.Quantity != 3 || req.OrderType != model.KindMarket || !req.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("market request = %+v", req)
	}

	d.Kind = model.KindLimit
	d.LimitPrice = "149.25"
	d.Side = model.SideSell
	req, err = d.Request()
	if err != nil {
		t.Fatal(err)
	}
	if req.ActionType != model.SideSell || !req.Price.Equal(decimal.RequireFromString("149.25")) {
		t.Errorf("limit request = %+v", req)
	}
}

func TestRequestQuantityMatchesValidated(t *testing.T) {
	for _, qty := range []string{"1", " 42 ", "9223372036854775807"} {
		d := NewDraft(aapl())
		d.Quantity = qty
		req, err := d.Request()
		if err != nil {
			t.Fatalf("Request(%q): %v", qty, err)
		}
		if got := strconv.FormatInt(req.Quantity, 10); got != strings.TrimSpace(qty) {
			t.Errorf("Request(%q).Quantity = %s", qty, got)
		}
	}
	for _, qty := range []string{"1e19", "18446744073709551617"} {
		d := NewDraft(aapl())
		d.Quantity = qty
		if req, err := d.Request(); err == nil {
			t.Errorf("Request(%q) = %+v, want validation error", qty, req)
		}
	}
}

func TestReseed(t *testing.T) {
	d := NewDraft(aapl())
	d.Side = model.SideSell
	d.Quantity = "4"
	d.LimitPrice = "1"
	d.Reseed(model.Tradeable{Symbol: "MSFT", ReferencePrice: decimal.NewFromInt(300), HeldShares: 2})

	if d.Symbol != "MSFT" || d.Quantity != "1" || d.LimitPrice != "300" || d.HeldShares != 2 {
		t.Errorf("reseeded draft = %+v", d)
	}
	if !d.ReferencePrice.Equal(decimal.NewFromInt(300)) {
		t.Errorf("reference price = %s", d.ReferencePrice)
	}
	if d.Side != model.SideSell {
		t.Errorf("side = %s, want sell kept", d.Side)
	}
}
