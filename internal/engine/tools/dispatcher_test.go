package tools

import (
	"context"
	"net/http"
	"testing"
	"time"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
)

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), time.Second)
	res := d.Dispatch(context.Background(), "nope", nil)
	if res.Success || res.ErrorKind != errx.KindToolFailure {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatchMissingRequiredParameter(t *testing.T) {
	called := false
	reg := NewRegistry()
	if err := reg.Register(&Tool{
		Name:   "echo",
		Params: []Param{{Name: "value", Type: "string", Required: true}},
		Handler: func(context.Context, map[string]string) (map[string]any, error) {
			called = true
			return nil, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	d := NewDispatcher(reg, time.Second)
	res := d.Dispatch(context.Background(), "echo", map[string]string{})
	if res.Success || res.ErrorKind != errx.KindMissingParameter {
		t.Fatalf("got %+v", res)
	}
	if called {
		t.Fatal("handler must not run when validation fails")
	}
}

func TestDispatchTimeout(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Tool{
		Name: "slow",
		Handler: func(ctx context.Context, _ map[string]string) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	d := NewDispatcher(reg, 20*time.Millisecond)
	res := d.Dispatch(context.Background(), "slow", nil)
	if res.Success || res.ErrorKind != errx.KindToolTimeout {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Tool{
		Name: "boom",
		Handler: func(context.Context, map[string]string) (map[string]any, error) {
			panic("kaboom")
		},
	})

	d := NewDispatcher(reg, time.Second)
	res := d.Dispatch(context.Background(), "boom", nil)
	if res.Success || res.ErrorKind != errx.KindToolFailure {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatchKeepsHandlerErrorKind(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Tool{
		Name: "strict",
		Handler: func(context.Context, map[string]string) (map[string]any, error) {
			return nil, errx.NewKind(nil, errx.KindValidationFailed, http.StatusBadRequest, "entrée invalide")
		},
	})

	d := NewDispatcher(reg, time.Second)
	res := d.Dispatch(context.Background(), "strict", nil)
	if res.Success || res.ErrorKind != errx.KindValidationFailed || res.Message != "entrée invalide" {
		t.Fatalf("got %+v", res)
	}
}

func TestDemoTrackingLookup(t *testing.T) {
	d := NewDispatcher(NewDemoRegistry(), time.Second)

	res := d.Dispatch(context.Background(), ToolTrackingLookup, map[string]string{"tracking_code": "DKR240815"})
	if !res.Success {
		t.Fatalf("got %+v", res)
	}
	if res.Data["location"] != "Port de Dakar" {
		t.Fatalf("data = %v", res.Data)
	}

	res = d.Dispatch(context.Background(), ToolTrackingLookup, map[string]string{"tracking_code": "ZZZ999999"})
	if res.Success || res.ErrorKind != errx.KindToolFailure {
		t.Fatalf("unknown code: got %+v", res)
	}
}

func TestDemoQuoteBillsVolumeWhenHeavier(t *testing.T) {
	d := NewDispatcher(NewDemoRegistry(), time.Second)

	params := map[string]string{
		"origin":      "Dakar",
		"destination": "Abidjan",
		"weight_kg":   "100",
		"volume_m3":   "2",
	}
	res := d.Dispatch(context.Background(), ToolQuoteCompute, params)
	if !res.Success {
		t.Fatalf("got %+v", res)
	}
	// 2 m³ counts as 500 kg, which outweighs the declared 100 kg:
	// 25000 + 350*500 for the default sea mode.
	if res.Data["price"] != "200000" {
		t.Fatalf("price = %v, want 200000", res.Data["price"])
	}
	if res.Data["mode"] != "sea" {
		t.Fatalf("mode = %v, want sea default", res.Data["mode"])
	}
}

func TestDemoPODRequiresDeliveredShipment(t *testing.T) {
	d := NewDispatcher(NewDemoRegistry(), time.Second)

	res := d.Dispatch(context.Background(), ToolPODFetch, map[string]string{"tracking_code": "DKR240815"})
	if res.Success {
		t.Fatalf("in-transit shipment must not have a POD: %+v", res)
	}

	res = d.Dispatch(context.Background(), ToolPODFetch, map[string]string{"tracking_code": "ABJ240101"})
	if !res.Success || res.Data["signed_by"] != "A. Koné" {
		t.Fatalf("got %+v", res)
	}
}

func TestDemoCurrencyConvert(t *testing.T) {
	d := NewDispatcher(NewDemoRegistry(), time.Second)

	res := d.Dispatch(context.Background(), ToolCurrencyConvert, map[string]string{
		"amount": "600",
		"from":   "usd",
		"to":     "xof",
	})
	if !res.Success {
		t.Fatalf("got %+v", res)
	}
	if res.Data["amount"] != 360000.0 {
		t.Fatalf("amount = %v, want 360000", res.Data["amount"])
	}
}
