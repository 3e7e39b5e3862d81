package tools

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
)

// Registered tool names.
const (
	ToolTrackingLookup  = "tracking.lookup"
	ToolPODFetch        = "pod.fetch"
	ToolInvoicesList    = "invoices.list"
	ToolInvoicePDF      = "invoices.pdf"
	ToolQuoteCompute    = "quotes.compute"
	ToolNotifySubscribe = "notifications.subscribe"
	ToolTicketCreate    = "support.ticket"
	ToolCurrencyConvert = "fx.convert"
)

type shipment struct {
	Status      string
	Location    string
	ETA         string
	Delivered   bool
	SignedBy    string
	DeliveredAt string
}

var demoShipments = map[string]shipment{
	"DKR240815": {Status: "en transit", Location: "Port de Dakar", ETA: "2026-09-05"},
	"K12345678": {Status: "en transit", Location: "Abidjan", ETA: "2026-09-08"},
	"ABJ240101": {Status: "livrée", Location: "Abidjan", ETA: "2026-08-20", Delivered: true, SignedBy: "A. Koné", DeliveredAt: "2026-08-20"},
	"PAR240512": {Status: "en dédouanement", Location: "Le Havre", ETA: "2026-09-12"},
}

type invoice struct {
	Number string
	Amount float64
	Paid   bool
}

var demoInvoices = map[string][]invoice{
	"demo-user": {
		{Number: "FAC-2026-0042", Amount: 450000, Paid: true},
		{Number: "FAC-2026-0057", Amount: 820000, Paid: false},
	},
}

// Quote pricing per transport mode: base fee plus per-kg rate (XOF), with
// an indicative transit time.
var quoteRates = map[string]struct {
	Base    float64
	PerKg   float64
	ETADays int
}{
	"sea":  {Base: 25000, PerKg: 350, ETADays: 21},
	"air":  {Base: 40000, PerKg: 2500, ETADays: 4},
	"road": {Base: 15000, PerKg: 600, ETADays: 8},
}

// Static conversion rates to XOF, the quoting currency.
var fxRatesXOF = map[string]float64{
	"xof": 1, "eur": 655.957, "usd": 600, "gbp": 760, "mad": 60,
}

func notFound(message string) *errx.Error {
	return errx.NewKind(nil, errx.KindToolFailure, http.StatusNotFound, message)
}

// NewDemoRegistry registers the full capability set backed by in-memory
// demo data. Production deployments swap individual handlers for real
// service clients; the contracts stay identical.
func NewDemoRegistry() *Registry {
	reg := NewRegistry()
	for _, t := range []*Tool{
		trackingLookupTool(),
		podFetchTool(),
		invoicesListTool(),
		invoicePDFTool(),
		quoteComputeTool(),
		notifySubscribeTool(),
		ticketCreateTool(),
		currencyConvertTool(),
	} {
		if err := reg.Register(t); err != nil {
			// Registration only fails on programmer error (duplicate name).
			panic(err)
		}
	}
	return reg
}

func trackingLookupTool() *Tool {
	return &Tool{
		Name: ToolTrackingLookup,
		Desc: "Look up the current status of a shipment by tracking code.",
		Params: []Param{
			{Name: "tracking_code", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			s, ok := demoShipments[params["tracking_code"]]
			if !ok {
				return nil, notFound("aucune expédition trouvée pour ce numéro")
			}
			return map[string]any{
				"tracking_code": params["tracking_code"],
				"status":        s.Status,
				"location":      s.Location,
				"eta":           s.ETA,
			}, nil
		},
	}
}

func podFetchTool() *Tool {
	return &Tool{
		Name: ToolPODFetch,
		Desc: "Fetch the proof-of-delivery document for a delivered shipment.",
		Params: []Param{
			{Name: "tracking_code", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			code := params["tracking_code"]
			s, ok := demoShipments[code]
			if !ok {
				return nil, notFound("aucune expédition trouvée pour ce numéro")
			}
			if !s.Delivered {
				return nil, notFound("cette expédition n'est pas encore livrée")
			}
			return map[string]any{
				"tracking_code": code,
				"signed_by":     s.SignedBy,
				"delivered_at":  s.DeliveredAt,
				"url":           fmt.Sprintf("https://docs.nextmove.example/pod/%s.pdf", code),
			}, nil
		},
	}
}

func invoicesListTool() *Tool {
	return &Tool{
		Name: ToolInvoicesList,
		Desc: "List invoices for a customer account.",
		Params: []Param{
			{Name: "user_id", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			invs := demoInvoices[params["user_id"]]
			var total float64
			numbers := make([]string, 0, len(invs))
			for _, inv := range invs {
				total += inv.Amount
				numbers = append(numbers, inv.Number)
			}
			return map[string]any{
				"count":    len(invs),
				"total":    strconv.FormatFloat(total, 'f', 0, 64),
				"currency": "FCFA",
				"numbers":  numbers,
			}, nil
		},
	}
}

func invoicePDFTool() *Tool {
	return &Tool{
		Name: ToolInvoicePDF,
		Desc: "Return a download link for one invoice PDF.",
		Params: []Param{
			{Name: "invoice_number", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			n := params["invoice_number"]
			return map[string]any{
				"invoice_number": n,
				"url":            fmt.Sprintf("https://docs.nextmove.example/invoices/%s.pdf", n),
			}, nil
		},
	}
}

func quoteComputeTool() *Tool {
	return &Tool{
		Name: ToolQuoteCompute,
		Desc: "Compute a shipping quote between two cities.",
		Params: []Param{
			{Name: "origin", Type: "string", Required: true},
			{Name: "destination", Type: "string", Required: true},
			{Name: "weight_kg", Type: "number", Required: true},
			{Name: "volume_m3", Type: "number"},
			{Name: "transport_mode", Type: "string"},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			weight, err := strconv.ParseFloat(params["weight_kg"], 64)
			if err != nil || weight <= 0 {
				return nil, errx.NewKind(err, errx.KindToolFailure, http.StatusBadRequest, "poids invalide")
			}
			mode := params["transport_mode"]
			if mode == "" {
				mode = "sea"
			}
			rate, ok := quoteRates[mode]
			if !ok {
				return nil, notFound("mode de transport inconnu")
			}
			price := rate.Base + rate.PerKg*weight
			// Bulky but light cargo is billed on volume: 1 m³ counts as 250 kg.
			if v, err := strconv.ParseFloat(params["volume_m3"], 64); err == nil && v*250 > weight {
				price = rate.Base + rate.PerKg*v*250
			}
			return map[string]any{
				"origin":      params["origin"],
				"destination": params["destination"],
				"mode":        mode,
				"price":       strconv.FormatFloat(price, 'f', 0, 64),
				"currency":    "FCFA",
				"eta_days":    rate.ETADays,
			}, nil
		},
	}
}

func notifySubscribeTool() *Tool {
	return &Tool{
		Name: ToolNotifySubscribe,
		Desc: "Register a notification channel for a customer.",
		Params: []Param{
			{Name: "user_id", Type: "string", Required: true},
			{Name: "channel", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			return map[string]any{
				"channel": params["channel"],
				"active":  true,
			}, nil
		},
	}
}

func ticketCreateTool() *Tool {
	return &Tool{
		Name: ToolTicketCreate,
		Desc: "Open a human-support ticket.",
		Params: []Param{
			{Name: "user_id", Type: "string", Required: true},
			{Name: "department", Type: "string", Required: true},
			{Name: "urgency", Type: "string", Required: true},
			{Name: "summary", Type: "string"},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			return map[string]any{
				"ticket_id":  uuid.NewString(),
				"department": params["department"],
				"urgency":    params["urgency"],
			}, nil
		},
	}
}

func currencyConvertTool() *Tool {
	return &Tool{
		Name: ToolCurrencyConvert,
		Desc: "Convert an amount between supported currencies.",
		Params: []Param{
			{Name: "amount", Type: "number", Required: true},
			{Name: "from", Type: "string", Required: true},
			{Name: "to", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, params map[string]string) (map[string]any, error) {
			amount, err := strconv.ParseFloat(params["amount"], 64)
			if err != nil {
				return nil, errx.NewKind(err, errx.KindToolFailure, http.StatusBadRequest, "montant invalide")
			}
			from, okFrom := fxRatesXOF[params["from"]]
			to, okTo := fxRatesXOF[params["to"]]
			if !okFrom || !okTo {
				return nil, notFound("devise non supportée")
			}
			converted := amount * from / to
			return map[string]any{
				"amount":    converted,
				"currency":  params["to"],
				"rate_base": "XOF",
			}, nil
		},
	}
}
