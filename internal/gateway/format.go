package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// GenericSuccessMessage is used when a response has no recognizable shape.
const GenericSuccessMessage = "Your request was processed successfully."

// integrationEndpoints is the closed set of read-style ERP queries.
var integrationEndpoints = map[string]string{
	"invoice_lookup":    "/api/invoices/search",
	"duplicate_invoice": "/api/invoices/duplicate",
	"customer_lookup":   "/api/customers/search",
	"order_status":      "/api/orders/status",
}

// Actions lists the integration actions the gateway knows, sorted.
func Actions() []string {
	out := make([]string, 0, len(integrationEndpoints))
	for name := range integrationEndpoints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type formatter func(map[string]any) (string, bool)

var formatters = map[string]formatter{
	"invoice_lookup":    formatInvoice,
	"duplicate_invoice": formatDuplicate,
	"customer_lookup":   formatCustomer,
	"order_status":      formatOrder,
}

func formatResponse(action string, payload map[string]any) string {
	if payload == nil {
		return GenericSuccessMessage
	}
	if f, ok := formatters[action]; ok {
		if msg, ok := f(payload); ok {
			return msg
		}
	}
	return GenericSuccessMessage
}

func formatInvoice(p map[string]any) (string, bool) {
	inv := nested(p, "invoice", "data")
	number := str(inv, "number", "invoice_number", "id")
	amount := str(inv, "amount", "total", "value")
	if number == "" || amount == "" {
		return "", false
	}
	msg := fmt.Sprintf("Invoice %s: amount %s", number, amount)
	if due := str(inv, "due_date", "dueDate"); due != "" {
		msg += fmt.Sprintf(", due on %s", due)
	}
	if status := str(inv, "status"); status != "" {
		msg += fmt.Sprintf(" (%s)", status)
	}
	return msg + ".", true
}

func formatDuplicate(p map[string]any) (string, bool) {
	d := nested(p, "invoice", "data")
	link := str(d, "url", "link", "pdf_url")
	barcode := str(d, "barcode", "digitable_line")
	if link == "" && barcode == "" {
		return "", false
	}
	var lines []string
	lines = append(lines, "Here is your duplicate invoice.")
	if link != "" {
		lines = append(lines, "Link: "+link)
	}
	if barcode != "" {
		lines = append(lines, "Barcode: "+barcode)
	}
	return strings.Join(lines, "\n"), true
}

func formatCustomer(p map[string]any) (string, bool) {
	c := nested(p, "customer", "data")
	name := str(c, "name", "full_name")
	if name == "" {
		return "", false
	}
	msg := "Customer: " + name
	if status := str(c, "status"); status != "" {
		msg += fmt.Sprintf(" (%s)", status)
	}
	return msg + ".", true
}

func formatOrder(p map[string]any) (string, bool) {
	o := nested(p, "order", "data")
	id := str(o, "order_id", "id", "number")
	status := str(o, "status")
	if id == "" || status == "" {
		return "", false
	}
	msg := fmt.Sprintf("Order %s: %s", id, status)
	if eta := str(o, "estimated_delivery", "eta"); eta != "" {
		msg += fmt.Sprintf(", estimated delivery %s", eta)
	}
	return msg + ".", true
}

// nested returns the first object found under one of keys, or p itself.
func nested(p map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := p[k].(map[string]any); ok {
			return m
		}
	}
	return p
}

// str returns the first non-empty value under keys, rendered as text.
func str(p map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			if t == float64(int64(t)) {
				return fmt.Sprintf("%d", int64(t))
			}
			return fmt.Sprintf("%.2f", t)
		case bool:
			return fmt.Sprintf("%t", t)
		}
	}
	return ""
}
