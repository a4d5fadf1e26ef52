// Package parser maps raw fiscal document payloads to structured fields.
// Parsing is pure: no I/O, no clock, no state.
package parser

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"fiscalsync/internal/store"
)

// Fields is the closed set of per-family parse results. Using a tagged
// variant instead of an open map makes missing-field handling explicit.
type Fields interface {
	isFields()
}

// InvoiceFields are the denormalized fields of an electronic service invoice.
type InvoiceFields struct {
	EmitterTaxID   string
	EmitterName    string
	RecipientTaxID string
	RecipientName  string
	AmountCents    int64
	Description    string
	Cancelled      bool
}

func (InvoiceFields) isFields() {}

// WaybillFields are the denormalized fields of a freight waybill.
type WaybillFields struct {
	EmitterTaxID   string
	EmitterName    string
	RecipientTaxID string
	RecipientName  string
	FreightCents   int64
	OriginCity     string
	DestCity       string
	Cancelled      bool
}

func (WaybillFields) isFields() {}

// Parsed is the parser output: the document's natural key, its issue
// date and the family-specific fields.
type Parsed struct {
	AccessKey string
	IssuedAt  time.Time
	Fields    Fields
}

type party struct {
	TaxID string `xml:"taxId"`
	Name  string `xml:"name"`
}

type invoiceXML struct {
	AccessKey   string `xml:"accessKey"`
	IssuedAt    string `xml:"issuedAt"`
	Emitter     party  `xml:"emitter"`
	Recipient   party  `xml:"recipient"`
	Amount      string `xml:"serviceAmount"`
	Description string `xml:"serviceDescription"`
	Status      string `xml:"status"`
}

type waybillXML struct {
	AccessKey string `xml:"accessKey"`
	IssuedAt  string `xml:"issuedAt"`
	Emitter   party  `xml:"emitter"`
	Recipient party  `xml:"recipient"`
	Freight   string `xml:"freightAmount"`
	Origin    string `xml:"originCity"`
	Dest      string `xml:"destinationCity"`
	Status    string `xml:"status"`
}

// Parse maps a raw payload to its structured fields. The family comes
// from the job, not from sniffing the payload.
func Parse(family store.DocumentFamily, payload []byte) (*Parsed, error) {
	switch family {
	case store.FamilyInvoices:
		return parseInvoice(payload)
	case store.FamilyWaybills:
		return parseWaybill(payload)
	default:
		return nil, fmt.Errorf("unknown document family %q", family)
	}
}

func parseInvoice(payload []byte) (*Parsed, error) {
	var doc invoiceXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("malformed invoice payload: %w", err)
	}

	key, err := normalizeAccessKey(doc.AccessKey)
	if err != nil {
		return nil, err
	}

	issuedAt, err := parseDate(doc.IssuedAt)
	if err != nil {
		return nil, err
	}

	cents, err := parseAmountCents(doc.Amount)
	if err != nil {
		return nil, err
	}

	return &Parsed{
		AccessKey: key,
		IssuedAt:  issuedAt,
		Fields: InvoiceFields{
			EmitterTaxID:   strings.TrimSpace(doc.Emitter.TaxID),
			EmitterName:    strings.TrimSpace(doc.Emitter.Name),
			RecipientTaxID: strings.TrimSpace(doc.Recipient.TaxID),
			RecipientName:  strings.TrimSpace(doc.Recipient.Name),
			AmountCents:    cents,
			Description:    strings.TrimSpace(doc.Description),
			Cancelled:      isCancelled(doc.Status),
		},
	}, nil
}

func parseWaybill(payload []byte) (*Parsed, error) {
	var doc waybillXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("malformed waybill payload: %w", err)
	}

	key, err := normalizeAccessKey(doc.AccessKey)
	if err != nil {
		return nil, err
	}

	issuedAt, err := parseDate(doc.IssuedAt)
	if err != nil {
		return nil, err
	}

	cents, err := parseAmountCents(doc.Freight)
	if err != nil {
		return nil, err
	}

	return &Parsed{
		AccessKey: key,
		IssuedAt:  issuedAt,
		Fields: WaybillFields{
			EmitterTaxID:   strings.TrimSpace(doc.Emitter.TaxID),
			EmitterName:    strings.TrimSpace(doc.Emitter.Name),
			RecipientTaxID: strings.TrimSpace(doc.Recipient.TaxID),
			RecipientName:  strings.TrimSpace(doc.Recipient.Name),
			FreightCents:   cents,
			OriginCity:     strings.TrimSpace(doc.Origin),
			DestCity:       strings.TrimSpace(doc.Dest),
			Cancelled:      isCancelled(doc.Status),
		},
	}, nil
}

// Access keys are 44 to 60 digit strings.
const (
	accessKeyMinLen = 44
	accessKeyMaxLen = 60
)

func normalizeAccessKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if len(key) < accessKeyMinLen || len(key) > accessKeyMaxLen {
		return "", fmt.Errorf("access key has invalid length %d", len(key))
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("access key contains non-digit character %q", r)
		}
	}
	return key, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable issue date %q", raw)
}

// parseAmountCents converts a decimal string like "1234.56" to cents
// without going through floating point.
func parseAmountCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	neg := false
	if strings.HasPrefix(raw, "-") {
		neg = true
		raw = raw[1:]
	}

	whole, frac, _ := strings.Cut(raw, ".")
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var cents int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("unparseable amount %q", raw)
		}
		cents = cents*10 + int64(r-'0')
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

func isCancelled(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "cancelada", "cancelado":
		return true
	}
	return false
}

// ToDocument flattens a parse result into the persisted document shape.
func ToDocument(p *Parsed, family store.DocumentFamily) store.Document {
	doc := store.Document{
		Family:    family,
		AccessKey: p.AccessKey,
		IssuedAt:  p.IssuedAt,
		Status:    store.DocumentStatusValid,
	}

	switch f := p.Fields.(type) {
	case InvoiceFields:
		doc.EmitterTaxID = f.EmitterTaxID
		doc.EmitterName = f.EmitterName
		doc.RecipientTaxID = f.RecipientTaxID
		doc.RecipientName = f.RecipientName
		doc.AmountCents = f.AmountCents
		if f.Cancelled {
			doc.Status = store.DocumentStatusCancelled
		}
	case WaybillFields:
		doc.EmitterTaxID = f.EmitterTaxID
		doc.EmitterName = f.EmitterName
		doc.RecipientTaxID = f.RecipientTaxID
		doc.RecipientName = f.RecipientName
		doc.AmountCents = f.FreightCents
		if f.Cancelled {
			doc.Status = store.DocumentStatusCancelled
		}
	}
	return doc
}
