package parser

import (
	"strings"
	"testing"
	"time"

	"fiscalsync/internal/store"
)

var validKey = strings.Repeat("4", 44)

func invoicePayload(key, issuedAt, amount, status string) []byte {
	return []byte(`<invoice>
		<accessKey>` + key + `</accessKey>
		<issuedAt>` + issuedAt + `</issuedAt>
		<emitter><taxId>11222333000181</taxId><name>Serviços Gerais Ltda</name></emitter>
		<recipient><taxId>99888777000166</taxId><name>Cliente SA</name></recipient>
		<serviceAmount>` + amount + `</serviceAmount>
		<serviceDescription>Consultoria</serviceDescription>
		<status>` + status + `</status>
	</invoice>`)
}

func waybillPayload(key string) []byte {
	return []byte(`<waybill>
		<accessKey>` + key + `</accessKey>
		<issuedAt>2026-02-10</issuedAt>
		<emitter><taxId>11222333000181</taxId><name>Transportadora X</name></emitter>
		<recipient><taxId>99888777000166</taxId><name>Destinatária Y</name></recipient>
		<freightAmount>850.00</freightAmount>
		<originCity>Campinas</originCity>
		<destinationCity>Santos</destinationCity>
		<status>authorized</status>
	</waybill>`)
}

func TestParseInvoice_Success(t *testing.T) {
	p, err := Parse(store.FamilyInvoices, invoicePayload(validKey, "2026-01-15T10:30:00-03:00", "1234.56", "authorized"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if p.AccessKey != validKey {
		t.Errorf("got access key %q, want %q", p.AccessKey, validKey)
	}
	if p.IssuedAt.UTC().Format("2006-01-02") != "2026-01-15" {
		t.Errorf("got issue date %v, want 2026-01-15", p.IssuedAt)
	}

	f, ok := p.Fields.(InvoiceFields)
	if !ok {
		t.Fatalf("expected InvoiceFields, got %T", p.Fields)
	}
	if f.AmountCents != 123456 {
		t.Errorf("got amount %d cents, want 123456", f.AmountCents)
	}
	if f.EmitterName != "Serviços Gerais Ltda" {
		t.Errorf("got emitter %q", f.EmitterName)
	}
	if f.Cancelled {
		t.Error("authorized invoice should not be cancelled")
	}
}

func TestParseInvoice_Cancelled(t *testing.T) {
	p, err := Parse(store.FamilyInvoices, invoicePayload(validKey, "2026-01-15", "10.00", "CANCELADA"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !p.Fields.(InvoiceFields).Cancelled {
		t.Error("expected cancelled invoice")
	}

	doc := ToDocument(p, store.FamilyInvoices)
	if doc.Status != store.DocumentStatusCancelled {
		t.Errorf("got doc status %v, want cancelled", doc.Status)
	}
}

func TestParseWaybill_Success(t *testing.T) {
	p, err := Parse(store.FamilyWaybills, waybillPayload(validKey))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	f, ok := p.Fields.(WaybillFields)
	if !ok {
		t.Fatalf("expected WaybillFields, got %T", p.Fields)
	}
	if f.FreightCents != 85000 {
		t.Errorf("got freight %d cents, want 85000", f.FreightCents)
	}
	if f.OriginCity != "Campinas" || f.DestCity != "Santos" {
		t.Errorf("got route %s -> %s", f.OriginCity, f.DestCity)
	}

	doc := ToDocument(p, store.FamilyWaybills)
	if doc.AmountCents != 85000 {
		t.Errorf("got doc amount %d, want 85000", doc.AmountCents)
	}
	if doc.Status != store.DocumentStatusValid {
		t.Errorf("got doc status %v, want valid", doc.Status)
	}
}

func TestParse_MalformedPayload(t *testing.T) {
	if _, err := Parse(store.FamilyInvoices, []byte("not xml at all <<<")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestParse_UnknownFamily(t *testing.T) {
	if _, err := Parse(store.DocumentFamily("receipts"), invoicePayload(validKey, "2026-01-15", "1.00", "ok")); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestNormalizeAccessKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid 44 digits", strings.Repeat("1", 44), false},
		{"valid 60 digits", strings.Repeat("2", 60), false},
		{"surrounding whitespace", "  " + strings.Repeat("3", 44) + "  ", false},
		{"too short", strings.Repeat("1", 43), true},
		{"too long", strings.Repeat("1", 61), true},
		{"non-digit", strings.Repeat("1", 43) + "x", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalizeAccessKey(tt.key)
			if tt.wantErr && err == nil {
				t.Errorf("expected error for %q", tt.key)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for %q: %v", tt.key, err)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-01-15T10:30:00-03:00")
	if err != nil {
		t.Fatalf("parseDate failed: %v", err)
	}
	want := time.Date(2026, 1, 15, 13, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := parseDate("15/01/2026"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}

func TestParseAmountCents(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1234.56", 123456, false},
		{"1234.5", 123450, false},
		{"1234", 123400, false},
		{"0.01", 1, false},
		{"-10.00", -1000, false},
		{"", 0, false},
		{"1234.567", 123456, false},
		{"abc", 0, true},
		{"12,34", 0, true},
	}

	for _, tt := range tests {
		got, err := parseAmountCents(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseAmountCents(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAmountCents(%q) failed: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAmountCents(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
