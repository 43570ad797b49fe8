package matcher

import (
	"errors"
	"testing"

	"monotributo-control/internal/models"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name    string
		cuit    int64
		docType int
		pos     int
		number  int64
		want    models.CompositeKey
		wantErr error
	}{
		{
			name:    "padded components",
			cuit:    20374730429,
			docType: 11,
			pos:     2,
			number:  15,
			want:    "20374730429-011-00002-00000015",
		},
		{
			name:    "full width components",
			cuit:    30712345678,
			docType: 999,
			pos:     99999,
			number:  99999999,
			want:    "30712345678-999-99999-99999999",
		},
		{
			name:    "zero components",
			cuit:    20374730429,
			docType: 0,
			pos:     0,
			number:  0,
			want:    "20374730429-000-00000-00000000",
		},
		{
			name:    "document type too wide",
			cuit:    20374730429,
			docType: 1000,
			pos:     1,
			number:  1,
			wantErr: ErrKeyOverflow,
		},
		{
			name:    "point of sale too wide",
			cuit:    20374730429,
			docType: 11,
			pos:     100000,
			number:  1,
			wantErr: ErrKeyOverflow,
		},
		{
			name:    "number too wide",
			cuit:    20374730429,
			docType: 11,
			pos:     1,
			number:  100000000,
			wantErr: ErrKeyOverflow,
		},
		{
			name:    "negative number",
			cuit:    20374730429,
			docType: 11,
			pos:     1,
			number:  -1,
			wantErr: ErrKeyOverflow,
		},
		{
			name:    "missing CUIT",
			cuit:    0,
			docType: 11,
			pos:     1,
			number:  1,
			wantErr: ErrKeyOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildKey(tt.cuit, tt.docType, tt.pos, tt.number)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if got != "" {
					t.Errorf("expected no key on error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	cuits := []int64{20374730429, 27111111112, 1}
	types := []int{0, 1, 11, 213, 999}
	positions := []int{0, 2, 4021, 99999}
	numbers := []int64{0, 15, 1234567, 99999999}

	for _, cuit := range cuits {
		for _, docType := range types {
			for _, pos := range positions {
				for _, number := range numbers {
					want := KeyParts{CUIT: cuit, DocumentType: docType, PointOfSale: pos, Number: number}
					key, err := want.Build()
					if err != nil {
						t.Fatalf("BuildKey(%+v) failed: %v", want, err)
					}
					got, err := ParseKey(key.String())
					if err != nil {
						t.Fatalf("ParseKey(%s) failed: %v", key, err)
					}
					if got != want {
						t.Fatalf("round trip of %s: expected %+v, got %+v", key, want, got)
					}
				}
			}
		}
	}
}

func TestParseKey_Invalid(t *testing.T) {
	tests := []string{
		"",
		"20374730429-011-00002",
		"20374730429-11-00002-00000015",
		"20374730429-011-0002-00000015",
		"20374730429-011-00002-0000015",
		"20374730429-0a1-00002-00000015",
		"X-011-00002-00000015",
		"0-011-00002-00000015",
		"20374730429-011-00002-00000015-1",
		"20374730429-+11-00002-00000015",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseKey(input); !errors.Is(err, ErrKeyFormat) {
				t.Errorf("expected ErrKeyFormat for %q, got %v", input, err)
			}
		})
	}
}

func TestRecordAndMetadataKeysAgree(t *testing.T) {
	record := &models.InvoiceRecord{OwnerCUIT: 20374730429, DocumentType: 11, PointOfSale: 2, NumberFrom: 15, NumberTo: 15}
	meta := &models.InvoiceMetadata{OwnerCUIT: 20374730429, DocumentType: 11, PointOfSale: 2, Number: 15}

	rk, err := RecordKey(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mk, err := MetadataKey(meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rk != mk {
		t.Errorf("expected equal keys, got %s and %s", rk, mk)
	}
}
