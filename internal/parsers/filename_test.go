package parsers

import (
	"errors"
	"testing"
	"time"

	"monotributo-control/internal/models"
)

func TestParseExportFilename(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantKind   models.ExportKind
		wantCUIT   int64
		wantClient string
		wantReason FilenameReason
	}{
		{
			name:       "emitted export",
			path:       "descargas/20374730429_X/extraido/9 - MCE - 01012025 - 31122025 - 20374730429 - BUSTOS PIASENTINI AGUSTIN.csv",
			wantKind:   models.ExportKindEmitted,
			wantCUIT:   20374730429,
			wantClient: "BUSTOS PIASENTINI AGUSTIN",
		},
		{
			name:       "received export",
			path:       "9 - MCR - 01012025 - 31122025 - 20374730429 - ACME.csv",
			wantKind:   models.ExportKindReceived,
			wantCUIT:   20374730429,
			wantClient: "ACME",
		},
		{
			name:       "client name with hyphen",
			path:       "3 - MCE - 01012025 - 31012025 - 27111111112 - GARCIA-LOPEZ MARIA.csv",
			wantKind:   models.ExportKindEmitted,
			wantCUIT:   27111111112,
			wantClient: "GARCIA-LOPEZ MARIA",
		},
		{
			name:       "too few tokens",
			path:       "9 - MCE - 01012025 - 20374730429.csv",
			wantReason: ReasonTooFewTokens,
		},
		{
			name:       "CUIT with letters",
			path:       "9 - MCE - 01012025 - 31122025 - ABC - ACME.csv",
			wantReason: ReasonInvalidCUIT,
		},
		{
			name:       "unknown kind",
			path:       "9 - XYZ - 01012025 - 31122025 - 20374730429 - ACME.csv",
			wantReason: ReasonUnknownKind,
		},
		{
			name:       "bad date",
			path:       "9 - MCE - 2025 - 31122025 - 20374730429 - ACME.csv",
			wantReason: ReasonInvalidDate,
		},
		{
			name:       "wrong extension",
			path:       "9 - MCE - 01012025 - 31122025 - 20374730429 - ACME.zip",
			wantReason: ReasonBadExtension,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExportFilename(tt.path)

			if tt.wantReason != "" {
				var fe *FilenameError
				if !errors.As(err, &fe) {
					t.Fatalf("expected FilenameError, got %v", err)
				}
				if fe.Reason != tt.wantReason {
					t.Errorf("expected reason %s, got %s", tt.wantReason, fe.Reason)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, got.Kind)
			}
			if got.CUIT != tt.wantCUIT {
				t.Errorf("expected CUIT %d, got %d", tt.wantCUIT, got.CUIT)
			}
			if got.ClientName != tt.wantClient {
				t.Errorf("expected client %q, got %q", tt.wantClient, got.ClientName)
			}
		})
	}
}

func TestParseExportFilenameDates(t *testing.T) {
	got, err := ParseExportFilename("1 - MCE - 15012025 - 28022025 - 20374730429 - ACME.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.From.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected from date %v", got.From)
	}
	if !got.To.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected to date %v", got.To)
	}
	if got.Sequence != "1" {
		t.Errorf("unexpected sequence %q", got.Sequence)
	}
}

func TestParseMetadataFilename(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantCUIT   int64
		wantClient string
		wantNumber int64
		hasNumber  bool
		wantErr    bool
	}{
		{
			name:       "full name",
			path:       "descargas_rcel/20374730429_BUSTOS PIASENTINI AGUSTIN/20374730429-11-2-15.json",
			wantCUIT:   20374730429,
			wantClient: "BUSTOS PIASENTINI AGUSTIN",
			wantNumber: 15,
			hasNumber:  true,
		},
		{
			name:       "underscore in client name splits once",
			path:       "rcel/20374730429_ACME_SRL/20374730429-11-2-15.json",
			wantCUIT:   20374730429,
			wantClient: "ACME_SRL",
			wantNumber: 15,
			hasNumber:  true,
		},
		{
			name:       "directory without underscore",
			path:       "rcel/ACME/20374730429.json",
			wantCUIT:   20374730429,
			wantClient: "ACME",
		},
		{
			name:    "CUIT not numeric",
			path:    "rcel/ACME/factura-11-2-15.json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetadataFilename(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetadataFilename() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.CUIT != tt.wantCUIT {
				t.Errorf("expected CUIT %d, got %d", tt.wantCUIT, got.CUIT)
			}
			if got.ClientName != tt.wantClient {
				t.Errorf("expected client %q, got %q", tt.wantClient, got.ClientName)
			}
			if tt.hasNumber {
				if got.Number == nil || *got.Number != tt.wantNumber {
					t.Errorf("expected number %d, got %v", tt.wantNumber, got.Number)
				}
			} else if got.Number != nil {
				t.Errorf("expected no number, got %d", *got.Number)
			}
		})
	}
}
