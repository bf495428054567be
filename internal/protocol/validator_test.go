package protocol

import (
	goerrors "errors"
	"strings"
	"testing"

	"github.com/joshuafuller/beacon/internal/errors"
)

func TestValidateNameAccepts(t *testing.T) {
	names := []string{
		"test.local",
		"_http._tcp.local",
		"my-device.local",
		"a.b.c.d.local",
		"localhost",
		strings.Repeat("a", 63) + ".local", // label exactly at the limit
	}
	for _, name := range names {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q): unexpected error: %v", name, err)
		}
	}
}

func TestValidateNameRejects(t *testing.T) {
	names := []string{
		"",
		strings.Repeat("a", 64) + ".local", // label over the limit
		"test host.local",
		"test/host.local",
		"-test.local",
		"test-.local",
		"test..local",
	}
	for _, name := range names {
		err := ValidateName(name)
		if err == nil {
			t.Errorf("ValidateName(%q): expected error, got nil", name)
			continue
		}
		var ve *errors.ValidationError
		if !goerrors.As(err, &ve) {
			t.Errorf("ValidateName(%q): expected *errors.ValidationError, got %T", name, err)
		}
	}
}

func TestValidateNameEnforces255ByteWireLimit(t *testing.T) {
	label63 := strings.Repeat("a", 63)

	fits := label63 + "." + label63 + "." + label63 + "." + strings.Repeat("d", 61) // 255 wire bytes
	if err := ValidateName(fits); err != nil {
		t.Errorf("255-byte name should pass: %v", err)
	}

	overflows := label63 + "." + label63 + "." + label63 + "." + strings.Repeat("e", 62) // 256 wire bytes
	if err := ValidateName(overflows); err == nil {
		t.Error("256-byte name should fail")
	}
}

func TestValidateRecordType(t *testing.T) {
	tests := []struct {
		recordType uint16
		wantErr    bool
	}{
		{uint16(RecordTypeA), false},
		{uint16(RecordTypeAAAA), false},
		{uint16(RecordTypeCNAME), false},
		{uint16(RecordTypePTR), false},
		{uint16(RecordTypeTXT), false},
		{uint16(RecordTypeSRV), false},
		{uint16(RecordTypeOPT), false},
		{uint16(RecordTypeNSEC), false},
		{uint16(RecordTypeANY), false},
		{15, true},  // MX: not a type this node decodes
		{999, true}, // unassigned
	}

	for _, tt := range tests {
		err := ValidateRecordType(tt.recordType)
		if tt.wantErr && err == nil {
			t.Errorf("ValidateRecordType(%d): expected error, got nil", tt.recordType)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ValidateRecordType(%d): unexpected error: %v", tt.recordType, err)
		}
		if tt.wantErr {
			var ve *errors.ValidationError
			if !goerrors.As(err, &ve) || ve.Field != "recordType" {
				t.Errorf("ValidateRecordType(%d): expected ValidationError on field recordType, got %v", tt.recordType, err)
			}
		}
	}
}

func TestValidateResponseAcceptsWellFormedFlags(t *testing.T) {
	flags := []uint16{
		0x8000, // QR=1, OPCODE=0, RCODE=0
		0x8400, // QR=1, AA=1, RCODE=0
	}
	for _, f := range flags {
		if err := ValidateResponse(f); err != nil {
			t.Errorf("ValidateResponse(%#04x): unexpected error: %v", f, err)
		}
	}
}

func TestValidateResponseRejectsNonResponseOrError(t *testing.T) {
	tests := []struct {
		name  string
		flags uint16
	}{
		{"QR=0 (a query, not a response)", 0x0000},
		{"RCODE=1 (format error)", 0x8001},
		{"RCODE=2 (server failure)", 0x8002},
		{"RCODE=3 (name error)", 0x8003},
		{"OPCODE=1 (inverse query)", 0x8800},
		{"OPCODE=2 (status)", 0x9000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.flags)
			if err == nil {
				t.Fatalf("ValidateResponse(%#04x): expected error, got nil", tt.flags)
			}
			var ve *errors.ValidationError
			if !goerrors.As(err, &ve) {
				t.Errorf("expected *errors.ValidationError, got %T", err)
			}
		})
	}
}
