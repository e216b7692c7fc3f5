package wallet

import (
	"testing"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/tyler-smith/go-bip32"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []uint32
	}{
		{"m", []uint32{}},
		{"m/0", []uint32{0}},
		{"m/44'/309'/0'/0/3", []uint32{PurposeBIP44, CoinTypeCKB, bip32.FirstHardenedChild, 0, 3}},
		{"m/44h/309H/1'", []uint32{PurposeBIP44, CoinTypeCKB, bip32.FirstHardenedChild + 1}},
		{"m/2147483647", []uint32{2147483647}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePath() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	tests := []string{
		"",
		"44'/309'",
		"M/44'",
		"m/",
		"m//0",
		"m/abc",
		"m/-1",
		"m/+1",
		"m/2147483648",
		"m/0''",
		"m/1.5",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, err := ParsePath(path)
			if !txerr.IsKind(err, txerr.InvalidPath) {
				t.Errorf("ParsePath(%q) error = %v, want InvalidPath", path, err)
			}
		})
	}
}

func TestFormatPath_RoundTrip(t *testing.T) {
	for _, path := range []string{"m", "m/44'/309'/0'/0/3", "m/0/1/2", ReceivingPath(7), ChangePath(2)} {
		indices, err := ParsePath(path)
		if err != nil {
			t.Fatalf("ParsePath(%q) error: %v", path, err)
		}
		if got := FormatPath(indices); got != path {
			t.Errorf("FormatPath(ParsePath(%q)) = %q", path, got)
		}
	}
}

func TestAddressPaths(t *testing.T) {
	if got := ReceivingPath(3); got != "m/44'/309'/0'/0/3" {
		t.Errorf("ReceivingPath(3) = %s", got)
	}
	if got := ChangePath(0); got != "m/44'/309'/0'/1/0" {
		t.Errorf("ChangePath(0) = %s", got)
	}
}
