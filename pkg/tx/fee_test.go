package tx

import "testing"

func TestFeeForSize(t *testing.T) {
	tests := []struct {
		name    string
		size    uint64
		feeRate uint64
		want    uint64
	}{
		{"zero rate", 355, 0, 0},
		{"exact multiple", 1000, 1000, 1000},
		{"rounds up", 355, 1000, 355},
		{"fractional rounds up", 355, 1, 1},
		{"rate 1500", 464, 1500, 696},
		{"rate 1001", 999, 1001, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FeeForSize(tt.size, tt.feeRate)
			if err != nil {
				t.Fatalf("FeeForSize: %v", err)
			}
			if got != tt.want {
				t.Errorf("FeeForSize(%d, %d) = %d, want %d", tt.size, tt.feeRate, got, tt.want)
			}
		})
	}
}

func TestFeeForSize_Overflow(t *testing.T) {
	if _, err := FeeForSize(^uint64(0), ^uint64(0)); err == nil {
		t.Error("expected overflow error")
	}
}

func TestRequiredFee(t *testing.T) {
	tx := testTx(t)
	fee, err := RequiredFee(tx, 1000)
	if err != nil {
		t.Fatalf("RequiredFee: %v", err)
	}
	if fee != tx.SerializedSize() {
		t.Errorf("RequiredFee at 1000 = %d, want size %d", fee, tx.SerializedSize())
	}
}
