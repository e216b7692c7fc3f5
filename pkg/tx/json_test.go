package tx

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

func TestTransaction_JSONRoundTrip(t *testing.T) {
	tx := testTx(t)
	tx.Fee = 1000
	tx.TxHash = tx.Hash()
	tx.Signatures = Signatures{tx.TxHash: {{Signer: types.Blake160{3}, Signature: make([]byte, 65)}}}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Transaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.Hash() != tx.Hash() {
		t.Error("hash changed across JSON round trip")
	}
	if back.Fee != 1000 || back.TxHash != tx.TxHash {
		t.Errorf("aux fields = %d %s", back.Fee, back.TxHash)
	}
	if back.Inputs[0].Capacity != tx.Inputs[0].Capacity || back.Inputs[0].Lock == nil {
		t.Error("input cache lost")
	}
	if len(back.Signatures[tx.TxHash]) != 1 {
		t.Error("signatures lost")
	}
}

func TestTransaction_MarshalRPC(t *testing.T) {
	tx := testTx(t)
	tx.Fee = 1000
	tx.Signatures = Signatures{{0x01}: nil}

	data, err := tx.MarshalRPC()
	if err != nil {
		t.Fatalf("MarshalRPC: %v", err)
	}
	s := string(data)
	for _, field := range []string{`"fee"`, `"signatures"`, `"0x4a817c800"`} {
		if strings.Contains(s, field) {
			t.Errorf("RPC form contains %s", field)
		}
	}
	if !strings.Contains(s, `"dep_type":"dep_group"`) || !strings.Contains(s, `"outputs_data":["0x"]`) {
		t.Errorf("RPC form = %s", s)
	}
}

func TestTransaction_UnmarshalOutputsDataMismatch(t *testing.T) {
	data := `{"version":"0x0","cell_deps":[],"header_deps":[],"inputs":[],"outputs":[{"capacity":"0x1","lock":{"code_hash":"0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8","hash_type":"type","args":"0x"},"type":null}],"outputs_data":[],"witnesses":[]}`
	var tx Transaction
	if err := json.Unmarshal([]byte(data), &tx); err == nil {
		t.Error("expected error for outputs_data mismatch")
	}
}
