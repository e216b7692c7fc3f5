package rpcclient

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

func TestClient_GetCells(t *testing.T) {
	f, client := newFakeNode(t)
	f.handle("get_cells", func(json.RawMessage) (any, *rpcError) {
		return json.RawMessage(`{
			"objects": [{
				"output": {
					"capacity": "0x1a13b8600",
					"lock": {"code_hash": "0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8", "hash_type": "type", "args": "0x196f6c1f21f7dbf0df814539b840059facbafc24"},
					"type": null
				},
				"output_data": "0x",
				"out_point": {"tx_hash": "0x1111111111111111111111111111111111111111111111111111111111111111", "index": "0x1"},
				"block_number": "0x10",
				"tx_index": "0x1"
			}],
			"last_cursor": "0xabcd"
		}`), nil
	})

	lock := types.NewSecpScript(types.MustHexToBlake160("0x196f6c1f21f7dbf0df814539b840059facbafc24"))
	page, err := client.GetCells(context.Background(), lock, 0, "")
	if err != nil {
		t.Fatalf("GetCells error: %v", err)
	}
	if len(page.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(page.Objects))
	}
	cell := page.Objects[0]
	if uint64(cell.Output.Capacity) != 70*100_000_000 {
		t.Errorf("capacity = %d", cell.Output.Capacity)
	}
	if cell.OutPoint.Index != 1 || uint64(cell.BlockNumber) != 16 {
		t.Errorf("out point = %s, block = %d", cell.OutPoint, cell.BlockNumber)
	}
	if page.LastCursor != "0xabcd" {
		t.Errorf("cursor = %q", page.LastCursor)
	}

	raw := f.rawSeen[0]
	if !strings.Contains(raw, `"script_type":"lock"`) || !strings.HasSuffix(raw, `"asc","0x64",null]`) {
		t.Errorf("params = %s", raw)
	}

	if _, err := client.GetCells(context.Background(), lock, 10, "0xabcd"); err != nil {
		t.Fatalf("GetCells error: %v", err)
	}
	if raw := f.rawSeen[1]; !strings.HasSuffix(raw, `"asc","0xa","0xabcd"]`) {
		t.Errorf("params = %s", raw)
	}
}
