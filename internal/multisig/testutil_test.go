package multisig

import (
	"testing"

	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/stretchr/testify/require"
)

// testKeys returns the keys with scalars 1, 2 and 3.
func testKeys(t *testing.T) []*crypto.PrivateKey {
	t.Helper()
	keys := make([]*crypto.PrivateKey, 3)
	for i := range keys {
		raw := make([]byte, 32)
		raw[31] = byte(i + 1)
		k, err := crypto.PrivateKeyFromBytes(raw)
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}

func blake160s(keys []*crypto.PrivateKey) []types.Blake160 {
	out := make([]types.Blake160, len(keys))
	for i, k := range keys {
		out[i] = k.Blake160()
	}
	return out
}

// testConfig is a 2-of-3 over testKeys.
func testConfig(t *testing.T) (*Config, []*crypto.PrivateKey) {
	t.Helper()
	keys := testKeys(t)
	cfg, err := NewConfig("w1", 2, 0, blake160s(keys))
	require.NoError(t, err)
	return cfg, keys
}

// multisigTx spends two cells of cfg's lock and one single-key cell.
func multisigTx(cfg *Config) *tx.Transaction {
	lock := cfg.LockScript()
	other := types.NewSecpScript(types.Blake160{0xaa})
	return &tx.Transaction{
		CellDeps: []tx.CellDep{{OutPoint: types.OutPoint{TxHash: types.Hash{0xde}, Index: 1}, DepType: tx.DepTypeDepGroup}},
		Inputs: []tx.Input{
			{PreviousOutput: types.OutPoint{TxHash: types.Hash{1}}, Capacity: 300 * tx.ShannonsPerCKB, Lock: &lock},
			{PreviousOutput: types.OutPoint{TxHash: types.Hash{2}}, Capacity: 100 * tx.ShannonsPerCKB, Lock: &other},
			{PreviousOutput: types.OutPoint{TxHash: types.Hash{3}}, Capacity: 200 * tx.ShannonsPerCKB, Lock: &lock},
		},
		Outputs: []tx.Output{
			{Capacity: 599 * tx.ShannonsPerCKB, Lock: other},
		},
		Witnesses: [][]byte{{}, {}, {}},
	}
}

// signAs signs the multisig group of t with key.
func signAs(t *testing.T, coord *Coordinator, transaction *tx.Transaction, cfg *Config, key *crypto.PrivateKey) []byte {
	t.Helper()
	msg, err := coord.Message(transaction, cfg.LockHash())
	require.NoError(t, err)
	sig, err := key.Sign(msg[:])
	require.NoError(t, err)
	return sig
}
