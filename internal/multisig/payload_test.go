package multisig

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_RoundTrip(t *testing.T) {
	cfg, keys := testConfig(t)
	coord := NewCoordinator(cfg)
	transaction := multisigTx(cfg)
	transaction.Description = "payroll"
	coord.AddSignature(transaction, cfg.LockHash(), keys[0].Blake160(), signAs(t, coord, transaction, cfg, keys[0]))

	p, err := NewPayload(transaction, coord)
	require.NoError(t, err)
	require.Len(t, p.Configs, 1)
	assert.Len(t, p.Checksum, 64)

	data, err := p.Marshal()
	require.NoError(t, err)

	imported, err := ImportPayload(data)
	require.NoError(t, err)
	assert.Equal(t, transaction.Hash(), imported.Transaction.Hash())
	assert.Equal(t, "payroll", imported.Transaction.Description)
	assert.Equal(t, transaction.Signatures, imported.Transaction.Signatures)
	assert.Equal(t, cfg.LockHash(), imported.Configs[0].LockHash())

	// The imported session can finish signing.
	icoord := imported.Coordinator()
	state, err := icoord.AddSignature(imported.Transaction, cfg.LockHash(), keys[1].Blake160(),
		signAs(t, icoord, imported.Transaction, cfg, keys[1]))
	require.NoError(t, err)
	assert.Equal(t, Signed, state)
}

func TestPayload_Tampered(t *testing.T) {
	cfg, _ := testConfig(t)
	coord := NewCoordinator(cfg)
	p, err := NewPayload(multisigTx(cfg), coord)
	require.NoError(t, err)
	data, err := p.Marshal()
	require.NoError(t, err)

	// 599 CKB -> 699 CKB on the output.
	tampered := bytes.Replace(data, []byte(`"0xdf2517700"`), []byte(`"0x10465d5b00"`), 1)
	require.NotEqual(t, data, tampered)

	_, err = ImportPayload(tampered)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestImportPayload_RejectsBadSignatures(t *testing.T) {
	cfg, keys := testConfig(t)
	coord := NewCoordinator(cfg)
	lockHash := cfg.LockHash()

	for _, tc := range []struct {
		name  string
		alter func(transaction *tx.Transaction)
	}{
		{"corrupted signature", func(transaction *tx.Transaction) {
			transaction.Signatures[lockHash][0].Signature[10] ^= 0xff
		}},
		{"claimed by another signer", func(transaction *tx.Transaction) {
			transaction.Signatures[lockHash][0].Signer = keys[1].Blake160()
		}},
		{"signer outside the config", func(transaction *tx.Transaction) {
			transaction.Signatures[lockHash][0].Signer = types.Blake160{0x77}
		}},
		{"duplicate signer", func(transaction *tx.Transaction) {
			transaction.Signatures[lockHash] = append(transaction.Signatures[lockHash], transaction.Signatures[lockHash][0])
		}},
		{"unknown lock", func(transaction *tx.Transaction) {
			transaction.Signatures[types.Hash{0x42}] = transaction.Signatures[lockHash]
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			transaction := multisigTx(cfg)
			_, err := coord.AddSignature(transaction, lockHash, keys[0].Blake160(), signAs(t, coord, transaction, cfg, keys[0]))
			require.NoError(t, err)
			p, err := NewPayload(transaction, coord)
			require.NoError(t, err)

			tc.alter(p.Transaction)
			require.NoError(t, p.Refresh())
			data, err := p.Marshal()
			require.NoError(t, err)

			_, err = ImportPayload(data)
			assert.ErrorIs(t, err, ErrBadSignature)
		})
	}
}

func TestPayload_Refresh(t *testing.T) {
	cfg, keys := testConfig(t)
	coord := NewCoordinator(cfg)
	p, err := NewPayload(multisigTx(cfg), coord)
	require.NoError(t, err)
	before := p.Checksum

	coord.AddSignature(p.Transaction, cfg.LockHash(), keys[0].Blake160(), signAs(t, coord, p.Transaction, cfg, keys[0]))
	require.NoError(t, p.Refresh())
	assert.NotEqual(t, before, p.Checksum)

	data, _ := p.Marshal()
	_, err = ImportPayload(data)
	assert.NoError(t, err)
}

func TestPayload_MergeSessions(t *testing.T) {
	cfg, keys := testConfig(t)
	coord := NewCoordinator(cfg)
	base := multisigTx(cfg)
	p, err := NewPayload(base, coord)
	require.NoError(t, err)
	data, _ := p.Marshal()

	// Two co-signers import the same payload and sign independently.
	alice, err := ImportPayload(data)
	require.NoError(t, err)
	bob, err := ImportPayload(data)
	require.NoError(t, err)
	alice.Coordinator().AddSignature(alice.Transaction, cfg.LockHash(), keys[0].Blake160(),
		signAs(t, coord, alice.Transaction, cfg, keys[0]))
	bob.Coordinator().AddSignature(bob.Transaction, cfg.LockHash(), keys[1].Blake160(),
		signAs(t, coord, bob.Transaction, cfg, keys[1]))

	added, err := coord.Merge(alice.Transaction, bob.Transaction)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	_, err = coord.Assemble(alice.Transaction, cfg.LockHash())
	assert.NoError(t, err)
}

func TestNewPayload_NoMultisigInput(t *testing.T) {
	cfg, _ := testConfig(t)
	other, _ := NewConfig("w", 1, 0, cfg.Blake160s[:1])
	_, err := NewPayload(multisigTx(cfg), NewCoordinator(other))
	assert.Error(t, err)
}
