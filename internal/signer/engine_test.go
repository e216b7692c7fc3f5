package signer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/hardware"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet   = "w1"
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

var (
	receiving0 = mustBlake160("0x196f6c1f21f7dbf0df814539b840059facbafc24")
	change0    = mustBlake160("0xb8d6380bb23a702cdbe0dbe9ef9f70d26a079648")
	foreign    = types.Blake160{0xf0, 0x0f}
)

func mustBlake160(s string) types.Blake160 {
	h, err := types.HexToHash(s + "000000000000000000000000")
	if err != nil {
		panic(err)
	}
	return h.Blake160()
}

// testKeys serves the test mnemonic. Every MasterKey call returns a fresh
// key because the engine zeroes it.
type testKeys struct {
	seed   []byte
	device *wallet.DeviceInfo

	mu          sync.Mutex
	masterCalls int
	MasterFn    func() error
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	seed, err := wallet.SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	return &testKeys{seed: seed}
}

func (k *testKeys) master() (*wallet.MasterKey, error) {
	return wallet.MasterKeyFromSeed(k.seed)
}

func (k *testKeys) MasterKey(_ string, _ []byte) (*wallet.MasterKey, error) {
	k.mu.Lock()
	k.masterCalls++
	k.mu.Unlock()
	if k.MasterFn != nil {
		if err := k.MasterFn(); err != nil {
			return nil, err
		}
	}
	return k.master()
}

func (k *testKeys) Device(string) (*wallet.DeviceInfo, error) {
	return k.device, nil
}

func (k *testKeys) AccountKey(string) (*wallet.AccountKey, error) {
	m, err := k.master()
	if err != nil {
		return nil, err
	}
	defer m.Zero()
	return m.AccountKey()
}

func newTestEngine(t *testing.T, devices *hardware.Manager) (*Engine, *testKeys) {
	t.Helper()
	keys := newTestKeys(t)
	book := wallet.NewAddressBook(storage.NewMemory(), keys, types.Testnet)
	book.ReceivingGap = 3
	book.ChangeGap = 2
	require.NoError(t, book.CheckAndGenerateAddresses(context.Background(), testWallet))
	return New(keys, book, devices), keys
}

func input(id byte, lock types.Script) tx.Input {
	return tx.Input{
		PreviousOutput: types.OutPoint{TxHash: types.Hash{id}},
		Capacity:       100 * tx.ShannonsPerCKB,
		Lock:           &lock,
	}
}

func unsignedTx(inputs ...tx.Input) *tx.Transaction {
	return &tx.Transaction{
		Inputs: inputs,
		Outputs: []tx.Output{{
			Capacity: 99 * tx.ShannonsPerCKB,
			Lock:     types.NewSecpScript(foreign),
		}},
	}
}

// requireSignedBy checks that the group witness of lock carries a signature
// by signer over the message hashed with a lockSize placeholder.
func requireSignedBy(t *testing.T, unsigned, signed *tx.Transaction, index int, lock types.Script, signer types.Blake160) {
	t.Helper()
	wa, err := types.DecodeWitnessArgs(signed.Witnesses[index])
	require.NoError(t, err)
	require.Len(t, wa.Lock, crypto.SignatureSize)

	msg, err := multisig.GroupMessage(unsigned, lock.Hash(), crypto.SignatureSize)
	require.NoError(t, err)
	pub, err := crypto.RecoverPubKey(msg[:], wa.Lock)
	require.NoError(t, err)
	assert.Equal(t, signer, crypto.PubKeyBlake160(pub))
}

func TestSign_SingleKeyGroups(t *testing.T) {
	engine, keys := newTestEngine(t, nil)
	lockR := types.NewSecpScript(receiving0)
	lockC := types.NewSecpScript(change0)
	unsigned := unsignedTx(input(1, lockR), input(2, lockC), input(3, lockR))

	signed, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.NoError(t, err)

	require.Len(t, signed.Witnesses, 3)
	requireSignedBy(t, unsigned, signed, 0, lockR, receiving0)
	requireSignedBy(t, unsigned, signed, 1, lockC, change0)
	assert.Empty(t, signed.Witnesses[2], "later group members carry an empty witness")

	assert.Equal(t, unsigned.Hash(), signed.TxHash)
	assert.Equal(t, unsigned.Inputs, signed.Inputs)
	assert.Equal(t, unsigned.Outputs, signed.Outputs)
	assert.Empty(t, unsigned.Witnesses, "the request transaction is not modified")
	assert.Equal(t, 1, keys.masterCalls)
}

func TestSign_PreservesWitnessFields(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	lockR := types.NewSecpScript(receiving0)
	unsigned := unsignedTx(input(1, lockR), input(2, lockR))
	extra := (&types.WitnessArgs{InputType: []byte{1, 2, 3}}).Serialize()
	unsigned.Witnesses = [][]byte{
		(&types.WitnessArgs{OutputType: []byte{9}}).Serialize(),
		extra,
	}

	signed, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.NoError(t, err)

	first, err := types.DecodeWitnessArgs(signed.Witnesses[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, first.OutputType)
	assert.Equal(t, extra, signed.Witnesses[1])

	msg, err := multisig.GroupMessage(unsigned, lockR.Hash(), crypto.SignatureSize)
	require.NoError(t, err)
	pub, err := crypto.RecoverPubKey(msg[:], first.Lock)
	require.NoError(t, err)
	assert.Equal(t, receiving0, crypto.PubKeyBlake160(pub))
}

func TestSign_NoMatchAddress(t *testing.T) {
	engine, keys := newTestEngine(t, nil)
	unsigned := unsignedTx(input(1, types.NewSecpScript(receiving0)), input(2, types.NewSecpScript(foreign)))

	_, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.Error(t, err)
	assert.True(t, txerr.IsKind(err, txerr.NoMatchAddressForSign))
	assert.Zero(t, keys.masterCalls, "keys are not decrypted before every lock resolves")
}

func TestSign_SkipLastInputs(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	lockR := types.NewSecpScript(receiving0)
	theirs := []byte{0xde, 0xad}
	unsigned := unsignedTx(input(1, lockR), input(2, types.NewSecpScript(foreign)))
	unsigned.Witnesses = [][]byte{{}, theirs}

	signed, err := engine.Sign(context.Background(), SignRequest{
		WalletID:       testWallet,
		Tx:             unsigned,
		SkipLastInputs: true,
	})
	require.NoError(t, err)
	requireSignedBy(t, unsigned, signed, 0, lockR, receiving0)
	assert.Equal(t, theirs, signed.Witnesses[1])
}

func TestSign_Timelock(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	cfg, err := multisig.NewTimelockConfig(testWallet, change0, 0x2003e80000000118)
	require.NoError(t, err)
	lock := cfg.LockScript()
	require.Len(t, lock.Args, multisig.TimelockArgsSize)
	unsigned := unsignedTx(input(1, lock))

	signed, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.NoError(t, err)

	wa, err := types.DecodeWitnessArgs(signed.Witnesses[0])
	require.NoError(t, err)
	require.Len(t, wa.Lock, cfg.WitnessLockSize())
	decoded, sigs, err := multisig.DecodeWitnessLock(wa.Lock)
	require.NoError(t, err)
	assert.Equal(t, cfg.Blake160s, decoded.Blake160s)
	require.Len(t, sigs, 1)

	msg, err := multisig.GroupMessage(unsigned, lock.Hash(), cfg.WitnessLockSize())
	require.NoError(t, err)
	pub, err := crypto.RecoverPubKey(msg[:], sigs[0])
	require.NoError(t, err)
	assert.Equal(t, change0, crypto.PubKeyBlake160(pub))
}

func TestSign_Cheque(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ours := types.NewSecpScript(receiving0).Hash().Blake160()
	theirs := types.NewSecpScript(foreign).Hash().Blake160()

	for name, args := range map[string][]byte{
		"receiver": append(ours.Bytes(), theirs.Bytes()...),
		"sender":   append(theirs.Bytes(), ours.Bytes()...),
	} {
		t.Run(name, func(t *testing.T) {
			lock := types.Script{CodeHash: types.Hash{0xcc}, HashType: types.HashTypeType, Args: args}
			unsigned := unsignedTx(input(1, lock))

			signed, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
			require.NoError(t, err)
			requireSignedBy(t, unsigned, signed, 0, lock, receiving0)
		})
	}

	lock := types.Script{CodeHash: types.Hash{0xcc}, HashType: types.HashTypeType, Args: append(theirs.Bytes(), theirs.Bytes()...)}
	_, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsignedTx(input(1, lock))})
	assert.True(t, txerr.IsKind(err, txerr.NoMatchAddressForSign))
}

func TestSign_DecryptionFailure(t *testing.T) {
	engine, keys := newTestEngine(t, nil)
	keys.MasterFn = func() error {
		return txerr.New(txerr.DecryptionFailed, "wrong password")
	}
	_, err := engine.Sign(context.Background(), SignRequest{
		WalletID: testWallet,
		Tx:       unsignedTx(input(1, types.NewSecpScript(receiving0))),
	})
	assert.True(t, txerr.IsKind(err, txerr.DecryptionFailed))
}

func TestSignMultisig_CollectsAcrossCalls(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	cfg, err := multisig.NewConfig(testWallet, 2, 0, []types.Blake160{receiving0, foreign, change0})
	require.NoError(t, err)
	coord := multisig.NewCoordinator(cfg)
	lock := cfg.LockScript()
	unsigned := unsignedTx(input(1, lock), input(2, lock))
	ctx := context.Background()

	first, err := engine.SignMultisig(ctx, MultisigSignRequest{WalletID: testWallet, Tx: unsigned, Coordinator: coord})
	require.NoError(t, err)
	state, err := coord.State(first, cfg.LockHash())
	require.NoError(t, err)
	assert.Equal(t, multisig.PartiallySigned, state)
	require.Len(t, first.Signatures[cfg.LockHash()], 1)
	assert.Equal(t, receiving0, first.Signatures[cfg.LockHash()][0].Signer)
	assert.Empty(t, first.Witnesses[0], "no witness until the threshold is met")

	second, err := engine.SignMultisig(ctx, MultisigSignRequest{WalletID: testWallet, Tx: first, Coordinator: coord})
	require.NoError(t, err)
	state, err = coord.State(second, cfg.LockHash())
	require.NoError(t, err)
	assert.Equal(t, multisig.Signed, state)

	wa, err := types.DecodeWitnessArgs(second.Witnesses[0])
	require.NoError(t, err)
	require.Len(t, wa.Lock, cfg.WitnessLockSize())
	_, sigs, err := multisig.DecodeWitnessLock(wa.Lock)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	for _, e := range second.Signatures[cfg.LockHash()] {
		assert.NoError(t, coord.Verify(unsigned, cfg.LockHash(), e))
	}
	assert.Empty(t, second.Witnesses[1])

	_, err = engine.SignMultisig(ctx, MultisigSignRequest{WalletID: testWallet, Tx: second, Coordinator: coord})
	assert.True(t, txerr.IsKind(err, txerr.NoMatchAddressForSign))
}

func TestSignMultisig_ConfigNeeded(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	cfg, err := multisig.NewConfig(testWallet, 1, 0, []types.Blake160{receiving0, foreign})
	require.NoError(t, err)
	other, err := multisig.NewConfig(testWallet, 1, 0, []types.Blake160{change0, foreign})
	require.NoError(t, err)
	unsigned := unsignedTx(input(1, cfg.LockScript()))

	_, err = engine.SignMultisig(context.Background(), MultisigSignRequest{
		WalletID:    testWallet,
		Tx:          unsigned,
		Coordinator: multisig.NewCoordinator(other),
	})
	assert.True(t, txerr.IsKind(err, txerr.MultisigConfigNeedError))

	_, err = engine.SignMultisig(context.Background(), MultisigSignRequest{WalletID: testWallet, Tx: unsigned})
	assert.True(t, txerr.IsKind(err, txerr.MultisigConfigNeedError))
}

func TestSign_MixedWithMultisigCoordinator(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	cfg, err := multisig.NewConfig(testWallet, 1, 0, []types.Blake160{foreign, change0})
	require.NoError(t, err)
	lockR := types.NewSecpScript(receiving0)
	unsigned := unsignedTx(input(1, lockR), input(2, cfg.LockScript()))

	signed, err := engine.Sign(context.Background(), SignRequest{
		WalletID: testWallet,
		Tx:       unsigned,
		Multisig: multisig.NewCoordinator(cfg),
	})
	require.NoError(t, err)
	requireSignedBy(t, unsigned, signed, 0, lockR, receiving0)

	wa, err := types.DecodeWitnessArgs(signed.Witnesses[1])
	require.NoError(t, err)
	assert.Len(t, wa.Lock, cfg.WitnessLockSize())
}

func hardwareEngine(t *testing.T, latency, timeout time.Duration) (*Engine, *hardware.Manager) {
	t.Helper()
	keys := newTestKeys(t)
	master, err := keys.master()
	require.NoError(t, err)
	reg := hardware.NewRegistry()
	hardware.RegisterSimulator(reg, master, latency)
	mgr := hardware.NewManager(reg)
	mgr.Timeout = timeout

	engine, sw := newTestEngine(t, mgr)
	sw.device = &wallet.DeviceInfo{Family: hardware.SimulatorFamily, Model: "sim"}
	return engine, mgr
}

func TestSign_Hardware(t *testing.T) {
	engine, mgr := hardwareEngine(t, 0, time.Second)
	lockR := types.NewSecpScript(receiving0)
	lockC := types.NewSecpScript(change0)
	unsigned := unsignedTx(input(1, lockC), input(2, lockR))

	signed, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.NoError(t, err)
	requireSignedBy(t, unsigned, signed, 0, lockC, change0)
	requireSignedBy(t, unsigned, signed, 1, lockR, receiving0)

	// The session was released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sess, err := mgr.Acquire(ctx, wallet.DeviceInfo{Family: hardware.SimulatorFamily})
	require.NoError(t, err)
	sess.Close()
}

func TestSign_HardwareTimeout(t *testing.T) {
	engine, mgr := hardwareEngine(t, 500*time.Millisecond, 20*time.Millisecond)
	unsigned := unsignedTx(input(1, types.NewSecpScript(receiving0)))

	_, err := engine.Sign(context.Background(), SignRequest{WalletID: testWallet, Tx: unsigned})
	require.Error(t, err)
	assert.True(t, txerr.IsKind(err, txerr.HardwareTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sess, err := mgr.Acquire(ctx, wallet.DeviceInfo{Family: "missing"})
	assert.Nil(t, sess)
	assert.True(t, txerr.IsKind(err, txerr.DeviceError), "device released after the timeout: %v", err)
}

func TestSign_HardwareWithoutManager(t *testing.T) {
	engine, keys := newTestEngine(t, nil)
	keys.device = &wallet.DeviceInfo{Family: hardware.SimulatorFamily}
	_, err := engine.Sign(context.Background(), SignRequest{
		WalletID: testWallet,
		Tx:       unsignedTx(input(1, types.NewSecpScript(receiving0))),
	})
	assert.ErrorIs(t, err, ErrNoHardware)
}
