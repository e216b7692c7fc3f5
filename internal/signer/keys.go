package signer

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/hardware"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
)

// softwareKeys signs with keys derived for the current call. close wipes
// them.
type softwareKeys wallet.KeySet

func (k softwareKeys) sign(_ context.Context, req groupRequest) ([]byte, error) {
	key, ok := wallet.KeySet(k).Find(req.path)
	if !ok {
		return nil, txerr.New(txerr.InvalidPath, "no key derived for %s", req.path)
	}
	msg := tx.SigningMessage(req.hash, req.witnesses)
	sig, err := key.Sign(msg[:])
	if err != nil {
		return nil, fmt.Errorf("sign with %s: %w", req.path, err)
	}
	return sig, nil
}

func (k softwareKeys) close() {
	wallet.KeySet(k).Zero()
}

// deviceKeys delegates to a hardware device, which derives the key from the
// path and hashes the witnesses itself.
type deviceKeys struct {
	sess *hardware.Session
}

func (d *deviceKeys) sign(ctx context.Context, req groupRequest) ([]byte, error) {
	return d.sess.SignTransaction(ctx, hardware.TxSignRequest{
		WalletID:  req.walletID,
		Tx:        req.tx,
		Witnesses: req.witnesses,
		Path:      req.path,
		Context:   req.inputTxs,
	})
}

func (d *deviceKeys) close() {
	d.sess.Close()
}
