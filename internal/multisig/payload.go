package multisig

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/zeebo/blake3"
)

// PayloadVersion is the co-signing payload format version.
const PayloadVersion = 1

// Payload errors.
var (
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	ErrBadSignature     = errors.New("payload carries an invalid signature")
)

// Payload is a partially signed transaction exported for other signers:
// the transaction with its collected signatures and the configs needed to
// continue signing it.
type Payload struct {
	Version     int             `json:"version"`
	Transaction *tx.Transaction `json:"transaction"`
	Configs     []*Config       `json:"multisig_configs"`
	Checksum    string          `json:"checksum"`
}

type payloadBody struct {
	Version     int             `json:"version"`
	Transaction *tx.Transaction `json:"transaction"`
	Configs     []*Config       `json:"multisig_configs"`
}

// NewPayload wraps a transaction for export. Only configs locking one of
// its inputs are included.
func NewPayload(t *tx.Transaction, coord *Coordinator) (*Payload, error) {
	groups, err := t.LockGroups(len(t.Inputs))
	if err != nil {
		return nil, err
	}
	var configs []*Config
	for _, g := range groups {
		if cfg, ok := coord.Config(g.LockHash); ok {
			configs = append(configs, cfg)
		}
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("transaction spends no known multisig lock")
	}
	p := &Payload{Version: PayloadVersion, Transaction: t, Configs: configs}
	sum, err := p.checksum()
	if err != nil {
		return nil, err
	}
	p.Checksum = sum
	return p, nil
}

// checksum is blake3 over the JSON encoding of everything but the
// checksum. encoding/json emits struct fields in order and map keys sorted,
// so the encoding is canonical.
func (p *Payload) checksum() (string, error) {
	body, err := json.Marshal(payloadBody{Version: p.Version, Transaction: p.Transaction, Configs: p.Configs})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal encodes the payload as indented JSON.
func (p *Payload) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// ImportPayload decodes a payload and rejects it unless the checksum
// matches, every config is valid and every collected signature verifies.
func ImportPayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.Version != PayloadVersion {
		return nil, fmt.Errorf("unsupported payload version %d", p.Version)
	}
	if p.Transaction == nil {
		return nil, fmt.Errorf("payload has no transaction")
	}
	sum, err := p.checksum()
	if err != nil {
		return nil, err
	}
	if sum != p.Checksum {
		return nil, ErrChecksumMismatch
	}
	for _, cfg := range p.Configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := p.VerifySignatures(); err != nil {
		return nil, err
	}
	return &p, nil
}

// VerifySignatures checks every signature entry of the payload against its
// lock group. The checksum only detects corruption; anyone can recompute
// it, so entries are never trusted without this.
func (p *Payload) VerifySignatures() error {
	coord := p.Coordinator()
	for _, lockHash := range p.Transaction.Signatures.LockHashes() {
		cfg, ok := coord.Config(lockHash)
		if !ok {
			return fmt.Errorf("%w: no config for lock %s", ErrBadSignature, lockHash)
		}
		seen := make(map[types.Blake160]bool)
		for _, e := range p.Transaction.Signatures[lockHash] {
			if cfg.SignerIndex(e.Signer) < 0 {
				return fmt.Errorf("%w: %s is not a signer of %s", ErrBadSignature, e.Signer, lockHash)
			}
			if seen[e.Signer] {
				return fmt.Errorf("%w: %s signed %s twice", ErrBadSignature, e.Signer, lockHash)
			}
			seen[e.Signer] = true
			if err := coord.Verify(p.Transaction, lockHash, e); err != nil {
				return fmt.Errorf("%w: %s on %s: %v", ErrBadSignature, e.Signer, lockHash, err)
			}
		}
	}
	return nil
}

// Coordinator returns a coordinator over the payload's configs.
func (p *Payload) Coordinator() *Coordinator {
	return NewCoordinator(p.Configs...)
}

// Refresh recomputes the checksum after the transaction changed.
func (p *Payload) Refresh() error {
	sum, err := p.checksum()
	if err != nil {
		return err
	}
	p.Checksum = sum
	return nil
}
