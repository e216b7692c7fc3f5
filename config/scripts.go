package config

import (
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/txgen"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// ScriptDep locates a system script cell.
type ScriptDep struct {
	TxHash  string `mapstructure:"tx_hash"`
	Index   uint32 `mapstructure:"index"`
	DepType string `mapstructure:"dep_type"` // code or dep_group
}

// CellDep parses the dep.
func (d ScriptDep) CellDep() (tx.CellDep, error) {
	hash, err := types.HexToHash(d.TxHash)
	if err != nil {
		return tx.CellDep{}, fmt.Errorf("tx_hash: %w", err)
	}
	var depType tx.DepType
	switch d.DepType {
	case "code":
		depType = tx.DepTypeCode
	case "dep_group", "":
		depType = tx.DepTypeDepGroup
	default:
		return tx.CellDep{}, fmt.Errorf("dep_type must be code or dep_group, got %q", d.DepType)
	}
	return tx.CellDep{OutPoint: types.OutPoint{TxHash: hash, Index: d.Index}, DepType: depType}, nil
}

// SystemScripts are the cells of the scripts the wallet spends.
type SystemScripts struct {
	Secp     ScriptDep `mapstructure:"secp"`
	Multisig ScriptDep `mapstructure:"multisig"`
	Dao      ScriptDep `mapstructure:"dao"`
}

// CellDeps parses the system script deps for the transaction generator.
func (s SystemScripts) CellDeps() (txgen.CellDeps, error) {
	var deps txgen.CellDeps
	var err error
	if deps.Secp, err = s.Secp.CellDep(); err != nil {
		return deps, fmt.Errorf("scripts.secp: %w", err)
	}
	if deps.Multisig, err = s.Multisig.CellDep(); err != nil {
		return deps, fmt.Errorf("scripts.multisig: %w", err)
	}
	if deps.Dao, err = s.Dao.CellDep(); err != nil {
		return deps, fmt.Errorf("scripts.dao: %w", err)
	}
	return deps, nil
}
