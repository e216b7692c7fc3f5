package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// LoadFile reads a .conf file of "key = value" lines; # starts a comment.
// A missing file yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		values[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return values, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyFileConfig decodes dotted file keys ("cosign.port") into cfg.
// Keys absent from the file keep their current value; unknown keys are
// ignored.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	tree, err := nest(values)
	if err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToListHook,
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(tree); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// nest turns {"a.b": v} into {"a": {"b": v}}.
func nest(values map[string]string) (map[string]any, error) {
	root := make(map[string]any)
	for key, value := range values {
		parts := strings.Split(key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p]
			if !ok {
				m := make(map[string]any)
				node[p] = m
				node = m
				continue
			}
			m, ok := child.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config key %q conflicts with %q", key, p)
			}
			node = m
		}
		leaf := parts[len(parts)-1]
		if _, ok := node[leaf].(map[string]any); ok {
			return nil, fmt.Errorf("config key %q is a section", key)
		}
		node[leaf] = value
	}
	return root, nil
}

// stringToListHook decodes comma-separated strings into string slices.
func stringToListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
		return data, nil
	}
	return parseStringList(data.(string)), nil
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	var result []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a commented default config file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# Cellwallet Configuration

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.cellwallet)
# datadir = ~/.cellwallet

# ============================================================================
# Chain Node
# ============================================================================

node.url = ` + d.Node.URL + `
node.timeout = ` + d.Node.Timeout.String() + `

# ============================================================================
# Fees
# ============================================================================

# Fee rate in shannons per 1000 bytes
fee.rate = ` + fmt.Sprint(d.Fee.Rate) + `

# ============================================================================
# Hardware Wallets
# ============================================================================

hardware.enabled = false
hardware.timeout = ` + d.Hardware.Timeout.String() + `

# ============================================================================
# Storage
# ============================================================================

# Backend: badger or bolt
storage.backend = ` + d.Storage.Backend + `

# ============================================================================
# Co-signing Relay
# ============================================================================

cosign.enabled = false
cosign.listen = ` + d.Cosign.ListenAddr + `
cosign.port = ` + fmt.Sprint(d.Cosign.Port) + `

# Co-signers to dial (comma-separated multiaddrs with /p2p/ID)
# cosign.peers =

# Disable mDNS discovery of co-signers on the local network
# cosign.nodiscover = false

# ============================================================================
# System Scripts (override for dev chains)
# ============================================================================

# scripts.secp.tx_hash = ` + d.SystemScripts.Secp.TxHash + `
# scripts.secp.index = 0
# scripts.secp.dep_type = dep_group

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
