package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/tyler-smith/go-bip32"
)

// AccountPath is the BIP-44 account every wallet derives addresses under.
const AccountPath = "m/44'/309'/0'"

// ParsePath parses a derivation path of the form m/44'/309'/0'/0/3.
// Hardened segments end in ' (h and H are accepted too).
func ParsePath(path string) ([]uint32, error) {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] != "m" {
		return nil, txerr.New(txerr.InvalidPath, "path %q must start with m", path)
	}
	indices := make([]uint32, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		hardened := false
		if n := len(seg); n > 0 && (seg[n-1] == '\'' || seg[n-1] == 'h' || seg[n-1] == 'H') {
			hardened = true
			seg = seg[:n-1]
		}
		if seg == "" || seg[0] == '+' || seg[0] == '-' {
			return nil, txerr.New(txerr.InvalidPath, "path %q has an empty or signed segment", path)
		}
		v, err := strconv.ParseUint(seg, 10, 32)
		if err != nil || v >= uint64(bip32.FirstHardenedChild) {
			return nil, txerr.New(txerr.InvalidPath, "path %q: bad segment %q", path, seg)
		}
		idx := uint32(v)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// FormatPath renders indices as a path string.
func FormatPath(indices []uint32) string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range indices {
		b.WriteByte('/')
		if idx >= bip32.FirstHardenedChild {
			b.WriteString(strconv.FormatUint(uint64(idx-bip32.FirstHardenedChild), 10))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}

// AddressPath returns m/44'/309'/0'/change/index.
func AddressPath(change, index uint32) string {
	return fmt.Sprintf("%s/%d/%d", AccountPath, change, index)
}

// ReceivingPath returns the path of the i-th receiving address.
func ReceivingPath(i uint32) string {
	return AddressPath(ChangeExternal, i)
}

// ChangePath returns the path of the i-th change address.
func ChangePath(i uint32) string {
	return AddressPath(ChangeInternal, i)
}
