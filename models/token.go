package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the pseudo-address used for a chain's native asset.
var NativeAddress = common.Address{}

// Token identifies an asset on one network. Identity is the (Network, Address)
// pair; addresses are checksum-normalized on construction so two tokens parsed
// from differently-cased hex strings compare equal.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Network  string         `json:"network"`
}

// NewToken builds a Token from a hex address string, normalizing the address
// format and lowercasing the network identifier.
func NewToken(address string, decimals uint8, network string) Token {
	return Token{
		Address:  common.HexToAddress(address),
		Decimals: decimals,
		Network:  strings.ToLower(network),
	}
}

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool {
	return t.Address == NativeAddress
}

// Equal reports identity: same network and same address.
func (t Token) Equal(other Token) bool {
	return t.Network == other.Network && t.Address == other.Address
}

// Key returns a stable map/cache key for the token.
func (t Token) Key() string {
	return t.Network + ":" + strings.ToLower(t.Address.Hex())
}
