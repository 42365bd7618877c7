package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Asset identifies a priced, allocatable asset by symbol and address.
// The address is the stable identifier used everywhere state is keyed;
// the symbol exists for logs and config only.
type Asset struct {
	Symbol  string
	Address common.Address
}

func NewAsset(symbol string, address common.Address) (Asset, error) {
	if symbol == "" {
		return Asset{}, errors.New("asset symbol must not be empty")
	}
	if address == (common.Address{}) {
		return Asset{}, errors.Wrap(ErrZeroAddress, "asset address")
	}
	return Asset{Symbol: symbol, Address: address}, nil
}

// DeriveAddress produces a deterministic address from a label. Used by
// simulation wiring and tests where no real deployment address exists.
func DeriveAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

func (a Asset) String() string {
	return fmt.Sprintf("%s(%s)", a.Symbol, a.Address.Hex())
}
