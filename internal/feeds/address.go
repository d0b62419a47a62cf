package feeds

import (
	"regexp"

	"github.com/mr-tron/base58"

	"tokenradar/internal/domain"
)

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether address is plausibly a token address on the
// given chain. EVM chains use 20-byte hex; solana addresses are base58 of
// 32 bytes. Mint addresses may be off-curve program-derived addresses, so
// no curve check is applied.
func ValidAddress(chain domain.Chain, address string) bool {
	if chain == domain.ChainSolana {
		decoded, err := base58.Decode(address)
		return err == nil && len(decoded) == 32
	}
	return evmAddressPattern.MatchString(address)
}
