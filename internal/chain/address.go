package chain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ValidateAddress checks that input is a base58-encoded 32-byte Solana
// public key.
func ValidateAddress(input string) (solana.PublicKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return solana.PublicKey{}, fmt.Errorf("address is empty")
	}
	key, err := solana.PublicKeyFromBase58(input)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", input, err)
	}
	return key, nil
}

// ParseAddresses validates a list of addresses, skipping blank entries.
func ParseAddresses(inputs []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		key, err := ValidateAddress(input)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// AddressValidator adapts ValidateAddress to the registry's validator contract.
type AddressValidator struct{}

func (AddressValidator) Validate(address string) error {
	_, err := ValidateAddress(address)
	return err
}
