package chains

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
)

// NormalizeTxHash returns the canonical form of a transaction hash on chainID.
// EVM hashes become lowercase 0x-prefixed 32-byte hex, Solana signatures are
// re-encoded from their 64 raw bytes. Other families are only trimmed.
func NormalizeTxHash(chainID, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "", fmt.Errorf("empty tx hash for chain %s", chainID)
	}

	switch FamilyOf(chainID) {
	case FamilyEVM:
		if !strings.HasPrefix(hash, "0x") && !strings.HasPrefix(hash, "0X") {
			hash = "0x" + hash
		}
		raw, err := hexutil.Decode(strings.ToLower(hash))
		if err != nil {
			return "", fmt.Errorf("invalid evm tx hash %q: %v", hash, err)
		}
		if len(raw) != common.HashLength {
			return "", fmt.Errorf("invalid evm tx hash %q: want %d bytes, got %d", hash, common.HashLength, len(raw))
		}
		return common.BytesToHash(raw).Hex(), nil
	case FamilySolana:
		sig, err := solana.SignatureFromBase58(hash)
		if err != nil {
			return "", fmt.Errorf("invalid solana signature %q: %v", hash, err)
		}
		return sig.String(), nil
	default:
		return hash, nil
	}
}
