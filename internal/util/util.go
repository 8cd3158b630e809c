// Package util holds small, dependency-light helpers shared across
// hunters and the executor: Hardhat/Foundry-artifact ABI loading,
// encrypted-private-key recovery, and the pure profit math both arb
// hunters gate on before spending gas.
package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact
// this engine actually reads: its "abi" field.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABI reads a Hardhat/Foundry artifact JSON file at path and
// parses its "abi" field.
func LoadABI(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read artifact %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact %s: %w", path, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse abi in %s: %w", path, err)
	}
	return parsed, nil
}

// Decrypt recovers an ECDSA private key from an AES-256-GCM encrypted,
// hex-encoded blob: the first 12 bytes of the decoded ciphertext are
// the nonce, the remainder is the sealed hex-encoded private key.
// configs.Load reads only a bare PRIVATE_KEY; the caller supplies both
// the AES key and the ciphertext.
func Decrypt(key []byte, encryptedHex string) (*ecdsa.PrivateKey, error) {
	ciphertext, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return nil, fmt.Errorf("util: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("util: build cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("util: build gcm: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("util: ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("util: decrypt private key: %w", err)
	}

	pk, err := crypto.HexToECDSA(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("util: parse decrypted private key: %w", err)
	}
	return pk, nil
}

// SafetyMarginMultiplier inflates gas-cost estimates before comparing
// against gross profit, matching arb_engine.py's
// SAFETY_MARGIN_MULTIPLIER — gas can spike between quote and broadcast.
const SafetyMarginMultiplier = 1.5

// EstimateNetProfitUSD subtracts a safety-margined gas cost from a
// gross profit already net of flashloan fee. gasCostWei is converted
// to ETH, priced at ethPriceUSD, then inflated by
// SafetyMarginMultiplier before the subtraction.
func EstimateNetProfitUSD(grossProfitUSD float64, gasCostWei *big.Int, ethPriceUSD float64) float64 {
	gasCostETH := new(big.Float).Quo(new(big.Float).SetInt(gasCostWei), big.NewFloat(1e18))
	gasCostUSD, _ := new(big.Float).Mul(gasCostETH, big.NewFloat(ethPriceUSD*SafetyMarginMultiplier)).Float64()
	return grossProfitUSD - gasCostUSD
}

// BigIntToString safely renders a *big.Int for storage, treating nil
// as "0" — the same nil-guard the teacher's db recorder applies before
// writing a big.Int into a varchar column.
func BigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
