package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalERC20Artifact = `{
	"contractName": "ERC20",
	"abi": [
		{"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
	],
	"bytecode": "0x"
}`

func TestLoadABI_ParsesArtifactABIField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ERC20.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalERC20Artifact), 0o644))

	parsed, err := LoadABI(path)
	require.NoError(t, err)
	_, ok := parsed.Methods["balanceOf"]
	assert.True(t, ok)
}

func TestLoadABI_MissingFile(t *testing.T) {
	_, err := LoadABI("/nonexistent/path.json")
	assert.Error(t, err)
}

func TestDecrypt_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plainHex := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	sealed := gcm.Seal(nonce, nonce, []byte(plainHex), nil)
	encryptedHex := hex.EncodeToString(sealed)

	pk, err := Decrypt(key, encryptedHex)
	require.NoError(t, err)
	assert.NotNil(t, pk)
}

func TestDecrypt_ShortCiphertextFails(t *testing.T) {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	_, err := Decrypt(key, "deadbeef")
	assert.Error(t, err)
}

func TestEstimateNetProfitUSD(t *testing.T) {
	gasCostWei := new(big.Int).Mul(big.NewInt(500_000), big.NewInt(100_000_000)) // 500k gas * 0.1 gwei
	net := EstimateNetProfitUSD(10.0, gasCostWei, 3000.0)
	// gasCostETH = 0.00005, gasCostUSD = 0.00005*3000*1.5 = 0.225
	assert.InDelta(t, 9.775, net, 0.001)
}

func TestBigIntToString_NilIsZero(t *testing.T) {
	assert.Equal(t, "0", BigIntToString(nil))
	assert.Equal(t, "42", BigIntToString(big.NewInt(42)))
}
