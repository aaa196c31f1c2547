package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// inputSignature digests resolved inputs so unchanged deployments can be
// detected across runs. encoding/json already writes map keys in sorted
// order, which keeps the digest canonical.
func inputSignature(inputs map[string]interface{}) (string, error) {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("failed to hash inputs: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
