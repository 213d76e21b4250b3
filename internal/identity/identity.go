package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentKey computes the stable content key of a program unit
// definition: the hex sha256 digest of the canonical JSON array
// [source, dependencies, configParams]. configParams is re-marshaled
// through a map so that key order on the wire does not change the key;
// dependency order is preserved because dependencies is an opaque
// serialized list.
func ContentKey(source, dependencies string, configParams []byte) (string, error) {
	var params any
	if len(configParams) > 0 {
		if err := json.Unmarshal(configParams, &params); err != nil {
			return "", fmt.Errorf("config params not valid JSON: %w", err)
		}
	}
	raw, err := json.Marshal([]any{source, dependencies, params})
	if err != nil {
		return "", fmt.Errorf("serialize definition: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
