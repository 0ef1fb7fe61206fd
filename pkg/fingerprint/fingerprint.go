package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate returns the SHA256 of the canonical JSON form of data.
// Empty values are dropped so a sparse record and a record with blank columns hash the same.
func Generate(data map[string]string) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// NaturalKey derives the external source id for a row that did not carry one.
// It returns "" when there is nothing to identify the row by.
func NaturalKey(identityKey, phoneDigits string) string {
	if identityKey == "" && phoneDigits == "" {
		return ""
	}
	return "fp:" + Generate(map[string]string{
		"identity_key": identityKey,
		"phone_digits": phoneDigits,
	})[:32]
}

func canonicalize(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		key, _ := json.Marshal(k)
		value, _ := json.Marshal(m[k])
		b.Write(key)
		b.WriteString(":")
		b.Write(value)
	}
	b.WriteString("}")
	return b.String()
}
