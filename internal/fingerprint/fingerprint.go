package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidInput is returned when a fingerprint cannot be derived from
// the given tenant/model/query triple.
var ErrInvalidInput = errors.New("fingerprint: invalid input")

// Key identifies one cached response. Hash is sha256 of the normalized
// query scoped by tenant and model, so the same question asked with
// different casing or spacing lands on the same entry.
type Key struct {
	TenantID string
	ModelID  string
	Hash     string
}

// String converts the structured key into the final string used by the
// store backends.
func (k Key) String() string {
	// cache:<TENANT_ID>:<MODEL_ID>:<HASH_HEX>
	return fmt.Sprintf("cache:%s:%s:%s", k.TenantID, k.ModelID, k.Hash)
}

// New derives the cache key for (tenantID, modelID, query).
//
// Normalization lower-cases, trims, and collapses unicode whitespace
// before hashing. No salt is mixed in: the same triple must map to the
// same key across restarts and deployments. Model or prompt-template
// version changes are expected to be folded into modelID by the caller.
func New(tenantID, modelID, query string) (Key, error) {
	tenantID = strings.TrimSpace(tenantID)
	modelID = strings.TrimSpace(modelID)

	if tenantID == "" {
		return Key{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	if modelID == "" {
		return Key{}, fmt.Errorf("%w: model_id is required", ErrInvalidInput)
	}
	if strings.ContainsRune(tenantID+modelID, ':') {
		// Keys render as colon-separated segments; a colon inside a
		// segment would make them ambiguous.
		return Key{}, fmt.Errorf("%w: tenant_id and model_id must not contain ':'", ErrInvalidInput)
	}

	normalized, err := Normalize(query)
	if err != nil {
		return Key{}, err
	}

	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(normalized))

	return Key{
		TenantID: tenantID,
		ModelID:  modelID,
		Hash:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Normalize returns the canonical form of a query: valid UTF-8,
// lower-cased, with leading/trailing whitespace removed and interior
// whitespace runs collapsed to a single space.
func Normalize(query string) (string, error) {
	if !utf8.ValidString(query) {
		return "", fmt.Errorf("%w: query is not valid UTF-8", ErrInvalidInput)
	}

	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}

	return strings.Join(fields, " "), nil
}
