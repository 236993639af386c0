package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuad    = "sparqlflow/quad/v1"
	DomainMapping = "sparqlflow/mapping/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QuadID computes the content-addressed identity of a quad.
// Equal quads (after graph normalization) have equal ids.
// Panics if the quad holds a nil term; validated quads never do.
func QuadID(q Quad) string {
	canonical, err := MarshalCanonical(q.Normalize())
	if err != nil {
		panic(fmt.Sprintf("ir.QuadID: %v", err))
	}
	return hashWithDomain(DomainQuad, canonical)
}

// MappingHash computes the content-addressed identity of a mapping.
func MappingHash(m Mapping) (string, error) {
	canonical, err := MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("MappingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMapping, canonical), nil
}

// MustMappingHash is like MappingHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMappingHash(m Mapping) string {
	h, err := MappingHash(m)
	if err != nil {
		panic(err)
	}
	return h
}
