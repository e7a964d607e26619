package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainState    = "flowstate/state/v1"
	DomainPipeline = "flowstate/pipeline/v1"
	DomainEvent    = "flowstate/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest computes the content digest of a described flow state.
// Two states with equal objects, attributes and status have equal digests,
// regardless of object identity or revision counters.
func StateDigest(desc Object) (string, error) {
	canonical, err := MarshalCanonical(desc)
	if err != nil {
		return "", fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// PipelineHash computes the identity of a pipeline definition.
// The journal records it so traces can be matched to the definition that produced them.
func PipelineHash(spec PipelineSpec) (string, error) {
	canonical, err := MarshalCanonical(spec.Describe())
	if err != nil {
		return "", fmt.Errorf("PipelineHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPipeline, canonical), nil
}

// EventID computes the identity of a journal event within a run.
// Replaying the same run writes the same ids, so inserts are idempotent.
func EventID(runID string, seq int64, node string) (string, error) {
	obj := Object{
		"run_id": String(runID),
		"seq":    Int(seq),
		"node":   String(node),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateDigest(desc Object) string {
	digest, err := StateDigest(desc)
	if err != nil {
		panic(err)
	}
	return digest
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(runID string, seq int64, node string) string {
	id, err := EventID(runID, seq, node)
	if err != nil {
		panic(err)
	}
	return id
}
