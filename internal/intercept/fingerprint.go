// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package intercept

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/yuktathapliyal/serix/internal/provider"
)

// canonicalRequest is the normalized shape hashed into a fingerprint.
// Field order is fixed by the struct declaration, so encoding/json produces
// a stable byte sequence for equal requests. Volatile values (request IDs,
// timestamps) are never part of provider.Request and so never enter the hash.
type canonicalRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system"`
	Messages    []provider.Message `json:"messages"`
	Temperature *float64           `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	JSONMode    bool               `json:"json_mode"`
}

// Fingerprint returns a stable content hash of the semantically relevant
// fields of req. Two requests with equal model, system prompt, message list,
// and sampling parameters always produce the same fingerprint.
func Fingerprint(req provider.Request) string {
	canonical := canonicalRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	}

	// Marshalling a struct of scalar and slice fields cannot fail.
	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
