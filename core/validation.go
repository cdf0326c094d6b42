// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
)

// Query length bounds. MinQueryLength is the library default; service
// configuration may raise it.
const (
	MinQueryLength = 3
	MaxQueryLength = 500
)

// ValidateQuery validates a raw search query before any pipeline stage runs.
//
// Validation rules:
//   - must not be empty or whitespace-only
//   - trimmed length must be >= minLength (pass 0 for MinQueryLength)
//   - trimmed length must be <= MaxQueryLength
func ValidateQuery(query string, minLength int) error {
	if minLength <= 0 {
		minLength = MinQueryLength
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w", ErrEmptyQuery)
	}
	if len([]rune(trimmed)) < minLength {
		return fmt.Errorf("%w: %d < %d", ErrQueryTooShort, len([]rune(trimmed)), minLength)
	}
	if len([]rune(trimmed)) > MaxQueryLength {
		return fmt.Errorf("%w: %d > %d", ErrQueryTooLong, len([]rune(trimmed)), MaxQueryLength)
	}
	return nil
}

// ValidateChunk validates a Chunk before it is persisted.
//
// Validation rules:
//   - ID must not be empty
//   - Text must not be empty or whitespace-only
//
// NOT validated (populated by processors):
//   - Vector (can be empty until the embedding processor runs)
//   - Metadata (optional; sanitized separately)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkID)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}
	return nil
}

// SanitizeMetadata returns a copy of metadata with empty keys and
// empty/whitespace-only values removed. The chunk store rejects null-valued
// fields, so absent fields must be omitted rather than stored empty.
// Returns nil when nothing remains.
func SanitizeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	clean := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		clean[key] = value
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}
