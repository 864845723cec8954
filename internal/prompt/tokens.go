package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding name is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tkm, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{encoding: tkm}, nil
}

// CountTokens returns the number of tokens in text.
func (t *TiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
