package types

import "errors"

// Chunk is an ordered, immutable segment of normalized page text
type Chunk struct {
	// SequenceIndex is the zero-based position of the chunk within its page
	SequenceIndex int

	// Text is the chunk content
	Text string

	// Byte offsets of Text within the normalized page text, end exclusive
	SourceOffsetStart int
	SourceOffsetEnd   int
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}

	if c.SequenceIndex < 0 {
		return errors.New("sequence index must not be negative")
	}

	if c.SourceOffsetStart < 0 {
		return errors.New("source offsets must not be negative")
	}

	if c.SourceOffsetStart >= c.SourceOffsetEnd {
		return errors.New("source offset start must be before end")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if c.SourceOffsetEnd-c.SourceOffsetStart != len(c.Text) {
		return errors.New("source offsets do not match text length")
	}

	return nil
}
