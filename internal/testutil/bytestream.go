// Package testutil holds helpers shared by fuzz tests.
package testutil

// ByteStream derives cache operations from fuzz input.
//
// Reads past the end return zero values, so the same input always decodes to
// the same operation sequence and short inputs still decode to something.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, n). n <= 0 yields 0.
func (s *ByteStream) NextInt(n int) int {
	if n <= 0 {
		return 0
	}

	return int(s.NextByte()) % n
}

// NextKey returns a key of length [0, maxLen] over a small alphabet, so
// decoded sequences hit the same keys and the same buckets often.
func (s *ByteStream) NextKey(maxLen int) string {
	const alphabet = "abcd"

	n := s.NextInt(maxLen + 1)
	key := make([]byte, n)

	for i := range key {
		key[i] = alphabet[s.NextInt(len(alphabet))]
	}

	return string(key)
}

// NextPayload returns a payload of length [0, maxLen] taken from the stream.
func (s *ByteStream) NextPayload(maxLen int) []byte {
	n := s.NextInt(maxLen + 1)
	out := make([]byte, n)

	for i := range out {
		out[i] = s.NextByte()
	}

	return out
}
