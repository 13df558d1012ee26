package protocol

import "fmt"

// Zero-coding replaces each run of zero bytes with a 0x00 byte followed by
// the run length (1..255). Longer runs are split. It covers everything after
// the flags and sequence up to the ack trailer.

// ZeroEncode returns the zero-coded form of src.
func ZeroEncode(src []byte) []byte {
	out := make([]byte, 0, ZeroEncodedLength(src))
	for i := 0; i < len(src); {
		if src[i] != 0 {
			out = append(out, src[i])
			i++
			continue
		}
		run := 0
		for i < len(src) && src[i] == 0 && run < 0xFF {
			run++
			i++
		}
		out = append(out, 0x00, byte(run))
	}
	return out
}

// ZeroEncodedLength returns len(ZeroEncode(src)) without allocating.
func ZeroEncodedLength(src []byte) int {
	n := 0
	for i := 0; i < len(src); {
		if src[i] != 0 {
			n++
			i++
			continue
		}
		run := 0
		for i < len(src) && src[i] == 0 && run < 0xFF {
			run++
			i++
		}
		n += 2
	}
	return n
}

// ZeroDecode expands src. The output may not exceed limit bytes; a zero
// byte without its run length is truncated input.
func ZeroDecode(src []byte, limit int) ([]byte, error) {
	out := make([]byte, 0, min(len(src)*2, limit))
	for i := 0; i < len(src); i++ {
		if src[i] != 0 {
			if len(out) >= limit {
				return nil, fmt.Errorf("%w: limit %d", ErrExpansionLimit, limit)
			}
			out = append(out, src[i])
			continue
		}
		if i+1 >= len(src) {
			return nil, fmt.Errorf("%w: zero run without length at offset %d", ErrTruncatedInput, i)
		}
		i++
		run := int(src[i])
		if len(out)+run > limit {
			return nil, fmt.Errorf("%w: limit %d", ErrExpansionLimit, limit)
		}
		for j := 0; j < run; j++ {
			out = append(out, 0)
		}
	}
	return out, nil
}
