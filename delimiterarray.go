package curlfuzz

import (
	"bytes"
	"fmt"
)

// A DelimiterArray finds the positions of a delimiter within a byte slice.
type DelimiterArray struct {
	Contents []byte
}

// Lookup returns the non-overlapping offsets of delimiter within Contents in O(n) time.
func (d *DelimiterArray) Lookup(delimiter []byte) []int {
	offsets := []int{}
	if len(delimiter) == 0 {
		return offsets
	}

	for index := 0; index+len(delimiter) <= len(d.Contents); {
		if bytes.HasPrefix(d.Contents[index:], delimiter) {
			offsets = append(offsets, index)
			index += len(delimiter)
			continue
		}
		index++
	}
	return offsets
}

// Count returns the number of delimited regions in Contents.
// Delimiters come in pairs, so an odd number of them is an error.
func (d *DelimiterArray) Count(delimiter []byte) (int, error) {
	offsets := d.Lookup(delimiter)
	if len(offsets)%2 != 0 {
		return 0, fmt.Errorf("unbalanced delimiter %q: found %d occurrences", delimiter, len(offsets))
	}
	return len(offsets) / 2, nil
}

// Get returns the offsets of the opening and closing delimiters of the region at position.
func (d *DelimiterArray) Get(position int, delimiter []byte) (start, end int, err error) {
	offsets := d.Lookup(delimiter)
	if len(offsets)%2 != 0 {
		return 0, 0, fmt.Errorf("unbalanced delimiter %q: found %d occurrences", delimiter, len(offsets))
	}

	if position < 0 || position*2+1 >= len(offsets) {
		return 0, 0, fmt.Errorf("position %d out of range, %d delimited regions", position, len(offsets)/2)
	}
	return offsets[position*2], offsets[position*2+1], nil
}
