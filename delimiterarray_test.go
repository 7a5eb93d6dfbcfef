package curlfuzz

import (
	"reflect"
	"testing"
)

func TestDelimiterArrayLookupFindsCorrectOffsets(t *testing.T) {
	contents := []byte("The delimiter is the `backtick` character")
	delimiter := []byte("`")
	array := &DelimiterArray{Contents: contents}

	expectedOffsets := []int{21, 30}
	offsets := array.Lookup(delimiter)
	if !reflect.DeepEqual(expectedOffsets, offsets) {
		t.Fatalf("Expected %+v, got %+v", expectedOffsets, offsets)
	}
}

func TestDelimiterArrayLookupMultiByteDelimiter(t *testing.T) {
	array := &DelimiterArray{Contents: []byte("a***b***c******")}

	expectedOffsets := []int{1, 5, 9, 12}
	offsets := array.Lookup([]byte(InjectionDelimiter))
	if !reflect.DeepEqual(expectedOffsets, offsets) {
		t.Fatalf("Expected %+v, got %+v", expectedOffsets, offsets)
	}
}

func TestDelimiterArrayGetReturnsCorrectOffsets(t *testing.T) {
	contents := []byte("The delimiter is the `backtick` character")
	delimiter := []byte("`")
	array := &DelimiterArray{Contents: contents}

	start, end, err := array.Get(0, delimiter)
	if err != nil {
		t.Fatal(err)
	}

	const expectedStart = 21
	const expectedEnd = 30
	if start != expectedStart {
		t.Fatalf("Expected start %d, got %d", expectedStart, start)
	}

	if end != expectedEnd {
		t.Fatalf("Expected end %d got %d", expectedEnd, end)
	}
}

func TestDelimiterArrayGetOutOfRange(t *testing.T) {
	array := &DelimiterArray{Contents: []byte("`one` `two`")}
	if _, _, err := array.Get(2, []byte("`")); err == nil {
		t.Fatal("expected an error for a position past the last region")
	}
	if _, _, err := array.Get(-1, []byte("`")); err == nil {
		t.Fatal("expected an error for a negative position")
	}
}

func TestDelimiterArrayCountRejectsUnbalancedDelimiters(t *testing.T) {
	array := &DelimiterArray{Contents: []byte("`one` `two")}
	if _, err := array.Count([]byte("`")); err == nil {
		t.Fatal("expected an error for an odd number of delimiters")
	}

	array = &DelimiterArray{Contents: []byte("`one` `two`")}
	count, err := array.Count([]byte("`"))
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 regions, got %d", count)
	}
}
