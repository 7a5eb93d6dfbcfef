package curlfuzz

import (
	"os"
	"testing"
)

func TestWordlistCountIsAccurate(t *testing.T) {
	wlFile, err := os.Open("./testdata/useragents.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer wlFile.Close()

	wordlist := &Wordlist{File: wlFile}
	count, err := wordlist.Count()
	if err != nil {
		t.Fatal(err)
	}

	const expectedCount = 5
	if count != expectedCount {
		t.Fatalf("Expected %d, got %d", expectedCount, count)
	}

	wordsReceived := 0
	for range wordlist.Stream() {
		wordsReceived++
		if wordsReceived > count {
			t.Fatalf("Expected %d words, got %d", count, wordsReceived)
		}
	}

	if wordsReceived < count {
		t.Fatalf("Expected %d words, got %d", count, wordsReceived)
	}
}

func TestWordlistPayloadsRewindsFile(t *testing.T) {
	wlFile, err := os.Open("./testdata/useragents.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer wlFile.Close()

	wordlist := &Wordlist{File: wlFile}
	payloads, err := wordlist.Payloads()
	if err != nil {
		t.Fatal(err)
	}

	if len(payloads) != 5 {
		t.Fatalf("Expected 5 payloads, got %d", len(payloads))
	}

	again, err := wordlist.Payloads()
	if err != nil {
		t.Fatal(err)
	}

	if len(again) != len(payloads) || again[0] != payloads[0] {
		t.Fatalf("Second read returned %v", again)
	}
}
