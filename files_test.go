package curlfuzz

import (
	"testing"
)

func TestFileFromReturnsProperContents(t *testing.T) {
	file, err := FileFrom("./testpayloads/payload.php")
	if err != nil {
		t.Fatal(err)
	}

	const expectedPayload = "<?php echo phpinfo(); ?>"
	actualPayload := string(file.Payload)
	if actualPayload != expectedPayload {
		t.Fatalf("Expected %s, got %s", expectedPayload, actualPayload)
	}

	if file.Size != int64(len(actualPayload)) {
		t.Fatalf("Mismatched file metadata size.")
	}

	const expectedFileName = "payload.php"
	if file.Name != expectedFileName {
		t.Fatalf("Expected %s, got %s", expectedFileName, file.Name)
	}
}

func TestPayloadsFromDirectory(t *testing.T) {
	payloads, err := PayloadsFromDirectory("./testpayloads")
	if err != nil {
		t.Fatal(err)
	}

	if len(payloads) != 2 {
		t.Fatalf("Expected 2 payloads, got %d", len(payloads))
	}

	found := false
	for _, payload := range payloads {
		if payload == "<?php echo phpinfo(); ?>" {
			found = true
		}
	}
	if !found {
		t.Fatalf("payload.php missing from %v", payloads)
	}
}

func TestPayloadsFromMissingDirectory(t *testing.T) {
	if _, err := PayloadsFromDirectory("./notfound"); err == nil {
		t.Fatal("expected error")
	}
}
