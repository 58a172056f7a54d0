package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeAddressRoundTrip(t *testing.T) {
	var payload [addressPayloadLen]byte
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	encoded, err := EncodeAddress(payload)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	if !strings.HasPrefix(encoded, AddressHRP+"1") {
		t.Fatalf("encoded address %q missing hrp prefix", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if decoded != payload {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, payload)
	}
}

func TestDecodeAddressAsciiFallback(t *testing.T) {
	var payload [addressPayloadLen]byte
	for i := range payload {
		payload[i] = byte(200 - i)
	}

	fallback := AsciiFallbackAddress(payload)
	if !strings.HasPrefix(fallback, AddressHRP) {
		t.Fatalf("fallback %q missing hrp prefix", fallback)
	}

	decoded, err := DecodeAddress(fallback)
	if err != nil {
		t.Fatalf("DecodeAddress(fallback): %v", err)
	}
	if decoded != payload {
		t.Fatalf("fallback round trip mismatch: got %x want %x", decoded, payload)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected error decoding garbage input")
	}
}

func TestDecodeAddressRejectsCorruptedChecksum(t *testing.T) {
	var payload [addressPayloadLen]byte
	payload[0] = 1
	encoded, err := EncodeAddress(payload)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	corrupted := []byte(encoded)
	last := corrupted[len(corrupted)-1]
	if last == 'q' {
		corrupted[len(corrupted)-1] = 'p'
	} else {
		corrupted[len(corrupted)-1] = 'q'
	}
	if _, err := DecodeAddress(string(corrupted)); err == nil {
		t.Fatal("expected checksum failure on corrupted address")
	}
}

func TestGenerateKeypairProducesDistinctValidAddresses(t *testing.T) {
	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	if kp1.Address == kp2.Address {
		t.Fatal("two independently generated keypairs produced the same address")
	}
	if bytes.Equal(kp1.PrivateKey.Serialize(), kp2.PrivateKey.Serialize()) {
		t.Fatal("two independently generated keypairs share a private key")
	}

	if _, err := DecodeAddress(kp1.Address); err != nil {
		t.Fatalf("generated address %q does not decode: %v", kp1.Address, err)
	}
}
