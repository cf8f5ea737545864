package core

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	secret, public, err := GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	msg := []byte("alice100bob")

	sig, err := Sign(msg, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(msg, sig, public) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	secret, public, err := GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	msg := []byte("alice100bob")
	sig, err := Sign(msg, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := Base64Decode(sig)
	if err != nil {
		t.Fatalf("decode sig: %v", err)
	}
	raw[0] ^= 0xFF
	tampered := Base64Encode(raw)

	if Verify(msg, tampered, public) {
		t.Fatalf("expected tampered signature to fail verification")
	}
}

func TestVerifyRejectsTamperedPreimage(t *testing.T) {
	secret, public, err := GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	sig, err := Sign([]byte("alice100bob"), secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if Verify([]byte("alice200bob"), sig, public) {
		t.Fatalf("expected mutated preimage to fail verification")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if Verify([]byte("m"), "not-base64!!", "also-not-base64!!") {
		t.Fatalf("expected garbage input to fail verification")
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xFF, 0x7F}
	encoded := Base64Encode(data)
	decoded, err := Base64Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(data) {
		t.Fatalf("round trip mismatch")
	}
}
