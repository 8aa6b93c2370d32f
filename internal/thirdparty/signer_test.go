package thirdparty

import "testing"

func TestSignHMAC(t *testing.T) {
	canonical := "POST\n/hook\n1700000000\nnonce\nbodyhash"
	got := SignHMAC("secret", canonical)
	if len(got) != 64 { // hex-encoded sha256 length
		t.Fatalf("bad length: %s", got)
	}
	if !VerifyHMAC("secret", canonical, got) {
		t.Fatal("signature should verify")
	}
	if VerifyHMAC("other", canonical, got) {
		t.Fatal("signature with wrong secret should not verify")
	}
}
