package password

import "testing"

func TestHashAndVerify(t *testing.T) {
	hashed, err := Hash("s3cret-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !Verify("s3cret-password", hashed) {
		t.Fatalf("expected password to verify")
	}
	if Verify("wrong-password", hashed) {
		t.Fatalf("expected wrong password to fail")
	}
	if Verify("s3cret-password", "not-a-hash") {
		t.Fatalf("expected malformed hash to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	first, err := Hash("same-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := Hash("same-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
}
