package oauth

import "testing"

func TestComputeS256Challenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := ComputeS256Challenge(verifier); got != want {
		t.Fatalf("ComputeS256Challenge() = %v, want %v", got, want)
	}
}

func TestValidatePKCE(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if !ValidatePKCE(verifier, challenge, "S256") {
		t.Fatal("expected S256 validation to pass")
	}
	if ValidatePKCE(verifier, challenge, "plain") {
		t.Fatal("expected plain validation against S256 challenge to fail")
	}
	if !ValidatePKCE(verifier, verifier, "plain") {
		t.Fatal("expected plain validation to pass")
	}
	if !ValidatePKCE(verifier, verifier, "") {
		t.Fatal("expected empty method to default to plain")
	}
	if ValidatePKCE("short", challenge, "S256") {
		t.Fatal("expected validation to fail for invalid verifier")
	}
	if ValidatePKCE(verifier, "invalid", "S256") {
		t.Fatal("expected validation to fail for mismatched challenge")
	}
	if ValidatePKCE(verifier, challenge, "S512") {
		t.Fatal("expected validation to fail for unknown method")
	}
}

func TestValidateCodeChallenge(t *testing.T) {
	valid := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if !ValidateCodeChallenge(valid) {
		t.Fatal("expected valid code challenge")
	}
	if ValidateCodeChallenge("short") {
		t.Fatal("expected invalid length to fail")
	}
	if ValidateCodeChallenge("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw+cM") {
		t.Fatal("expected invalid characters to fail")
	}
}

func TestValidCodeChallengeMethod(t *testing.T) {
	for _, method := range []string{"", "plain", "S256"} {
		if !ValidCodeChallengeMethod(method) {
			t.Fatalf("expected method %q supported", method)
		}
	}
	if ValidCodeChallengeMethod("S512") {
		t.Fatal("expected unknown method rejected")
	}
}
