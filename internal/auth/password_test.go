package auth

import "testing"

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Sup3rsafe", false},
		{"valid without special char", "Password1", false},
		{"too short", "Ab1", true},
		{"no uppercase", "password1", true},
		{"no lowercase", "PASSWORD1", true},
		{"no digit", "Passwords", true},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: ValidatePassword(%q) = %v, wantErr %v", tc.name, tc.password, err, tc.wantErr)
		}
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher()
	hash, err := h.Hash("Sup3rsafe")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Compare(hash, "Sup3rsafe") {
		t.Error("correct password rejected")
	}
	if h.Compare(hash, "sup3rsafe") {
		t.Error("wrong password accepted")
	}
}
