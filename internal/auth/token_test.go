package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := NewTokenCodec("test-secret", 15*time.Minute, 7*24*time.Hour)
	user := &User{ID: "user-1", UserType: UserTypeStudent, IsAdmin: true, EmailVerified: true}

	token, exp, err := codec.SignAccess(user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry %v is not in the future", exp)
	}

	claims, err := codec.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.UserType != UserTypeStudent || !claims.IsAdmin || !claims.EmailVerified {
		t.Errorf("claims = %+v, payload fields lost", claims)
	}
}

func TestRefreshTokenCarriesTokenID(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Minute, time.Hour)
	user := &User{ID: "user-1"}

	token, _, err := codec.SignRefresh(user, "tok-42")
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	claims, err := codec.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.TokenID != "tok-42" || claims.Subject != "user-1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	codec := &TokenCodec{secret: []byte("test-secret"), accessTTL: -time.Minute, refreshTTL: time.Hour}
	token, _, err := codec.SignAccess(&User{ID: "user-1"})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	if _, err := codec.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewTokenCodec("secret-a", time.Minute, time.Hour)
	verifier := NewTokenCodec("secret-b", time.Minute, time.Hour)

	token, _, err := signer.SignAccess(&User{ID: "user-1"})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if _, err := verifier.VerifyAccess(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Minute, time.Hour)
	if _, err := codec.VerifyAccess("not.a.token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestDecodeAccessUnverified(t *testing.T) {
	codec := NewTokenCodec("secret-a", time.Minute, time.Hour)
	other := NewTokenCodec("secret-b", time.Minute, time.Hour)

	token, _, err := codec.SignAccess(&User{ID: "user-1", UserType: UserTypeMentor})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	// Decoding must not depend on the verifier key.
	claims := other.DecodeAccessUnverified(token)
	if claims == nil || claims.Subject != "user-1" || claims.UserType != UserTypeMentor {
		t.Fatalf("claims = %+v", claims)
	}
	if other.DecodeAccessUnverified("garbage") != nil {
		t.Fatal("expected nil claims for garbage input")
	}
}
