package auth

import "testing"

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: "0123456789abcdef"},
		{name: "too short", token: "short", wantErr: true},
		{name: "whitespace", token: " 0123456789abcdef ", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !IsHash(hash) {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}
	if IsHash(token) {
		t.Fatal("plain token should not look like a hash")
	}
	if !VerifyToken(hash, token) {
		t.Fatal("expected token to verify")
	}
	if VerifyToken(hash, "wrong-token-value") {
		t.Fatal("expected wrong token to fail")
	}
	if VerifyToken("", token) {
		t.Fatal("expected empty hash to fail")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer  abc ", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer"},
		{header: ""},
	}

	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("BearerToken(%q)=(%q,%v) want (%q,%v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
