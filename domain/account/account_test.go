package account

import "testing"

func TestAccount_Identity(t *testing.T) {
	tests := []struct {
		name     string
		account  *Account
		expected string
	}{
		{
			name:     "with id and name",
			account:  &Account{ID: "76561198000000001", Name: "alice"},
			expected: "76561198000000001 (alice)",
		},
		{
			name:     "id only",
			account:  &Account{ID: "76561198000000002"},
			expected: "76561198000000002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.Identity(); got != tt.expected {
				t.Errorf("Identity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAccount_Clone(t *testing.T) {
	original := &Account{
		ID:           "76561198000000001",
		Name:         "alice",
		SharedSecret: "secret",
		Cookies:      []Cookie{{Name: "sessionid", Value: "abc123"}},
	}

	clone := original.Clone()

	if clone.ID != original.ID || clone.Name != original.Name || clone.SharedSecret != original.SharedSecret {
		t.Errorf("scalar fields not copied: %+v", clone)
	}
	if len(clone.Cookies) != len(original.Cookies) {
		t.Fatalf("cookies length mismatch")
	}

	clone.Cookies[0].Value = "modified"
	if original.Cookies[0].Value == "modified" {
		t.Error("cookies slice was not deep copied")
	}
}

func TestAccessTokenFromCookies(t *testing.T) {
	tests := []struct {
		name    string
		cookies []Cookie
		want    string
		wantErr bool
	}{
		{
			name: "token after delimiter",
			cookies: []Cookie{
				{Name: "sessionid", Value: "deadbeef"},
				{Name: "steamLoginSecure", Value: "76561198000000001%7C%7CeyJhbGciOiJFUzI1NiJ9.payload.sig"},
			},
			want: "eyJhbGciOiJFUzI1NiJ9.payload.sig",
		},
		{
			name: "last delimiter wins",
			cookies: []Cookie{
				{Name: "steamLoginSecure", Value: "a%7C%7Cb%7C%7Cfinal"},
			},
			want: "final",
		},
		{
			name: "cookie absent",
			cookies: []Cookie{
				{Name: "sessionid", Value: "deadbeef"},
			},
			wantErr: true,
		},
		{
			name: "no delimiter in value",
			cookies: []Cookie{
				{Name: "steamLoginSecure", Value: "justanid"},
			},
			wantErr: true,
		},
		{
			name: "empty token after delimiter",
			cookies: []Cookie{
				{Name: "steamLoginSecure", Value: "76561198000000001%7C%7C"},
			},
			wantErr: true,
		},
		{
			name:    "no cookies at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AccessTokenFromCookies(tt.cookies)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AccessTokenFromCookies() = %q, want %q", got, tt.want)
			}
		})
	}
}
