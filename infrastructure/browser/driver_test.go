package browser

import "testing"

func TestSeedPlan_DottedDomainUsesOriginURL(t *testing.T) {
	cookies := []Cookie{
		{Name: "steamLoginSecure", Value: "v", Domain: ".steampowered.com", Path: "/", Secure: true},
	}

	plan, err := SeedPlan(cookies, "https://store.steampowered.com/points/shop/app/570")
	if err != nil {
		t.Fatalf("SeedPlan() error: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan length = %d", len(plan))
	}

	sc := plan[0]
	if sc.URL != "https://steampowered.com/" {
		t.Errorf("URL = %q, want origin form without leading dot", sc.URL)
	}
	if sc.Domain != "" || sc.Path != "" {
		t.Errorf("dotted-domain cookie must not carry explicit domain/path, got %q/%q", sc.Domain, sc.Path)
	}
}

func TestSeedPlan_DottedDomainWithoutPath(t *testing.T) {
	cookies := []Cookie{{Name: "c", Value: "v", Domain: ".example.com"}}

	plan, err := SeedPlan(cookies, "https://store.example.com/")
	if err != nil {
		t.Fatalf("SeedPlan() error: %v", err)
	}
	if plan[0].URL != "https://example.com/" {
		t.Errorf("URL = %q, want path to default to /", plan[0].URL)
	}
}

func TestSeedPlan_ExplicitDomainAndPath(t *testing.T) {
	cookies := []Cookie{
		{Name: "sessionid", Value: "v", Domain: "store.steampowered.com", Path: "/"},
	}

	plan, err := SeedPlan(cookies, "https://store.steampowered.com/app/440")
	if err != nil {
		t.Fatalf("SeedPlan() error: %v", err)
	}

	sc := plan[0]
	if sc.URL != "" {
		t.Errorf("URL should be empty for explicit domain cookies, got %q", sc.URL)
	}
	if sc.Domain != "store.steampowered.com" || sc.Path != "/" {
		t.Errorf("domain/path = %q/%q", sc.Domain, sc.Path)
	}
}

func TestSeedPlan_MissingDomainFallsBackToPageHost(t *testing.T) {
	cookies := []Cookie{{Name: "c", Value: "v"}}

	plan, err := SeedPlan(cookies, "https://store.steampowered.com/app/440")
	if err != nil {
		t.Fatalf("SeedPlan() error: %v", err)
	}
	if plan[0].Domain != "store.steampowered.com" || plan[0].Path != "/" {
		t.Errorf("fallback domain/path = %q/%q", plan[0].Domain, plan[0].Path)
	}
}

func TestSeedPlan_SameSiteNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Lax"},
		{"lax", "Lax"},
		{"Lax", "Lax"},
		{"strict", "Strict"},
		{"NONE", "None"},
		{"bogus", "Lax"},
	}

	for _, tt := range tests {
		cookies := []Cookie{{Name: "c", Value: "v", SameSite: tt.in}}
		plan, err := SeedPlan(cookies, "https://example.com/")
		if err != nil {
			t.Fatalf("SeedPlan() error: %v", err)
		}
		if plan[0].SameSite != tt.want {
			t.Errorf("SameSite(%q) = %q, want %q", tt.in, plan[0].SameSite, tt.want)
		}
	}
}

func TestSeedPlan_InvalidPageURL(t *testing.T) {
	if _, err := SeedPlan(nil, "not a url"); err == nil {
		t.Fatal("expected error for unparseable page URL")
	}
}

func TestJSArg(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{`div.item`, `"div.item"`},
		{`a[href*="steam://run/"]`, `"a[href*=\"steam://run/\"]"`},
		{[]string{"Free", "Бесплатно"}, `["Free","Бесплатно"]`},
		{[]string(nil), `null`},
	}

	for _, tt := range tests {
		if got := jsArg(tt.in); got != tt.want {
			t.Errorf("jsArg(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
