package rewards

import "testing"

func TestPersistentConfig_AddTokens_Dedupe(t *testing.T) {
	cfg := NewPersistentConfig()

	added := cfg.AddTokens("570", []Token{"TOKEN1", "TOKEN2"})
	if added != 2 {
		t.Fatalf("first AddTokens added %d, want 2", added)
	}

	// Re-discovering the same tokens must not grow the entry.
	added = cfg.AddTokens("570", []Token{"TOKEN2", "TOKEN1", "TOKEN3"})
	if added != 1 {
		t.Fatalf("second AddTokens added %d, want 1", added)
	}

	got := cfg.Tokens("570")
	want := []Token{"TOKEN1", "TOKEN2", "TOKEN3"}
	if len(got) != len(want) {
		t.Fatalf("Tokens() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokens()[%d] = %q, want %q (discovery order must be preserved)", i, got[i], want[i])
		}
	}
}

func TestPersistentConfig_AddTokens_SkipsEmpty(t *testing.T) {
	cfg := NewPersistentConfig()
	if added := cfg.AddTokens("570", []Token{"", "TOKEN1", ""}); added != 1 {
		t.Errorf("AddTokens added %d, want 1", added)
	}
}

func TestPersistentConfig_Tokens_ReturnsCopy(t *testing.T) {
	cfg := NewPersistentConfig()
	cfg.AddTokens("570", []Token{"TOKEN1"})

	got := cfg.Tokens("570")
	got[0] = "MUTATED"

	if cfg.Tokens("570")[0] != "TOKEN1" {
		t.Error("Tokens() did not return a copy")
	}
}

func TestPersistentConfig_Tokens_MissingKey(t *testing.T) {
	cfg := NewPersistentConfig()
	if got := cfg.Tokens("absent"); got != nil {
		t.Errorf("Tokens() for missing key = %v, want nil", got)
	}
}

func TestPersistentConfig_Params(t *testing.T) {
	cfg := NewPersistentConfig()

	if _, ok := cfg.Params("440"); ok {
		t.Fatal("Params() reported entry for empty aggregate")
	}

	if changed := cfg.SetParams("440", ClaimParams{SubID: "123"}); !changed {
		t.Error("SetParams on fresh key reported no change")
	}
	if changed := cfg.SetParams("440", ClaimParams{SubID: "123"}); changed {
		t.Error("SetParams with identical params reported a change")
	}
	if changed := cfg.SetParams("440", ClaimParams{SubID: "123", BundleID: "9"}); !changed {
		t.Error("SetParams with new bundle id reported no change")
	}

	p, ok := cfg.Params("440")
	if !ok || p.SubID != "123" || p.BundleID != "9" {
		t.Errorf("Params() = %+v, %v", p, ok)
	}
}

func TestPersistentConfig_Clone(t *testing.T) {
	cfg := NewPersistentConfig()
	cfg.AddTokens("570", []Token{"TOKEN1"})
	cfg.SetParams("440", ClaimParams{SubID: "123"})

	clone := cfg.Clone()
	clone.AddTokens("570", []Token{"TOKEN2"})
	clone.SetParams("440", ClaimParams{SubID: "999"})

	if len(cfg.Tokens("570")) != 1 {
		t.Error("clone mutation leaked into original token map")
	}
	if p, _ := cfg.Params("440"); p.SubID != "123" {
		t.Error("clone mutation leaked into original params map")
	}
}

func TestClaimParams_IsZero(t *testing.T) {
	if !(ClaimParams{}).IsZero() {
		t.Error("empty params should be zero")
	}
	if (ClaimParams{SubID: "1"}).IsZero() {
		t.Error("params with subid should not be zero")
	}
}
