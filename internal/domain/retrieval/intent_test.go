package retrieval

import "testing"

func TestClassifyIntent_SecurityExample(t *testing.T) {
	intent, _ := ClassifyIntent("fix the authentication vulnerability in the login page")
	if intent != IntentSecurity {
		t.Fatalf("expected security, got %s", intent)
	}
	r := classify("fix the authentication vulnerability in the login page")
	if r.score < 1.9 {
		t.Errorf("expected score >= 1.9, got %v", r.score)
	}
}

func TestClassifyIntent_EmptyFallsBackToGeneral(t *testing.T) {
	intent, confidence := ClassifyIntent("")
	if intent != IntentGeneral {
		t.Fatalf("expected general, got %s", intent)
	}
	if confidence != 0.1 {
		t.Errorf("expected confidence 0.1, got %v", confidence)
	}
}

func TestClassifyIntent_RefactorPhrase(t *testing.T) {
	intent, _ := ClassifyIntent("refactor this module to simplify the flow")
	if intent != IntentRefactor {
		t.Fatalf("expected refactor, got %s", intent)
	}
}

func TestClassifyIntent_ConfidenceCapped(t *testing.T) {
	_, confidence := ClassifyIntent("vulnerability exploit injection CVE-2024-1234 xss csrf sqli secret credential")
	if confidence != 1.0 {
		t.Errorf("expected confidence capped at 1.0, got %v", confidence)
	}
}
