package genpass

import "testing"

func TestGenerateRespectsLength(t *testing.T) {
	opts := DefaultOptions()
	opts.Length = 24
	pw, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(pw) != 24 {
		t.Errorf("len(Generate()) = %d, want 24", len(pw))
	}
}

func TestGenerateNoCharacterClassesFails(t *testing.T) {
	_, err := Generate(Options{Length: 12})
	if err == nil {
		t.Fatal("Generate() with no character classes succeeded, want an error")
	}
}

func TestGenerateExcludesSimilarAndAmbiguous(t *testing.T) {
	opts := DefaultOptions()
	opts.Length = 200
	pw, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, c := range similarChars + ambigChars {
		for _, got := range pw {
			if got == c {
				t.Fatalf("Generate() contains excluded character %q", c)
			}
		}
	}
}

func TestGenerateProducesDistinctPasswords(t *testing.T) {
	a, err := Generate(DefaultOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, err := Generate(DefaultOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a == b {
		t.Error("Generate() produced identical passwords across calls")
	}
}

func TestStrengthEmptyPassword(t *testing.T) {
	score, feedback := Strength("")
	if score != 0 {
		t.Errorf("Strength(\"\") score = %d, want 0", score)
	}
	if len(feedback) != 1 || feedback[0] != "password is empty" {
		t.Errorf("Strength(\"\") feedback = %v", feedback)
	}
}

func TestStrengthOrdering(t *testing.T) {
	weak, _ := Strength("abc")
	strong, _ := Strength("Tr0ub4dor&3xtraLength!")
	if weak >= strong {
		t.Errorf("Strength(weak) = %d, Strength(strong) = %d, want weak < strong", weak, strong)
	}
}
