package digest

import "testing"

func TestOfStability(t *testing.T) {
	a := OfString("module M\nschema S:\n  object Person\n")
	b := OfString("module M\nschema S:\n  object Person\n")
	if a != b {
		t.Fatalf("digest not stable: %s != %s", a, b)
	}
	if a[:len(Prefix)] != Prefix {
		t.Fatalf("missing prefix: %s", a)
	}
}

func TestOfDiffers(t *testing.T) {
	a := OfString("alice")
	b := OfString("bob")
	if a == b {
		t.Fatalf("expected distinct digests")
	}
}

func TestOfFactFieldOrderIndependent(t *testing.T) {
	a := OfFact("S", "Parent", []Pair{{"parent", "Alice"}, {"child", "Bob"}})
	b := OfFact("S", "Parent", []Pair{{"child", "Bob"}, {"parent", "Alice"}})
	if a != b {
		t.Fatalf("fact digest must be order-independent: %s != %s", a, b)
	}
}

func TestOfFactDistinguishesValues(t *testing.T) {
	a := OfFact("S", "Parent", []Pair{{"parent", "Alice"}, {"child", "Bob"}})
	b := OfFact("S", "Parent", []Pair{{"parent", "Alice"}, {"child", "Carol"}})
	if a == b {
		t.Fatalf("expected distinct digests for distinct tuples")
	}
}
