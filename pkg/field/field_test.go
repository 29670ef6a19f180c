package field

import "testing"

func TestAddSubRoundTrip(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(9)
	sum := a.Add(b)
	if !sum.Sub(b).Equal(a) {
		t.Fatalf("(a+b)-b != a")
	}
}

func TestInverse(t *testing.T) {
	a := FromUint64(42)
	inv := a.Inverse()
	if !a.Mul(inv).Equal(One()) {
		t.Fatalf("a * a^-1 != 1")
	}
}

func TestInverseOfZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on inverse of zero")
		}
	}()
	Zero().Inverse()
}

func TestBytesRoundTrip(t *testing.T) {
	a := FromUint64(123456789)
	b := SetBytes(a.Bytes())
	if !a.Equal(b) {
		t.Fatalf("bytes round-trip mismatch")
	}
}

func TestDomainDeterministic(t *testing.T) {
	c1 := FromUint64(1)
	c2 := FromUint64(2)
	r1 := Domain("commitment", c1, c2)
	r2 := Domain("commitment", c1, c2)
	if !r1.Equal(r2) {
		t.Fatalf("Domain is not deterministic")
	}
}

func TestDomainSeparation(t *testing.T) {
	c1 := FromUint64(1)
	c2 := FromUint64(2)
	r1 := Domain("block", c1, c2)
	r2 := Domain("epoch", c1, c2)
	if r1.Equal(r2) {
		t.Fatalf("different domain tags produced equal output")
	}
}

func TestDomainOrderSensitive(t *testing.T) {
	c1 := FromUint64(1)
	c2 := FromUint64(2)
	r1 := Domain("t", c1, c2)
	r2 := Domain("t", c2, c1)
	if r1.Equal(r2) {
		t.Fatalf("Domain must be sensitive to child order")
	}
}

func TestHashToFieldDeterministicAndSeparated(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	a := HashToField("PenumbraMint", data)
	b := HashToField("PenumbraMint", data)
	if !a.Equal(b) {
		t.Fatalf("HashToField is not deterministic")
	}
	c := HashToField("OtherTag", data)
	if a.Equal(c) {
		t.Fatalf("different tags produced equal hash")
	}
}

func TestZeroIsZero(t *testing.T) {
	if !Zero().IsZero() {
		t.Fatalf("Zero() is not IsZero()")
	}
	if FromUint64(1).IsZero() {
		t.Fatalf("One is reported as zero")
	}
}
