package addr

import "testing"

func TestParseAndFormatAddr(t *testing.T) {
	a, err := ParseAddr("192.168.1.130")
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "192.168.1.130" {
		t.Fatalf("unexpected: %s", a)
	}
}

func TestParseAddrInvalid(t *testing.T) {
	cases := []string{"1.2.3", "1.2.3.4.5", "256.1.1.1", "a.b.c.d", ""}
	for _, c := range cases {
		if _, err := ParseAddr(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestParseSubnetCanonicalizes(t *testing.T) {
	sn, err := ParseSubnet("192.168.1.130/25")
	if err != nil {
		t.Fatal(err)
	}
	if sn.String() != "192.168.1.128/25" {
		t.Fatalf("unexpected: %s", sn)
	}
	if sn.Size(false) != 128 {
		t.Fatalf("size mismatch: %d", sn.Size(false))
	}
	if !sn.HasReserved() {
		t.Fatal("expected reserved addresses present")
	}
	if sn.Start().String() != "192.168.1.128" {
		t.Fatalf("start mismatch: %s", sn.Start())
	}
	if sn.End().String() != "192.168.1.255" {
		t.Fatalf("end mismatch: %s", sn.End())
	}
}

func TestParseSubnetIdempotent(t *testing.T) {
	a, err := ParseSubnet("10.0.0.5/24")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseSubnet("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("canonicalisation not idempotent: %s vs %s", a, b)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	inputs := []string{"10.0.0.0/8", "192.168.1.128/25", "0.0.0.0/0", "255.255.255.255/32", "10.1.2.3/31"}
	for _, in := range inputs {
		sn, err := ParseSubnet(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		sn2, err := ParseSubnet(sn.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", sn, err)
		}
		if sn != sn2 {
			t.Fatalf("round trip mismatch: %s vs %s", sn, sn2)
		}
	}
}

func TestHasReservedBoundary(t *testing.T) {
	sn31, _ := ParseSubnet("10.0.0.0/31")
	if sn31.HasReserved() {
		t.Fatal("/31 must not have reserved addresses")
	}
	sn32, _ := ParseSubnet("10.0.0.5/32")
	if sn32.HasReserved() {
		t.Fatal("/32 must not have reserved addresses")
	}
	if sn32.Size(true) != 1 {
		t.Fatalf("/32 excludeReserved size should stay 1, got %d", sn32.Size(true))
	}
	sn30, _ := ParseSubnet("10.0.0.0/30")
	if !sn30.HasReserved() {
		t.Fatal("/30 must have reserved addresses")
	}
}

func TestContains(t *testing.T) {
	sn, _ := ParseSubnet("10.0.0.0/24")
	in, _ := ParseAddr("10.0.0.200")
	out, _ := ParseAddr("10.0.1.1")
	if !sn.Contains(in) {
		t.Fatal("expected containment")
	}
	if sn.Contains(out) {
		t.Fatal("expected no containment")
	}
}

func TestOverlapsUsesShorterPrefix(t *testing.T) {
	a, _ := ParseSubnet("10.0.0.0/8")
	b, _ := ParseSubnet("10.1.2.0/24")
	c, _ := ParseSubnet("11.0.0.0/8")
	if !a.Overlaps(b) {
		t.Fatal("expected overlap (b contained in a)")
	}
	if a.Overlaps(c) {
		t.Fatal("did not expect overlap")
	}
}

func TestInvalidPrefixLen(t *testing.T) {
	if _, err := ParseSubnet("10.0.0.0/33"); err == nil {
		t.Fatal("expected error for prefix > 32")
	}
	if _, err := ParseSubnet("10.0.0.0/-1"); err == nil {
		t.Fatal("expected error for negative prefix")
	}
}
