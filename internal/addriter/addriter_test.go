package addriter

import (
	"testing"

	"github.com/walexzzy/netmirage/internal/addr"
)

func mustSubnet(t *testing.T, s string) addr.Subnet {
	t.Helper()
	sn, err := addr.ParseSubnet(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return sn
}

func collect(it *Iter) []string {
	var out []string
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, a.String())
	}
	return out
}

func TestSlash30ExcludesReserved(t *testing.T) {
	sn := mustSubnet(t, "10.0.0.0/30")
	got := collect(New(sn, true, nil))
	want := []string{"10.0.0.1", "10.0.0.2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestSlash31BothAddressesYielded(t *testing.T) {
	sn := mustSubnet(t, "10.0.0.0/31")
	got := collect(New(sn, true, nil))
	if len(got) != 2 {
		t.Fatalf("expected 2 addresses for /31, got %v", got)
	}
}

func TestSlash32SingleYield(t *testing.T) {
	sn := mustSubnet(t, "10.0.0.5/32")
	got := collect(New(sn, true, nil))
	if len(got) != 1 || got[0] != "10.0.0.5" {
		t.Fatalf("expected single yield, got %v", got)
	}
}

func TestAvoidSubnetsSkipped(t *testing.T) {
	parent := mustSubnet(t, "10.0.0.0/28")
	avoid := mustSubnet(t, "10.0.0.4/30") // 10.0.0.4-10.0.0.7
	got := collect(New(parent, true, []addr.Subnet{avoid}))
	for _, s := range got {
		a, _ := addr.ParseAddr(s)
		if avoid.Contains(a) {
			t.Fatalf("address %s should have been skipped", s)
		}
	}
	// 16 addresses - 2 reserved - 4 avoided = 10
	if len(got) != 10 {
		t.Fatalf("expected 10 addresses, got %d: %v", len(got), got)
	}
}

func TestOverlappingAvoidRangesMergedImplicitly(t *testing.T) {
	parent := mustSubnet(t, "10.0.0.0/28")
	a1 := mustSubnet(t, "10.0.0.0/30")  // .0-.3
	a2 := mustSubnet(t, "10.0.0.2/31") // .2-.3 (overlaps a1)
	got := collect(New(parent, false, []addr.Subnet{a1, a2}))
	if len(got) != 12 { // 16 - 4 (union of .0-.3)
		t.Fatalf("expected 12 addresses, got %d: %v", len(got), got)
	}
}

func TestFullyExcludedParentYieldsNothing(t *testing.T) {
	parent := mustSubnet(t, "10.0.0.0/30")
	avoid := mustSubnet(t, "10.0.0.0/30")
	it := New(parent, false, []addr.Subnet{avoid})
	if _, ok := it.Next(); ok {
		t.Fatal("expected no addresses")
	}
}

func TestNoAddressOutsideParentEverYielded(t *testing.T) {
	parent := mustSubnet(t, "192.168.5.0/26")
	it := New(parent, true, nil)
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		if !parent.Contains(a) {
			t.Fatalf("yielded %s outside parent %s", a, parent)
		}
	}
}
