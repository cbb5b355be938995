package stateid

import "testing"

func TestSelectPrefersDelegationOverLockOverOpen(t *testing.T) {
	open := Stateid{Seqid: 1, Other: [OtherSize]byte{1}}
	lock := Stateid{Seqid: 2, Other: [OtherSize]byte{2}}
	deleg := Stateid{Seqid: 3, Other: [OtherSize]byte{3}}

	if got := Select(open, nil, nil); got != open {
		t.Fatalf("Select with no lock/delegation = %v, want open stateid %v", got, open)
	}
	if got := Select(open, &lock, nil); got != lock {
		t.Fatalf("Select with lock only = %v, want lock stateid %v", got, lock)
	}
	if got := Select(open, &lock, &deleg); got != deleg {
		t.Fatalf("Select with lock and delegation = %v, want delegation stateid %v", got, deleg)
	}
}

func TestSpecialStateids(t *testing.T) {
	if !Special().IsSpecial() {
		t.Fatalf("Special() should report IsSpecial() == true")
	}
	if !ReadBypass().IsSpecial() {
		t.Fatalf("ReadBypass() should report IsSpecial() == true")
	}
	ordinary := Stateid{Seqid: 1, Other: [OtherSize]byte{1}}
	if ordinary.IsSpecial() {
		t.Fatalf("an ordinary stateid must not report IsSpecial() == true")
	}
}
