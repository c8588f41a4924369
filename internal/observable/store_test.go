package observable

import "testing"

func TestStoreGetSet(t *testing.T) {
	s := New(3)
	if s.Get() != 3 {
		t.Fatalf("Get() = %d, want 3", s.Get())
	}
	s.Set(5)
	if s.Get() != 5 {
		t.Errorf("Get() = %d, want 5", s.Get())
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := New("")
	var a, b []string
	unsubA := s.Subscribe(func(v string) { a = append(a, v) })
	s.Subscribe(func(v string) { b = append(b, v) })

	s.Set("one")
	unsubA()
	unsubA()
	s.Set("two")

	if len(a) != 1 || a[0] != "one" {
		t.Errorf("first subscriber saw %v", a)
	}
	if len(b) != 2 || b[1] != "two" {
		t.Errorf("second subscriber saw %v", b)
	}
}

func TestUpdate(t *testing.T) {
	s := New(1)
	var seen int
	s.Subscribe(func(v int) { seen = v })

	if got := s.Update(func(v int) int { return v + 10 }); got != 11 {
		t.Errorf("Update returned %d", got)
	}
	if seen != 11 {
		t.Errorf("subscriber saw %d, want 11", seen)
	}
}

func TestSubscriberMaySetReentrantly(t *testing.T) {
	s := New(0)
	s.Subscribe(func(v int) {
		if v == 1 {
			s.Set(2)
		}
	})
	s.Set(1)
	if s.Get() != 2 {
		t.Errorf("Get() = %d, want 2", s.Get())
	}
}
