package pricing

import "testing"

func TestPriceSingleRider(t *testing.T) {
	// 50 + 10*10 = 150, no discount at pool size 1.
	if got := Price(10, 0, 1); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
}

func TestPriceDetourBilled(t *testing.T) {
	// 50 + 10*10 + 5*4 = 170.
	if got := Price(10, 4, 1); got != 170 {
		t.Fatalf("expected 170, got %d", got)
	}
}

func TestPoolingDiscount(t *testing.T) {
	if got := Price(10, 0, 2); got != 135 {
		t.Fatalf("expected 135 at pool size 2, got %d", got)
	}
	if got := Price(10, 0, 3); got != 120 {
		t.Fatalf("expected 120 at pool size 3, got %d", got)
	}
}

func TestDiscountFloor(t *testing.T) {
	// At 8+ riders the factor would fall below 0.3; it is clamped there.
	want := Price(10, 0, 8)
	for size := 9; size <= 20; size++ {
		if got := Price(10, 0, size); got != want {
			t.Fatalf("expected floor %d at size %d, got %d", want, size, got)
		}
	}
	if want != 45 { // round(150 * 0.3)
		t.Fatalf("expected floored price 45, got %d", want)
	}
}

func TestPriceMonotoneInPoolSize(t *testing.T) {
	prev := Price(12, 3, 1)
	for size := 2; size <= 10; size++ {
		cur := Price(12, 3, size)
		if cur > prev {
			t.Fatalf("price rose from %d to %d at size %d", prev, cur, size)
		}
		prev = cur
	}
}
