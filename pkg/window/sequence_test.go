package window

import "testing"

func rows(n int) ([][]float64, []float64) {
	features := make([][]float64, n)
	target := make([]float64, n)
	for i := range features {
		features[i] = []float64{float64(i), float64(i * 10)}
		target[i] = float64(i) / 100
	}
	return features, target
}

func TestMakeWindowsCount(t *testing.T) {
	cases := []struct {
		n, steps, want int
	}{
		{n: 100, steps: 30, want: 70},
		{n: 31, steps: 30, want: 1},
		{n: 30, steps: 30, want: 0},
		{n: 10, steps: 30, want: 0},
		{n: 5, steps: 1, want: 4},
	}
	for _, tc := range cases {
		features, target := rows(tc.n)
		windows, targets := MakeWindows(features, target, tc.steps)
		if len(windows) != tc.want || len(targets) != tc.want {
			t.Fatalf("n=%d steps=%d: got %d windows, %d targets, want %d", tc.n, tc.steps, len(windows), len(targets), tc.want)
		}
	}
}

func TestMakeWindowsAlignment(t *testing.T) {
	features, target := rows(40)
	windows, targets := MakeWindows(features, target, 30)
	for i, w := range windows {
		if len(w) != 30 {
			t.Fatalf("window %d has %d rows", i, len(w))
		}
		if w[0][0] != float64(i) || w[29][0] != float64(i+29) {
			t.Fatalf("window %d spans rows %v..%v", i, w[0][0], w[29][0])
		}
		if targets[i] != target[i+30] {
			t.Fatalf("window %d target %v, want %v", i, targets[i], target[i+30])
		}
	}
}

func TestMakeWindowsSharesRows(t *testing.T) {
	features, target := rows(10)
	windows, _ := MakeWindows(features, target, 3)
	features[4][0] = -1
	if windows[2][2][0] != -1 {
		t.Fatalf("expected windows to view the source rows")
	}
}

func TestBatches(t *testing.T) {
	got := Batches(130, 64)
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	if got[2] != [2]int{128, 130} {
		t.Fatalf("unexpected last batch %v", got[2])
	}
	if len(Batches(0, 64)) != 0 {
		t.Fatalf("expected no batches for empty input")
	}
}

func TestRingBufferEvicts(t *testing.T) {
	rb := NewRingBuffer[float64](3)
	for i := 1; i <= 3; i++ {
		if _, ok := rb.Push(float64(i)); ok {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}
	old, ok := rb.Push(4)
	if !ok || old != 1 {
		t.Fatalf("expected eviction of 1, got %v %v", old, ok)
	}
	s := rb.ToSlice()
	if len(s) != 3 || s[0] != 2 || s[2] != 4 {
		t.Fatalf("unexpected contents %v", s)
	}
	if last, _ := rb.Last(); last != 4 {
		t.Fatalf("unexpected last %v", last)
	}
	rb.Clear()
	if rb.Size() != 0 || rb.IsFull() {
		t.Fatalf("expected empty buffer after clear")
	}
}
