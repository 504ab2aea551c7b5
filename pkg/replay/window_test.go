package replay

import "testing"

func TestWindow(t *testing.T) {
	var w Window
	const tLim = windowSpan + 1
	testNumber := 0
	run := func(n uint64, expected bool) {
		testNumber++
		if w.Validate(n, MaxCounter) != expected {
			t.Fatalf("test %d failed: %d expected %v", testNumber, n, expected)
		}
	}

	w.Reset()
	run(0, true)
	run(1, true)
	run(1, false)
	run(9, true)
	run(8, true)
	run(7, true)
	run(7, false)
	run(tLim, true)
	run(tLim-1, true)
	run(tLim-1, false)
	run(tLim-2, true)
	run(2, true)
	run(2, false)
	run(tLim+16, true)
	run(3, false)
	run(tLim+16, false)
	run(tLim*4, true)
	run(tLim*4-(tLim-1), true)
	run(10, false)
	run(tLim*4-tLim, false)
	run(tLim*4-(tLim+1), false)
	run(tLim*4-(tLim-2), true)
	run(tLim*4+1-tLim, false)
	run(0, false)
	run(MaxCounter, false)
	run(MaxCounter-1, true)
	run(MaxCounter, false)
	run(MaxCounter-1, false)
	run(MaxCounter-2, true)
	run(MaxCounter+1, false)
	run(MaxCounter+2, false)
	run(MaxCounter-2, false)
	run(MaxCounter-3, true)
	run(0, false)

	t.Log("bulk test 1")
	w.Reset()
	testNumber = 0
	for i := uint64(1); i <= windowSpan; i++ {
		run(i, true)
	}
	run(0, true)
	run(0, false)

	t.Log("bulk test 2")
	w.Reset()
	testNumber = 0
	for i := uint64(2); i <= windowSpan+1; i++ {
		run(i, true)
	}
	run(1, true)
	run(0, false)

	t.Log("bulk test 3")
	w.Reset()
	testNumber = 0
	for i := uint64(windowSpan + 1); i > 0; i-- {
		run(i, true)
	}

	t.Log("bulk test 4")
	w.Reset()
	testNumber = 0
	for i := uint64(windowSpan + 2); i > 1; i-- {
		run(i, true)
	}
	run(0, false)

	t.Log("bulk test 5")
	w.Reset()
	testNumber = 0
	for i := uint64(windowSpan); i > 0; i-- {
		run(i, true)
	}
	run(windowSpan+1, true)
	run(0, false)

	t.Log("bulk test 6")
	w.Reset()
	testNumber = 0
	for i := uint64(windowSpan); i > 0; i-- {
		run(i, true)
	}
	run(0, true)
	run(windowSpan+1, true)
}

func TestWindowCustomLimit(t *testing.T) {
	var w Window
	if !w.Validate(9, 10) {
		t.Fatalf("counter below limit rejected")
	}
	if w.Validate(10, 10) {
		t.Fatalf("counter at limit accepted")
	}
	if w.Validate(11, 10) {
		t.Fatalf("counter above limit accepted")
	}
}
