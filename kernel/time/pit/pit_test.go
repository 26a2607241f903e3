package pit

import "testing"

func TestSleepMsPollsUntilTerminalCount(t *testing.T) {
	origOutb, origInb := outbFn, inbFn
	defer func() { outbFn, inbFn = origOutb, origInb }()

	var writes []byte
	outbFn = func(port uint16, value uint8) {
		writes = append(writes, value)
	}

	// Each sleepOneMs() call issues 2 reads of the latch command's low/high
	// bytes per poll iteration; return nonzero twice, then zero.
	reads := []uint16{0x1234, 0x0001, 0x0000}
	callIdx := 0
	inbFn = func(port uint16) uint8 {
		sample := reads[callIdx/2]
		if callIdx%2 == 0 {
			callIdx++
			return byte(sample & 0xff)
		}
		callIdx++
		return byte(sample >> 8)
	}

	SleepMs(1)

	// 3 bytes to load the channel (command, count-lo, count-hi), plus one
	// latch-command byte per readCount() poll (3 polls to exhaust reads).
	if len(writes) != 6 {
		t.Fatalf("expected 6 command/count bytes written; got %d: %v", len(writes), writes)
	}
}

func TestReadCountCombinesLowHigh(t *testing.T) {
	origOutb, origInb := outbFn, inbFn
	defer func() { outbFn, inbFn = origOutb, origInb }()

	outbFn = func(uint16, uint8) {}

	seq := []uint8{0x34, 0x12}
	idx := 0
	inbFn = func(uint16) uint8 {
		v := seq[idx]
		idx++
		return v
	}

	got := readCount()
	if got != 0x1234 {
		t.Fatalf("expected 0x1234; got %#x", got)
	}
}

func TestCalibrationSamplesComputesDeltas(t *testing.T) {
	origOutb, origInb := outbFn, inbFn
	defer func() { outbFn, inbFn = origOutb, origInb }()
	outbFn = func(uint16, uint8) {}
	inbFn = func(uint16) uint8 { return 0 }

	calls := 0
	values := []uint32{0, 100, 100, 250}
	sampleFn := func() uint32 {
		v := values[calls]
		calls++
		return v
	}

	samples := CalibrationSamples(2, 0, sampleFn)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples; got %d", len(samples))
	}
	if samples[0] != 100 {
		t.Fatalf("expected first sample 100; got %d", samples[0])
	}
	if samples[1] != 150 {
		t.Fatalf("expected second sample 150; got %d", samples[1])
	}
}

func TestMedianOddCount(t *testing.T) {
	got := Median([]uint32{5, 1, 3, 9, 2})
	if got != 3 {
		t.Fatalf("expected median 3; got %d", got)
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	input := []uint32{5, 1, 3}
	_ = Median(input)
	if input[0] != 5 || input[1] != 1 || input[2] != 3 {
		t.Fatalf("expected Median not to mutate its input; got %v", input)
	}
}
