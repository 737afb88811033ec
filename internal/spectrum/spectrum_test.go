package spectrum

import "testing"

func testShape() ChannelShape {
	return ChannelShape{
		QlongBins: 100, QlongMin: 0, QlongMax: 1000,
		PSDBins: 50, PSDMin: -1, PSDMax: 1,
	}
}

func TestFill_AutoRegistersChannel(t *testing.T) {
	b := NewBuilder(testShape())
	if _, ok := b.Channels()[3]; ok {
		t.Fatal("channel 3 should not exist before first event")
	}
	b.Fill(Event{Channel: 3, Qshort: 10, Qlong: 100})
	c, ok := b.Channels()[3]
	if !ok {
		t.Fatal("channel 3 not registered after Fill")
	}
	if got := c.Qlong.Integral(); got != 1 {
		t.Errorf("Qlong.Integral() = %v, want 1", got)
	}
	if got := c.QlongPSD.Integral(); got != 1 {
		t.Errorf("QlongPSD.Integral() = %v, want 1", got)
	}
	if c.Partial != 1 || c.Total != 1 {
		t.Errorf("Partial=%d Total=%d, want 1,1", c.Partial, c.Total)
	}
}

func TestFill_ConfigDoesNotRegisterUnseenChannel(t *testing.T) {
	b := NewBuilder(testShape())
	// Reconfigure touches only already-registered channels; it must not
	// create channel 9 just because a config mentions it.
	b.Reconfigure(testShape())
	if _, ok := b.Channels()[9]; ok {
		t.Error("channel 9 should not be registered by reconfigure alone")
	}
}

func TestPSD_ZeroQlongUsesSmallestPositive(t *testing.T) {
	got := psd(5, 0)
	if got != smallestPositive {
		t.Errorf("psd(5,0) = %v, want smallest positive float64", got)
	}
	if got <= 0 {
		t.Error("psd(5,0) must be strictly positive")
	}
}

func TestPSD_NormalFormula(t *testing.T) {
	got := psd(40, 100)
	want := (100.0 - 40.0) / 100.0
	if got != want {
		t.Errorf("psd(40,100) = %v, want %v", got, want)
	}
}

func TestResetChannel_ZeroesHistogramsAndCounters(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qshort: 1, Qlong: 100})
	b.Fill(Event{Channel: 1, Qshort: 1, Qlong: 200})
	b.ResetChannel(1)

	c := b.Channels()[1]
	if c.Qlong.Integral() != 0 {
		t.Error("Qlong histogram not reset")
	}
	if c.Partial != 0 || c.Total != 0 {
		t.Errorf("Partial=%d Total=%d after reset, want 0,0", c.Partial, c.Total)
	}
}

func TestResetAll_ResetsEveryChannel(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 100})
	b.Fill(Event{Channel: 2, Qlong: 200})
	b.ResetAll()
	for ch, c := range b.Channels() {
		if c.Total != 0 {
			t.Errorf("channel %d Total = %d, want 0", ch, c.Total)
		}
	}
}

func TestResetPartials_LeavesTotalIntact(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 100})
	b.Fill(Event{Channel: 1, Qlong: 100})
	b.ResetPartials()

	c := b.Channels()[1]
	if c.Partial != 0 {
		t.Errorf("Partial = %d, want 0", c.Partial)
	}
	if c.Total != 2 {
		t.Errorf("Total = %d, want 2 (unaffected by partial reset)", c.Total)
	}
}

func TestDecayAll_ScalesAndClearsMinimum(t *testing.T) {
	b := NewBuilder(testShape())
	b.DecayEnabled = true
	b.Tau = 1.0
	b.FloorCount = 0.001
	b.Fill(Event{Channel: 1, Qshort: 10, Qlong: 100})

	before := b.Channels()[1].Qlong.Integral()
	b.DecayAll(1.0)
	after := b.Channels()[1].Qlong.Integral()
	if !(after < before && after > 0) {
		t.Errorf("DecayAll: before=%v after=%v, want strictly decreased but nonzero", before, after)
	}
}

func TestDecayAll_DisabledIsNoOp(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 100})
	before := b.Channels()[1].Qlong.Integral()
	b.DecayAll(100.0) // DecayEnabled defaults false
	after := b.Channels()[1].Qlong.Integral()
	if after != before {
		t.Errorf("DecayAll with DecayEnabled=false changed integral: %v -> %v", before, after)
	}
}

func TestReconfigure_PreservesDataWhenShapeMatches(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 100})
	b.Reconfigure(testShape()) // identical shape
	if got := b.Channels()[1].Qlong.Integral(); got != 1 {
		t.Errorf("Integral() = %v, want 1 (data preserved on matching reconfigure)", got)
	}
}

func TestReconfigure_ReallocatesWhenShapeDiffers(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 100})
	newShape := testShape()
	newShape.QlongBins = 50
	b.Reconfigure(newShape)

	c := b.Channels()[1]
	if c.Qlong.Bins() != 50 {
		t.Errorf("Bins() = %d, want 50", c.Qlong.Bins())
	}
	if got := c.Qlong.Integral(); got != 0 {
		t.Errorf("Integral() = %v, want 0 (reallocated, not preserved)", got)
	}
}

func TestDispatch_ResetSingleChannel(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 2, Qlong: 50})

	quit, err := Dispatch(b, []byte(`{"msg_ID":1,"command":"reset","arguments":{"channel":2}}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if quit {
		t.Error("quit = true, want false")
	}
	if b.Channels()[2].Total != 0 {
		t.Errorf("Total = %d, want 0 after reset", b.Channels()[2].Total)
	}
}

func TestDispatch_ResetAllChannels(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 10})
	b.Fill(Event{Channel: 2, Qlong: 10})

	_, err := Dispatch(b, []byte(`{"msg_ID":1,"command":"reset","arguments":{"channel":"all"}}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for ch, c := range b.Channels() {
		if c.Total != 0 {
			t.Errorf("channel %d Total = %d, want 0", ch, c.Total)
		}
	}
}

func TestDispatch_Reconfigure(t *testing.T) {
	b := NewBuilder(testShape())
	b.Fill(Event{Channel: 1, Qlong: 10})

	_, err := Dispatch(b, []byte(`{"msg_ID":1,"command":"reconfigure","arguments":{"config":{"qlong_bins":10,"qlong_min":0,"qlong_max":10,"psd_bins":5,"psd_min":-1,"psd_max":1}}}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := b.Channels()[1].Qlong.Bins(); got != 10 {
		t.Errorf("Bins() = %d, want 10", got)
	}
}

func TestDispatch_Quit(t *testing.T) {
	b := NewBuilder(testShape())
	quit, err := Dispatch(b, []byte(`{"msg_ID":1,"command":"quit"}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !quit {
		t.Error("quit = false, want true")
	}
}

func TestDispatch_UnknownCommandErrors(t *testing.T) {
	b := NewBuilder(testShape())
	_, err := Dispatch(b, []byte(`{"msg_ID":1,"command":"frobnicate"}`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
}
