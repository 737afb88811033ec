package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
	"abcd.dev/abcd/internal/wire"
)

func TestSession_ReceivesWaveformAndPublishesJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inEP := "inproc://wadi-test-in"
	outEP := "inproc://wadi-test-out"

	status := &Status{
		Module: "wadi",
		NewSocket: func(kind transport.Kind, endpoint string) (*transport.Socket, error) {
			switch kind {
			case transport.KindSub:
				return transport.NewSub(ctx, endpoint)
			case transport.KindPub:
				return transport.NewPub(ctx, endpoint)
			default:
				return nil, fmt.Errorf("unsupported kind in test: %v", kind)
			}
		},
		InputEndpoint:  inEP,
		OutputEndpoint: outEP,
	}

	rt := statemachine.New(BuildStates(), StateStop)
	rt.SetBasePeriod(time.Millisecond)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx, status, StateCreateContext) }()

	time.Sleep(50 * time.Millisecond)

	inPub, err := transport.NewPub(ctx, inEP)
	if err != nil {
		t.Fatalf("NewPub(in): %v", err)
	}
	defer inPub.Close()

	outSub, err := transport.NewSub(ctx, outEP)
	if err != nil {
		t.Fatalf("NewSub(out): %v", err)
	}
	defer outSub.Close()

	time.Sleep(50 * time.Millisecond)

	w := wire.Waveform{Timestamp: 99, Channel: 2, Samples: []uint16{5, 6, 7}}
	payload := wire.EncodeWaveform(nil, w)
	topic := transport.BuildDataTopic("data_abcd_waveforms", 0, len(payload))
	if err := inPub.SendFramed(topic, payload); err != nil {
		t.Fatalf("SendFramed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var gotFrame transport.Frame
	for time.Now().Before(deadline) {
		frame, ok, err := outSub.ReceiveFramed(true)
		if err != nil {
			t.Fatalf("ReceiveFramed: %v", err)
		}
		if ok {
			gotFrame = frame
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if gotFrame.Payload == nil {
		t.Fatal("timed out waiting for a published JSON waveform")
	}

	var decoded JSONWaveform
	if err := json.Unmarshal(gotFrame.Payload, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded.Timestamp != 99 || decoded.Channel != 2 {
		t.Errorf("decoded = %+v, want timestamp 99 channel 2", decoded)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session to terminate on context cancellation")
	}
}
