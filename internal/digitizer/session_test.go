package digitizer

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

// fakeDevice produces exactly one ready capture then reports no more
// captures available, the minimum behavior needed to drive add_to_buffer
// / publish_events once.
type fakeDevice struct {
	polled bool
}

func (d *fakeDevice) Open(context.Context) error                    { return nil }
func (d *fakeDevice) ConfigureChannels(context.Context, []ChannelConfig) error { return nil }
func (d *fakeDevice) Start(context.Context) error                   { return nil }
func (d *fakeDevice) Close(context.Context) error                   { return nil }

func (d *fakeDevice) Poll(context.Context) (bool, error) {
	if !d.polled {
		d.polled = true
		return true, nil
	}
	return false, nil
}

func (d *fakeDevice) FetchSamples(context.Context) (RawCapture, error) {
	return RawCapture{Timestamp: 7, Channel: 1, Samples: []int16{0, 100}}, nil
}

func sendCommand(t *testing.T, push *transport.Socket, command string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"msg_ID": 1, "command": command})
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := push.SendFramed("", raw); err != nil {
		t.Fatalf("SendFramed(%s): %v", command, err)
	}
}

func TestSession_FullAcquisitionCycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataEP := "inproc://digitizer-test-data"
	statusEP := "inproc://digitizer-test-status"
	cmdEP := "inproc://digitizer-test-cmd"

	status := &Status{
		Module: "abad2",
		Device: &fakeDevice{},
		NewSocket: func(kind transport.Kind, endpoint string) (*transport.Socket, error) {
			switch kind {
			case transport.KindPub:
				return transport.NewPub(ctx, endpoint)
			case transport.KindPull:
				return transport.NewPull(ctx, endpoint)
			default:
				return nil, fmt.Errorf("unsupported kind in test: %v", kind)
			}
		},
		DataEndpoint:    dataEP,
		StatusEndpoint:  statusEP,
		CommandEndpoint: cmdEP,
		LoadConfig: func() (Config, error) {
			return Config{
				Channels:        []ChannelConfig{{Channel: 1, Enable: true}},
				EventsBufferMax: 0,
				PublishInterval: time.Hour,
				StatusInterval:  50 * time.Millisecond,
			}, nil
		},
	}

	rt := statemachine.New(BuildStates(), StateStop)
	rt.SetBasePeriod(time.Millisecond)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx, status, StateCreateContext) }()

	// Give create_sockets time to bind before dialing clients.
	time.Sleep(50 * time.Millisecond)

	dataSub, err := transport.NewSub(ctx, dataEP)
	if err != nil {
		t.Fatalf("NewSub(data): %v", err)
	}
	defer dataSub.Close()

	cmdPush, err := transport.NewPush(ctx, cmdEP)
	if err != nil {
		t.Fatalf("NewPush(cmd): %v", err)
	}
	defer cmdPush.Close()

	time.Sleep(50 * time.Millisecond)

	sendCommand(t, cmdPush, "start")

	deadline := time.Now().Add(3 * time.Second)
	var gotFrame transport.Frame
	for time.Now().Before(deadline) {
		frame, ok, err := dataSub.ReceiveFramed(true)
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
		t.Fatal("timed out waiting for a published waveform frame")
	}
	decoded := wire.DecodeWaveforms(gotFrame.Payload)
	if len(decoded) != 1 || decoded[0].Timestamp != 7 {
		t.Errorf("decoded waveforms = %+v, want one waveform with timestamp 7", decoded)
	}

	sendCommand(t, cmdPush, "stop")
	time.Sleep(50 * time.Millisecond)
	sendCommand(t, cmdPush, "quit")

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session to terminate")
	}
}
