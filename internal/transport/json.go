package transport

import (
	"encoding/json"
	"strconv"
)

// SendJSON serializes v to compact JSON, appends "_s<n>" (n = the
// marshaled byte length) to baseTopic, and sends the result via
// SendFramed. Callers that want a "_v<N>" version token in the topic
// must bake it into baseTopic themselves (e.g. "status_spec_v0"); spec
// §6 only requires some topics to carry a version, so SendJSON does
// not impose one.
func SendJSON(s *Socket, baseTopic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := Topic(baseTopic, payload)
	return s.SendFramed(topic, payload)
}

// Topic appends "_s<n>" to base, where n is len(payload).
func Topic(base string, payload []byte) string {
	return base + "_s" + strconv.Itoa(len(payload))
}

// ReceiveJSON is the inverse of SendJSON: a non-blocking receive
// followed by a JSON unmarshal into v. ok is false when the queue was
// empty — the Go analogue of spec §4.1's "null JSON value" return,
// since an untyped null is not idiomatic to hand back through a
// generic v any parameter.
func ReceiveJSON(s *Socket, v any) (ok bool, err error) {
	frame, ok, err := s.ReceiveFramed(true)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(frame.Payload, v)
}

// BuildDataTopic composes the "<base>_v<version>_s<size>" topic shape
// used by data frames per spec §3/§6 (e.g.
// "data_abcd_waveforms_v0_s4096").
func BuildDataTopic(base string, version, size int) string {
	return base + "_v" + strconv.Itoa(version) + "_s" + strconv.Itoa(size)
}
