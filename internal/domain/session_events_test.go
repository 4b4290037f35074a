package domain

import (
	"errors"
	"testing"
)

type recordingVisitor struct {
	kinds []string
}

func (v *recordingVisitor) VisitConnectionCreated(e ConnectionCreated) error {
	v.kinds = append(v.kinds, "cc:"+e.Connection.ID)
	return nil
}
func (v *recordingVisitor) VisitConnectionDestroyed(e ConnectionDestroyed) error {
	v.kinds = append(v.kinds, "cd:"+e.Connection.ID)
	return nil
}
func (v *recordingVisitor) VisitStreamCreated(e StreamCreated) error {
	v.kinds = append(v.kinds, "sc:"+e.Stream.ID)
	return nil
}
func (v *recordingVisitor) VisitStreamDestroyed(e StreamDestroyed) error {
	v.kinds = append(v.kinds, "sd:"+e.Stream.ID)
	return nil
}

func TestParseSessionEvent_AllKinds(t *testing.T) {
	bodies := []string{
		`{"sessionId":"S","projectId":"P","event":"connectionCreated","timestamp":1,"connection":{"id":"c1","createdAt":1,"data":"{}"}}`,
		`{"sessionId":"S","projectId":"P","event":"connectionDestroyed","timestamp":2,"connection":{"id":"c1","createdAt":1}}`,
		`{"sessionId":"S","projectId":"P","event":"streamCreated","timestamp":3,"stream":{"id":"s1","connection":{"id":"c1"},"createdAt":3,"name":"cam","videoType":"camera"}}`,
		`{"sessionId":"S","projectId":"P","event":"streamDestroyed","timestamp":4,"stream":{"id":"s1","connection":{"id":"c1"},"createdAt":3,"name":"cam"}}`,
	}
	v := &recordingVisitor{}
	for _, b := range bodies {
		ev, err := ParseSessionEvent([]byte(b))
		if err != nil {
			t.Fatalf("parse %s: %v", b, err)
		}
		if ev.Envelope().SessionID != "S" || ev.Envelope().ProjectID != "P" {
			t.Fatalf("envelope not populated: %+v", ev.Envelope())
		}
		if err := ev.Accept(v); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}
	want := []string{"cc:c1", "cd:c1", "sc:s1", "sd:s1"}
	for i := range want {
		if v.kinds[i] != want[i] {
			t.Fatalf("dispatch order = %v; want %v", v.kinds, want)
		}
	}
}

func TestParseSessionEvent_Malformed(t *testing.T) {
	cases := map[string]string{
		"not_json":       `{`,
		"missing_sess":   `{"event":"connectionCreated","connection":{"id":"c"}}`,
		"unknown_event":  `{"sessionId":"S","event":"archiveStarted"}`,
		"conn_without":   `{"sessionId":"S","event":"connectionCreated"}`,
		"stream_without": `{"sessionId":"S","event":"streamDestroyed","stream":{"id":""}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSessionEvent([]byte(body))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestParseConnectionData(t *testing.T) {
	d, err := ParseConnectionData(`{"registrantId":"A","roomId":"R"}`)
	if err != nil || d.RegistrantID != "A" || d.RoomID != "R" {
		t.Fatalf("unexpected: %+v %v", d, err)
	}
	for _, bad := range []string{"", "  ", "{", `{"registrantId":"A"}`} {
		if _, err := ParseConnectionData(bad); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("ParseConnectionData(%q) expected ErrMalformedEvent, got %v", bad, err)
		}
	}
}
