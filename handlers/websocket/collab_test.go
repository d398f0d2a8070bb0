package websocket

import (
	"errors"
	"notes-collab/collab"
	"reflect"
	"testing"
)

func TestExtractAck(t *testing.T) {
	var got map[string]any
	datas := []any{"doc1", func(payload map[string]any) { got = payload }}

	ack, args := extractAck(datas)
	if ack == nil {
		t.Fatal("extractAck() did not find the ack function")
	}
	if !reflect.DeepEqual(args, []any{"doc1"}) {
		t.Errorf("args = %v, want [doc1]", args)
	}

	ack(nil, map[string]any{"status": "ok"})
	if got["status"] != "ok" {
		t.Errorf("ack payload = %v", got)
	}
}

func TestExtractAck_NoAck(t *testing.T) {
	datas := []any{"doc1", map[string]any{"x": 1}}

	ack, args := extractAck(datas)
	if ack != nil {
		t.Error("extractAck() found an ack where there is none")
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}

	if ack, args := extractAck(nil); ack != nil || len(args) != 0 {
		t.Errorf("extractAck(nil) = %v, %v", ack, args)
	}
}

func TestWrapAck_Signatures(t *testing.T) {
	payload := map[string]any{"status": "error", "error": "boom"}
	ackErr := errors.New("boom")

	t.Run("error and payload", func(t *testing.T) {
		var gotErr error
		var gotPayload map[string]any
		wrapAck(func(err error, p map[string]any) { gotErr, gotPayload = err, p })(ackErr, payload)
		if gotErr != ackErr || gotPayload["error"] != "boom" {
			t.Errorf("got %v, %v", gotErr, gotPayload)
		}
	})

	t.Run("data list and error", func(t *testing.T) {
		var got []any
		wrapAck(func(data []any, err error) { got = data })(ackErr, payload)
		if len(got) != 1 || !reflect.DeepEqual(got[0], payload) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("variadic", func(t *testing.T) {
		var got []any
		wrapAck(func(data ...any) { got = data })(ackErr, payload)
		if len(got) != 1 || !reflect.DeepEqual(got[0], payload) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("not a function", func(t *testing.T) {
		if wrapAck("nope") != nil || wrapAck(nil) != nil {
			t.Error("wrapAck() accepted a non-function")
		}
	})
}

func TestMakeAckPayload(t *testing.T) {
	ok := makeAckPayload(nil)
	if !reflect.DeepEqual(ok, map[string]any{"status": "ok"}) {
		t.Errorf("makeAckPayload(nil) = %v", ok)
	}

	failed := makeAckPayload(&collab.Error{Kind: collab.KindAccessDenied, Message: "access denied to document doc1"})
	if failed["status"] != "error" || failed["kind"] != "access_denied" {
		t.Errorf("makeAckPayload(err) = %v", failed)
	}

	plain := makeAckPayload(errors.New("boom"))
	if _, hasKind := plain["kind"]; hasKind {
		t.Errorf("plain errors carry no kind: %v", plain)
	}
}

func TestTokenFromAuth(t *testing.T) {
	tests := []struct {
		name string
		auth any
		want string
	}{
		{"map any", map[string]any{"token": "abc"}, "abc"},
		{"map string", map[string]string{"token": "abc"}, "abc"},
		{"wrong type", map[string]any{"token": 42}, ""},
		{"missing", map[string]any{}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenFromAuth(tt.auth); got != tt.want {
				t.Errorf("tokenFromAuth() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCorsOrigin(t *testing.T) {
	if got, ok := corsOrigin(nil).([]any); !ok || len(got) != 2 {
		t.Errorf("corsOrigin(nil) = %v", corsOrigin(nil))
	}
	if got := corsOrigin([]string{"https://notes.example.com", "*"}); got != "*" {
		t.Errorf("wildcard origin = %v", got)
	}
	got := corsOrigin([]string{"https://notes.example.com"})
	if !reflect.DeepEqual(got, []any{"https://notes.example.com"}) {
		t.Errorf("corsOrigin() = %v", got)
	}
}
