package activity

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogrusAdapter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	adapter := newLogrusAdapter(logrus.NewEntry(logger)).With(watermill.LogFields{"topic": topic})
	adapter.Error("publish failed", errors.New("closed"), watermill.LogFields{"message_uuid": "m1"})

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no entry logged")
	}
	if entry.Level != logrus.ErrorLevel || entry.Message != "publish failed" {
		t.Errorf("entry = %v %q", entry.Level, entry.Message)
	}
	if entry.Data["topic"] != topic || entry.Data["message_uuid"] != "m1" {
		t.Errorf("fields = %v", entry.Data)
	}
	if err, ok := entry.Data[logrus.ErrorKey].(error); !ok || err.Error() != "closed" {
		t.Errorf("error field = %v", entry.Data[logrus.ErrorKey])
	}

	adapter.Trace("acked", nil)
	if hook.LastEntry().Level != logrus.TraceLevel {
		t.Errorf("trace logged at %v", hook.LastEntry().Level)
	}
}
