package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"notes-collab/core"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "notes.activity"

// NATSSink publishes each activity as JSON on notes.activity.<action>.
type NATSSink struct {
	nc *nats.Conn
}

func NewNATSSink(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("notes-collab"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc}, nil
}

func subject(activity core.Activity) string {
	return subjectPrefix + "." + strings.ToLower(activity.Action)
}

func (s *NATSSink) Record(ctx context.Context, activity core.Activity) error {
	data, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	if err := s.nc.Publish(subject(activity), data); err != nil {
		return fmt.Errorf("failed to publish activity to %s: %w", subject(activity), err)
	}
	return nil
}

func (s *NATSSink) Close() {
	if s.nc != nil {
		s.nc.Drain()
	}
}
