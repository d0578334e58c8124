package natssink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}

	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)

	return nil
}

func TestSink_PublishesPerThreadSubject(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, func(o *Options) { o.SubjectPrefix = "chat.ui" })

	err := s.Publish(context.Background(), "thread-7", []core.UIEvent{
		{ID: "a", ComponentKey: "portfolio", Mode: core.UIModeCreate},
		{ID: "b", ComponentKey: "stock-price", ToolCallID: "c1", Mode: core.UIModeCreate},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"chat.ui.thread-7", "chat.ui.thread-7"}, pub.subjects)

	var ev core.UIEvent
	require.NoError(t, json.Unmarshal(pub.payloads[1], &ev))
	assert.Equal(t, "c1", ev.ToolCallID)
}

func TestSink_PropagatesErrors(t *testing.T) {
	s := New(&recordingPublisher{err: errors.New("down")})

	err := s.Publish(context.Background(), "t", []core.UIEvent{{ID: "a"}})
	assert.ErrorContains(t, err, "down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(&recordingPublisher{}).Publish(ctx, "t", []core.UIEvent{{ID: "a"}}), context.Canceled)
}
