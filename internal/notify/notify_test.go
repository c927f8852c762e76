package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ Nop }

func (failing) Publish(context.Context, Change) error { return errors.New("down") }

func TestSubject(t *testing.T) {
	tests := []struct {
		group string
		want  string
	}{
		{"g1", "settleup.g1.settlement.recorded"},
		{"trip_2024-07", "settleup.trip_2024-07.settlement.recorded"},
		{"a.b", "settleup.a%2Eb.settlement.recorded"},
		{"*", "settleup.%2A.settlement.recorded"},
		{">", "settleup.%3E.settlement.recorded"},
		{"ski trip", "settleup.ski%20trip.settlement.recorded"},
		{"100%", "settleup.100%25.settlement.recorded"},
	}
	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			got := Subject("settleup", Change{Kind: KindSettlementRecorded, GroupID: tt.group})
			assert.Equal(t, tt.want, got)
			assert.Len(t, strings.Split(got, "."), 4, "group must stay one token")
			assert.NotContains(t, got, "*")
			assert.NotContains(t, got, ">")
		})
	}
}

func TestSubjectDistinctGroups(t *testing.T) {
	seen := map[string]string{}
	for _, g := range []string{"a.b", "a%2Eb", "a_b", "a b", "a%20b"} {
		s := Subject("p", Change{Kind: KindExpenseAdded, GroupID: g})
		if other, ok := seen[s]; ok {
			t.Fatalf("groups %q and %q share subject %q", other, g, s)
		}
		seen[s] = g
	}
}

func TestNATSPublisherRejectsEmptyGroup(t *testing.T) {
	p := &NATSPublisher{prefix: "test"}
	assert.Error(t, p.Publish(context.Background(), Change{Kind: KindExpenseAdded}))
}

func TestLoggedSwallowsErrors(t *testing.T) {
	p := Logged{Publisher: failing{}}
	assert.NoError(t, p.Publish(context.Background(), Change{Kind: KindExpenseAdded, GroupID: "g"}))
}

// TestNATSPublisher needs a running server at SETTLEUP_TEST_NATS_URL.
func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("SETTLEUP_TEST_NATS_URL")
	if url == "" {
		t.Skip("SETTLEUP_TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("test.g1.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := NewNATS(url, "test")
	require.NoError(t, err)
	defer p.Close()

	want := Change{Kind: KindExpenseAdded, GroupID: "g1", ActorID: "A", At: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, p.Publish(context.Background(), want))

	select {
	case msg := <-msgs:
		assert.Equal(t, "test.g1.expense.added", msg.Subject)
		var got Change
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNATSPublisherCancelled(t *testing.T) {
	p := &NATSPublisher{prefix: "test"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Change{}), context.Canceled)
}
