package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer pubSub.Close()

	authenticated, err := pubSub.Subscribe(ctx, TopicAuthenticated)
	require.NoError(t, err)
	revoked, err := pubSub.Subscribe(ctx, TopicRevoked)
	require.NoError(t, err)

	account := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	publisher := NewWatermillPublisher(pubSub)

	event := core.Event{
		Seq:       3,
		Kind:      core.EventUserAuthenticated,
		Account:   account,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Hash:      common.HexToHash("0x01"),
	}
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-authenticated:
		msg.Ack()
		assert.Equal(t, "UserAuthenticated", msg.Metadata.Get("kind"))
		assert.Equal(t, account.Hex(), msg.Metadata.Get("account"))
		assert.Equal(t, "3", msg.Metadata.Get("seq"))

		var got core.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, event.Seq, got.Seq)
		assert.Equal(t, event.Hash, got.Hash)
		assert.True(t, event.Timestamp.Equal(got.Timestamp))
	case <-ctx.Done():
		t.Fatal("no authenticated message received")
	}

	event.Seq = 4
	event.Kind = core.EventAuthenticationRevoked
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-revoked:
		msg.Ack()
		assert.Equal(t, "AuthenticationRevoked", msg.Metadata.Get("kind"))
	case <-ctx.Done():
		t.Fatal("no revoked message received")
	}
}

func TestWatermillPublisherUnknownKind(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	err := NewWatermillPublisher(pubSub).Publish(context.Background(), core.Event{Kind: "Other"})
	require.Error(t, err)
}
