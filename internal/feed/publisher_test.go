package feed_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/model"
)

func TestChannelForIsPerShow(t *testing.T) {
	assert.Equal(t, "claims.77", feed.ChannelFor(77))
	assert.NotEqual(t, feed.ChannelFor(77), feed.ChannelFor(78))
}

func TestRedisPublisherPublishesOnShowChannel(t *testing.T) {
	rdb, mock := redismock.NewClientMock()

	expires := time.Date(2026, 3, 14, 19, 15, 0, 0, time.UTC)
	ev := feed.Event{
		Op:     feed.OpInsert,
		ShowID: 77,
		SeatID: "S12",
		After: &model.Claim{
			ShowID:         77,
			SeatID:         "S12",
			OwnerSessionID: "sess-a",
			Kind:           model.KindSeat,
			State:          model.StateHeld,
			AcquiredAt:     expires.Add(-15 * time.Minute),
			ExpiresAt:      &expires,
		},
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectPublish("claims.77", body).SetVal(1)

	pub := feed.NewRedisPublisher(rdb)
	require.NoError(t, pub.Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisherWrapsTransportError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()

	ev := feed.Event{Op: feed.OpDelete, ShowID: 77, SeatID: "S12"}
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectPublish("claims.77", body).SetErr(assert.AnError)

	pub := feed.NewRedisPublisher(rdb)
	err = pub.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claims.77")
}

func TestNopPublisherDiscards(t *testing.T) {
	assert.NoError(t, feed.NopPublisher{}.Publish(context.Background(), feed.Event{ShowID: 1}))
}
