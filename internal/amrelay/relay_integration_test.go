//go:build integration

package amrelay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"idproof/internal/amrelay"
	"idproof/pkg/testutil/containers"
)

const syncTopic = "user-sync-requests"

type KafkaRelaySuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
	relay    *amrelay.Kafka
	ctx      context.Context
}

func TestKafkaRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaRelaySuite))
}

func (s *KafkaRelaySuite) SetupSuite() {
	s.ctx = context.Background()
	s.redpanda = containers.NewRedpandaContainer(s.T())

	client, err := amrelay.NewKafkaClient([]string{s.redpanda.Broker})
	s.Require().NoError(err)
	s.client = client

	admin := kadm.NewClient(client)
	_, err = admin.CreateTopics(s.ctx, 1, 1, nil, syncTopic)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.relay = amrelay.NewKafka(client, syncTopic, logger)
}

func (s *KafkaRelaySuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *KafkaRelaySuite) TestRequestSyncProducesKeyedMessage() {
	s.Require().NoError(s.relay.RequestSync(s.ctx, "hubba-bubba"))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(syncTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("hubba-bubba", string(records[0].Key))

	var req amrelay.SyncRequest
	s.Require().NoError(json.Unmarshal(records[0].Value, &req))
	s.Equal("hubba-bubba", req.Eppn)
	s.Equal("idproof", req.Source)
	s.WithinDuration(time.Now().UTC(), req.RequestedAt, time.Minute)
}
