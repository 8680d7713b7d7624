//go:build integration

package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/audit/store/memory"
	"transitpass/pkg/testutil/containers"
)

type RelayIntegrationSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestRelayIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T())
}

func (s *RelayIntegrationSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	client := s.broker.NewClient(s.T())

	s.Require().NoError(EnsureTopic(ctx, client, "transitpass.audit.ensure", 1, 1))
	s.Require().NoError(EnsureTopic(ctx, client, "transitpass.audit.ensure", 1, 1))
}

func (s *RelayIntegrationSuite) TestFlushDeliversToBroker() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	const topic = "transitpass.audit.flush"

	producer := s.broker.NewClient(s.T())
	s.Require().NoError(EnsureTopic(ctx, producer, topic, 1, 1))

	store := memory.NewInMemoryStore()
	s.Require().NoError(store.Append(ctx, audit.Event{
		UserID: id.UserID(42),
		Action: audit.EventPaymentVerified.String(),
	}))

	relay := NewRelay(store, producer, topic, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	n, err := relay.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	consumer := s.broker.NewClient(s.T(),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	fetches := consumer.PollRecords(ctx, 1)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)

	headers := map[string]string{}
	for _, h := range records[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(audit.EventPaymentVerified.String(), headers["event_type"])
	s.NotEmpty(headers["event_id"])

	pending, err := store.FetchUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
