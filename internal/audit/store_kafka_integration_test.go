//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"soulbound/internal/audit"
	"soulbound/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())
}

func (s *KafkaStoreSuite) TestAppend() {
	ctx := context.Background()
	topic := "soulbound.audit.test"

	store, err := audit.NewKafkaStore(ctx, []string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	defer store.Close()

	sent := audit.Event{
		ID:             uuid.New(),
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Action:         audit.ActionCredentialIssued,
		Actor:          "university-a",
		CredentialID:   1,
		CredentialType: "degree",
		Holder:         "alice",
	}
	s.Require().NoError(store.Append(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(sent.ID.String(), string(records[0].Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(sent, got)
}

func (s *KafkaStoreSuite) TestEnsureTopic_Idempotent() {
	ctx := context.Background()
	topic := "soulbound.audit.idempotent"

	first, err := audit.NewKafkaStore(ctx, []string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	first.Close()

	// Reconnecting against an existing topic must not fail.
	second, err := audit.NewKafkaStore(ctx, []string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	second.Close()
}
