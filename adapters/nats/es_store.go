package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/cqrskit/core/es"
)

const (
	defaultSubjectPrefix = "cqrskit.es"
	defaultStreamName    = "CQRSKIT_ES"

	// server error code for a failed expected-last-subject-sequence check
	errCodeWrongLastSequence jetstream.ErrorCode = 10071
)

type EventStoreConfig struct {
	Connect       Connector         // If nil, ConnectDefault() is used.
	Log           *slog.Logger      // optional
	Registry      *es.EventRegistry // Registry decodes loaded events, required.
	SubjectPrefix string            // Events of an aggregate go to <prefix>.<type>.<id>.
	StreamName    string
	Storage       jetstream.StorageType
	// Duplicates is the window in which a re-published event id is dropped.
	Duplicates time.Duration
}

// EventStore keeps each aggregate's log on its own JetStream subject.
// Appends with an expected version use the server side last-sequence check,
// so concurrent writers cannot interleave.
type EventStore struct {
	closeNc       closeFunc
	js            jetstream.JetStream
	stream        jetstream.Stream
	log           *slog.Logger
	registry      *es.EventRegistry
	subjectPrefix string
}

func NewEventStore(ctx context.Context, cfg EventStoreConfig) (*EventStore, error) {
	if cfg.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	connect := cfg.Connect
	if connect == nil {
		connect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = defaultStreamName
	}
	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}

	nc, closeNc, err := connect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	log = log.With(
		slog.String("store", "nats_js"),
		slog.String("stream", streamName),
		slog.String("subject_prefix", subjectPrefix),
	)

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    cfg.Storage,
		Duplicates: cfg.Duplicates,
		FirstSeq:   1,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}
	log.Debug("stream ensured")

	return &EventStore{
		closeNc:       closeNc,
		js:            js,
		stream:        stream,
		log:           log,
		registry:      cfg.Registry,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (e *EventStore) Close() error {
	e.closeNc()
	e.log.Debug("closed event store")
	return nil
}

// checkAggregate rejects names that would not map to exactly one subject.
func checkAggregate(aggType, aggID string) error {
	if err := es.CheckAggregateType(aggType, ". *>"); err != nil {
		return err
	}
	if aggID == "" || strings.ContainsAny(aggID, " *>") {
		return fmt.Errorf("invalid aggregate id %q", aggID)
	}
	return nil
}

func (e *EventStore) subjectForAggregate(aggType, aggID string) string {
	return e.subjectPrefix + "." + aggType + "." + aggID
}

func (e *EventStore) Load(ctx context.Context, aggType, aggID string) (loaded []es.DomainEvent, err error) {
	if err := checkAggregate(aggType, aggID); err != nil {
		return nil, err
	}
	startAt := time.Now()
	defer func() {
		if err == nil {
			e.log.Debug(
				"loaded events",
				slog.Group("agg", slog.String("type", aggType), slog.String("id", aggID)),
				slog.Int("count", len(loaded)),
				slog.Duration("duration", time.Since(startAt)),
			)
		}
	}()

	last, err := e.lastMsg(ctx, aggType, aggID)
	if err != nil || last == nil {
		return nil, err
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{e.subjectForAggregate(aggType, aggID)},
	})
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := cc.Fetch(100, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			return nil, err
		}
		empty := true
		for msg := range batch.Messages() {
			empty = false
			md, err := msg.Metadata()
			if err != nil {
				return nil, err
			}
			ev, err := e.decode(msg.Data())
			if err != nil {
				return nil, err
			}
			loaded = append(loaded, ev)
			if md.Sequence.Stream >= last.Sequence {
				return loaded, nil
			}
		}
		if batch.Error() != nil {
			return nil, batch.Error()
		}
		if empty {
			return nil, fmt.Errorf("load %s/%s: stream ended before sequence %d", aggType, aggID, last.Sequence)
		}
	}
}

func (e *EventStore) Append(ctx context.Context, aggType, aggID string, events []es.DomainEvent) error {
	if err := checkAggregate(aggType, aggID); err != nil {
		return err
	}
	_, err := e.publish(ctx, aggType, aggID, events, nil)
	return err
}

func (e *EventStore) AppendExpect(ctx context.Context, aggType, aggID string, expected es.Version, events []es.DomainEvent) error {
	if err := checkAggregate(aggType, aggID); err != nil {
		return err
	}
	last, err := e.lastMsg(ctx, aggType, aggID)
	if err != nil {
		return err
	}
	var (
		current es.Version
		lastSeq uint64
	)
	if last != nil {
		env, err := unmarshalEnvelope(last.Data)
		if err != nil {
			return err
		}
		current, lastSeq = env.Version, last.Sequence
	}
	if current != expected {
		return fmt.Errorf("%w: %s/%s expected version %d, got %d", es.ErrConcurrencyConflict, aggType, aggID, expected, current)
	}
	_, err = e.publish(ctx, aggType, aggID, events, &lastSeq)
	return err
}

// publish appends events in order. With lastSeq set every message must
// directly follow the previous one on the aggregate subject. Only a mismatch
// on the first message is a conflict; later ones leave part of the batch
// written.
func (e *EventStore) publish(ctx context.Context, aggType, aggID string, events []es.DomainEvent, lastSeq *uint64) (uint64, error) {
	subject := e.subjectForAggregate(aggType, aggID)
	var seq uint64
	for i, ev := range events {
		env, err := e.registry.Encode(ev)
		if err != nil {
			return 0, err
		}
		msg := natsgo.NewMsg(subject)
		msg.Header.Set("x-event-type", env.Type)
		msg.Header.Set("x-aggregate-type", aggType)
		msg.Header.Set("x-aggregate-id", aggID)
		if msg.Data, err = json.Marshal(env); err != nil {
			return 0, err
		}

		opts := []jetstream.PublishOpt{jetstream.WithMsgID(env.ID)}
		if lastSeq != nil {
			opts = append(opts, jetstream.WithExpectLastSequencePerSubject(*lastSeq))
		}
		ack, err := e.js.PublishMsg(ctx, msg, opts...)
		if err != nil {
			var apiErr *jetstream.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode == errCodeWrongLastSequence {
				if i > 0 {
					return 0, fmt.Errorf("publish %s: %d of %d events written: %s", subject, i, len(events), apiErr.Description)
				}
				return 0, fmt.Errorf("%w: %s/%s: %s", es.ErrConcurrencyConflict, aggType, aggID, apiErr.Description)
			}
			return 0, fmt.Errorf("publish %s %s: %w", subject, env.Type, err)
		}
		seq = ack.Sequence
		if lastSeq != nil {
			lastSeq = &seq
		}
	}
	return seq, nil
}

func (e *EventStore) lastMsg(ctx context.Context, aggType, aggID string) (*jetstream.RawStreamMsg, error) {
	m, err := e.stream.GetLastMsgForSubject(ctx, e.subjectForAggregate(aggType, aggID))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (e *EventStore) decode(data []byte) (es.DomainEvent, error) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	return e.registry.Decode(env)
}

func unmarshalEnvelope(data []byte) (es.Envelope, error) {
	var env es.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

var _ es.VersionedEventStore = (*EventStore)(nil)
