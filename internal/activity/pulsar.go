package activity

import (
	"context"
	"errors"

	"github.com/apache/pulsar-client-go/pulsar"
	pulsarlog "github.com/apache/pulsar-client-go/pulsar/log"
	"github.com/sirupsen/logrus"
)

type PulsarOptions struct {
	URL   string
	Topic string
	Name  string
	Log   *logrus.Logger
}

type Pulsar struct {
	client   pulsar.Client
	producer pulsar.Producer
	log      logrus.FieldLogger
}

func NewPulsar(options PulsarOptions) (*Pulsar, error) {
	if options.URL == "" || options.Topic == "" {
		return nil, errors.New("activity: broker url and topic are required")
	}

	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:    options.URL,
		Logger: pulsarlog.NewLoggerWithLogrus(options.Log),
	})
	if err != nil {
		return nil, err
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: options.Topic,
		Name:  options.Name,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Pulsar{
		client:   client,
		producer: producer,
		log:      options.Log.WithField("component", "activity"),
	}, nil
}

// Publish queues event and returns once it is encoded; delivery failures
// are logged.
func (p *Pulsar) Publish(ctx context.Context, event *Event) error {
	payload, err := event.payload()
	if err != nil {
		return err
	}

	p.producer.SendAsync(ctx, &pulsar.ProducerMessage{
		Key:     event.UserID,
		Payload: payload,
	}, func(id pulsar.MessageID, msg *pulsar.ProducerMessage, err error) {
		if err != nil {
			p.log.WithError(err).WithField("topic", event.Topic.Value).Error("failed to publish activity")
		}
	})

	return nil
}

func (p *Pulsar) Close() {
	if err := p.producer.Flush(); err != nil {
		p.log.WithError(err).Warn("flush failed")
	}

	p.producer.Close()
	p.client.Close()
}
