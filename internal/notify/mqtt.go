// Package notify publishes the day's schedule and next-prayer changes to an
// MQTT broker so an adhan system on the network can stay in sync.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// SchedulePayload is published, retained, on <topic>/schedule.
type SchedulePayload struct {
	Date     string            `json:"date"` // YYYY-MM-DD
	Timezone string            `json:"timezone"`
	Location geo.Location      `json:"location"`
	Prayers  map[string]string `json:"prayers"` // name -> HH:MM
}

// NextPayload is published, retained, on <topic>/next at every rollover.
type NextPayload struct {
	Prayer   string    `json:"prayer"`
	Label    string    `json:"label"`
	At       time.Time `json:"at"`
	Previous string    `json:"previous"`
}

// Publisher sends adhan-sync messages. It implements countdown.Observer.
type Publisher struct {
	client   mqtt.Client
	topic    string
	language string
	log      zerolog.Logger
}

var _ countdown.Observer = (*Publisher)(nil)

// Dial connects to broker (e.g. "tcp://localhost:1883") and returns a Publisher
// rooted at topic.
func Dial(broker, topic, language string, log zerolog.Logger) (*Publisher, error) {
	log = log.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("prayer-clock-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Debug().Str("broker", broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}

	return New(client, topic, language, log), nil
}

// New wraps an already connected client.
func New(client mqtt.Client, topic, language string, log zerolog.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, language: language, log: log}
}

// ScheduleTopic returns the topic the schedule is published on.
func (p *Publisher) ScheduleTopic() string { return p.topic + "/schedule" }

// NextTopic returns the topic next-prayer changes are published on.
func (p *Publisher) NextTopic() string { return p.topic + "/next" }

// PublishSchedule publishes s as the retained schedule and waits for the broker.
func (p *Publisher) PublishSchedule(s *prayer.Schedule, loc geo.Location) error {
	payload := SchedulePayload{
		Date:     s.Date().Format("2006-01-02"),
		Timezone: s.Location().String(),
		Location: loc,
		Prayers:  make(map[string]string, len(prayer.Order)),
	}
	for name, t := range s.Timings() {
		payload.Prayers[string(name)] = t
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	token := p.client.Publish(p.ScheduleTopic(), qos, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("failed to publish schedule: timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish schedule: %w", err)
	}
	p.log.Debug().Str("topic", p.ScheduleTopic()).Str("date", payload.Date).Msg("schedule published")
	return nil
}

// OnTick is a no-op; only rollovers are published.
func (p *Publisher) OnTick(countdown.State) {}

// OnRollover publishes the new next prayer. It does not wait for the broker.
func (p *Publisher) OnRollover(_, to countdown.Interval) {
	data, err := json.Marshal(NextPayload{
		Prayer:   string(to.Next.Name),
		Label:    to.Next.Name.Label(p.language),
		At:       to.End,
		Previous: string(to.Previous.Name),
	})
	if err != nil {
		p.log.Error().Err(err).Msg("failed to marshal next prayer")
		return
	}

	token := p.client.Publish(p.NextTopic(), qos, true, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn().Str("topic", p.NextTopic()).Msg("publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("topic", p.NextTopic()).Msg("publish failed")
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
