package mqttnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const defaultTopic = "narwhal/runs/{client}"

var _ domain.Notifier = (*Publisher)(nil)

type Options struct {
	Broker   string // tcp://host:1883
	Topic    string // "{client}" expands to the client slug
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

// Publisher sends a compact run summary to an MQTT broker after each run.
type Publisher struct {
	opts Options
	log  *log.Entry
}

func New(opts Options, logger *log.Entry) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if !strings.Contains(opts.Broker, "://") {
		opts.Broker = "tcp://" + opts.Broker
	}
	if opts.Topic == "" {
		opts.Topic = defaultTopic
	}
	if opts.QoS > 1 {
		return nil, fmt.Errorf("mqtt: unsupported qos %d", opts.QoS)
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("narwhal-%d", time.Now().UnixNano())
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Publisher{opts: opts, log: logger}, nil
}

func (p *Publisher) Topic(run *domain.RunResult) string {
	return strings.ReplaceAll(p.opts.Topic, "{client}", run.Client.Slug())
}

func (p *Publisher) Publish(ctx context.Context, run *domain.RunResult) error {
	payload, err := Payload(run)
	if err != nil {
		return err
	}

	co := mqtt.NewClientOptions().
		AddBroker(p.opts.Broker).
		SetClientID(p.opts.ClientID).
		SetProtocolVersion(4).
		SetConnectTimeout(p.opts.Timeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
	if p.opts.Username != "" {
		co.SetUsername(p.opts.Username)
		co.SetPassword(p.opts.Password)
	}

	client := mqtt.NewClient(co)
	if err := wait(ctx, client.Connect(), p.opts.Timeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.opts.Broker, err)
	}
	defer client.Disconnect(250)

	topic := p.Topic(run)
	if err := wait(ctx, client.Publish(topic, p.opts.QoS, p.opts.Retain, payload), p.opts.Timeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	p.log.WithFields(log.Fields{
		"broker": p.opts.Broker,
		"topic":  topic,
		"bytes":  len(payload),
	}).Info("Published run summary")
	return nil
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out")
	}
}

type summary struct {
	RunID      string         `json:"run_id"`
	Client     string         `json:"client"`
	Category   string         `json:"category"`
	Workflow   string         `json:"workflow,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
	Score      int            `json:"score"`
	Level      string         `json:"level"`
	Breakdown  map[string]int `json:"breakdown"`
	Techniques []string       `json:"mitre_observed"`
	Steps      int            `json:"steps"`
	Failed     int            `json:"failed"`
}

// Payload is the JSON document published for a run. Raw step output is left
// out to keep messages small.
func Payload(run *domain.RunResult) ([]byte, error) {
	s := summary{
		RunID:      run.RunID,
		Client:     run.Client.Name,
		Category:   run.Client.Category,
		Workflow:   run.Workflow,
		FinishedAt: run.FinishedAt,
		Score:      run.RiskScore.Score,
		Level:      string(run.RiskScore.Level),
		Breakdown:  run.RiskScore.Breakdown,
		Techniques: run.MitreObserved,
		Steps:      run.Results.Len(),
		Failed:     run.Results.Failed(),
	}
	if s.Breakdown == nil {
		s.Breakdown = map[string]int{}
	}
	if s.Techniques == nil {
		s.Techniques = []string{}
	}
	return json.Marshal(s)
}
