package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/streaming"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

const publishTimeout = 2 * time.Second

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher mirrors run progress and final reports to an MQTT broker:
// <prefix>/runs/<id>/progress and <prefix>/runs/<id>/report (retained).
type Publisher struct {
	client Client
	conn   mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

func NewPublisher(client Client, prefix string, qos byte, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    qos,
		logger: logger.With(zap.String("module", "mqtt")),
	}
}

// Connect dials the broker from cfg and returns a ready publisher.
func Connect(ctx context.Context, cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	logger = logger.With(zap.String("module", "mqtt"))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("Connected to broker", zap.String("broker", cfg.Broker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("Broker connection lost", zap.Error(err))
		}).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(30 * time.Second)

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
		}
	case <-ctx.Done():
		conn.Disconnect(0)
		return nil, errors.New("mqtt connect: context canceled")
	}

	p := NewPublisher(conn, cfg.TopicPrefix, cfg.QoS, logger)
	p.conn = conn
	return p, nil
}

// Run publishes every progress update until ctx is done.
func (p *Publisher) Run(ctx context.Context, streamer *streaming.ProgressStreamer) {
	updates := streamer.SubscribeAll()
	defer streamer.UnsubscribeAll(updates)

	for {
		select {
		case <-ctx.Done():
			return
		case progress, ok := <-updates:
			if !ok {
				return
			}
			p.publish(p.ProgressTopic(progress.RunID.String()), false, progress)
		}
	}
}

// RunReported publishes the final report of a run.
func (p *Publisher) RunReported(_ context.Context, report *types.SyncReport) {
	p.publish(p.ReportTopic(report.RunID.String()), true, report.View())
}

func (p *Publisher) ProgressTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/progress", p.prefix, runID)
}

func (p *Publisher) ReportTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/report", p.prefix, runID)
}

func (p *Publisher) publish(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to encode payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("Publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("Publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if p.conn != nil && p.conn.IsConnected() {
		p.conn.Disconnect(500)
	}
}
