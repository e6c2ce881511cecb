package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

// Publisher announces finished planning runs over MQTT so downstream
// consumers (the live executor, dashboards) can re-read the schedule.
// Publishing is best effort, a broker outage never fails a run.
type Publisher struct {
	client mqtt.Client
	logger *slog.Logger
	topic  string
}

func New(cnfg config.AppConfigMqtt) *Publisher {
	logger := slog.Default().With("module", "notify")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cnfg.Host, cnfg.Port))
	opts.SetClientID("kepler")
	opts.SetUsername(cnfg.Username)
	opts.SetPassword(cnfg.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("MQTT connected")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	mqttLog := slog.Default().With("module", "mqtt")
	mqtt.CRITICAL = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.ERROR = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.WARN = newMqttLogger(mqttLog, slog.LevelWarn)

	return &Publisher{
		client: mqtt.NewClient(opts),
		logger: logger,
		topic:  cnfg.GetTopic(),
	}
}

func (p *Publisher) Connect() error {
	p.logger.Debug("connecting MQTT client")
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (p *Publisher) Disconnect() {
	p.logger.Info("disconnecting MQTT client")
	p.client.Disconnect(250)
}

// scheduleUpdatedMessage is the wire format of the notification. The
// schedule itself stays in the database, consumers fetch it from there.
type scheduleUpdatedMessage struct {
	PlannedAt      time.Time `json:"planned_at"`
	Status         string    `json:"status"`
	SlotCount      int       `json:"slot_count"`
	ObjectiveValue float64   `json:"objective_value"`
}

func (p *Publisher) ScheduleUpdated(run types.RunResult) {
	payload, err := json.Marshal(scheduleUpdatedMessage{
		PlannedAt:      run.PlannedAt,
		Status:         string(run.Status),
		SlotCount:      run.SlotCount,
		ObjectiveValue: run.ObjectiveValue,
	})
	if err != nil {
		p.logger.Error("error encoding schedule notification", slog.Any("error", err))
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.logger.Warn("timeout publishing schedule notification", slog.String("topic", p.topic))
		return
	}
	if token.Error() != nil {
		p.logger.Warn("error publishing schedule notification",
			slog.String("topic", p.topic), slog.Any("error", token.Error()))
		return
	}
	p.logger.Debug("schedule notification published", slog.String("topic", p.topic))
}
