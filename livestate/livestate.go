package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

// stateMessage is the wire format the plant bridge publishes whenever
// the battery or water heater state changes.
type stateMessage struct {
	BatterySocPercent   float64   `json:"battery_soc_percent"`
	WaterHeatedTodayKWh float64   `json:"water_heated_today_kwh"`
	ObservedAt          time.Time `json:"observed_at"`
}

// Subscriber keeps the last observed plant state from MQTT in memory.
// Planning reads it as a snapshot, it is never recomputed here.
type Subscriber struct {
	client mqtt.Client
	logger *slog.Logger
	topic  string
	maxAge time.Duration

	mu    sync.RWMutex
	state types.LiveState
	seen  bool
}

func New(cnfg config.AppConfigMqtt) *Subscriber {
	logger := slog.Default().With("module", "livestate")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cnfg.Host, cnfg.Port))
	opts.SetClientID("kepler-livestate")
	opts.SetUsername(cnfg.Username)
	opts.SetPassword(cnfg.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("live state MQTT connected")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("live state MQTT connection lost", slog.Any("error", err))
	}

	return &Subscriber{
		client: mqtt.NewClient(opts),
		logger: logger,
		topic:  cnfg.GetLiveStateTopic(),
		maxAge: 30 * time.Minute,
	}
}

func (s *Subscriber) Connect() error {
	s.logger.Debug("connecting live state MQTT client")
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	token := s.client.Subscribe(s.topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		var state stateMessage
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			s.logger.Error("error when reading live state message", slog.Any("error", err))
			return
		}
		observedAt := state.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now()
		}
		s.mu.Lock()
		s.state = types.LiveState{
			BatterySocPercent:   state.BatterySocPercent,
			WaterHeatedTodayKWh: state.WaterHeatedTodayKWh,
			ObservedAt:          observedAt,
		}
		s.seen = true
		s.mu.Unlock()
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (s *Subscriber) Disconnect() {
	s.logger.Info("disconnecting live state MQTT client")
	token := s.client.Unsubscribe(s.topic)
	token.WaitTimeout(1 * time.Second)
	s.client.Disconnect(250)
}

// GetLiveState returns the last plant state seen on the wire. A state
// older than maxAge is treated as unavailable so that planning falls
// back to its conservative defaults instead of trusting stale data.
func (s *Subscriber) GetLiveState(ctx context.Context) (types.LiveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return types.LiveState{}, fmt.Errorf("no live state received yet on %q", s.topic)
	}
	if age := time.Since(s.state.ObservedAt); age > s.maxAge {
		return types.LiveState{}, fmt.Errorf("live state is %s old, discarding", age.Round(time.Second))
	}
	return s.state, nil
}
