package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oskarb/kepler/logging"
	"github.com/spf13/viper"
)

type AppConfigDatabase struct {
	Path string
	// How many days data should be stored in database before it gets purged
	DataRetentionDays *int `mapstructure:"data_retention_days"`
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetDataRetentionDays() int {
	if d.DataRetentionDays == nil {
		return 90
	}
	return *d.DataRetentionDays
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigSystem struct {
	HasBattery     bool `mapstructure:"has_battery"`
	HasWaterHeater bool `mapstructure:"has_water_heater"`
	HasSolar       bool `mapstructure:"has_solar"`
}

type AppConfigBatterySpec struct {
	CapacityKWh         float64 `mapstructure:"capacity_kwh"`           // Battery maximum capacity in kWh
	MinSocPercent       float64 `mapstructure:"min_soc_percent"`        // Battery minimum level in percentage
	MaxSocPercent       float64 `mapstructure:"max_soc_percent"`        // Battery maximum level in percentage
	MaxChargePowerKw    float64 `mapstructure:"max_charge_power_kw"`    // Maximum charge power in kW
	MaxDischargePowerKw float64 `mapstructure:"max_discharge_power_kw"` // Maximum discharge power in kW
	ChargeEfficiency    float64 `mapstructure:"charge_efficiency"`      // 0..1
	DischargeEfficiency float64 `mapstructure:"discharge_efficiency"`   // 0..1
	WearCostSekPerKWh   float64 `mapstructure:"wear_cost_sek_per_kwh"`  // Cost of cycling the battery
}

func (b AppConfigBatterySpec) MaxKWh() float64 {
	return b.CapacityKWh * b.MaxSocPercent / 100.0
}

func (b AppConfigBatterySpec) MinKWh() float64 {
	return b.CapacityKWh * b.MinSocPercent / 100.0
}

func (b AppConfigBatterySpec) GetChargeEfficiency() float64 {
	if b.ChargeEfficiency <= 0 || b.ChargeEfficiency > 1 {
		return 0.95
	}
	return b.ChargeEfficiency
}

func (b AppConfigBatterySpec) GetDischargeEfficiency() float64 {
	if b.DischargeEfficiency <= 0 || b.DischargeEfficiency > 1 {
		return 0.95
	}
	return b.DischargeEfficiency
}

type AppConfigWaterHeater struct {
	PowerKw      float64 `mapstructure:"power_kw"`
	MinKWhPerDay float64 `mapstructure:"min_kwh_per_day"`
	MaxGapHours  float64 `mapstructure:"max_gap_hours"` // threshold for the mild gap penalty, 0 disables
	// Penalty per violated gap window; gaps beyond 1.5x the threshold pay
	// it twice (the second tier of the rubber band).
	GapPenaltySek float64 `mapstructure:"gap_penalty_sek"`
	// Minimum spacing between heating session starts; closer starts pay
	// the spacing penalty.
	MinSpacingHours      float64 `mapstructure:"min_spacing_hours"`
	SpacingPenaltySek    float64 `mapstructure:"spacing_penalty_sek"`
	BlockStartPenaltySek float64 `mapstructure:"block_start_penalty_sek"`
	// Morning slots before this hour count against the previous day's quota.
	DeferUpToHours float64 `mapstructure:"defer_up_to_hours"`
}

func (w AppConfigWaterHeater) GetMinSpacingHours() float64 {
	if w.MinSpacingHours < 0 {
		return 0
	}
	return w.MinSpacingHours
}

type AppConfigGrid struct {
	MaxImportPowerKw float64 `mapstructure:"max_import_power_kw"` // hard fuse limit, 0 = unlimited
	MaxExportPowerKw float64 `mapstructure:"max_export_power_kw"`
	// Soft peak shaving limit; imports beyond it are penalized, not
	// forbidden. 0 disables it.
	PeakShavingLimitKw float64 `mapstructure:"peak_shaving_limit_kw"`
}

type AppConfigSolar struct {
	Kwp float64 `mapstructure:"kwp"`
	// How strongly full cloud cover cuts production, 0..1.
	CloudCoverImpact float64 `mapstructure:"cloud_cover_impact"`
}

func (s AppConfigSolar) GetCloudCoverImpact() float64 {
	if s.CloudCoverImpact <= 0 || s.CloudCoverImpact > 1 {
		return 0.8
	}
	return s.CloudCoverImpact
}

// AppConfigLocation is the plant coordinates, used for weather
// forecasts and the solar elevation model.
type AppConfigLocation struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type AppConfigPrices struct {
	Area string `mapstructure:"area"` // Elspot bidding area
}

func (p AppConfigPrices) GetArea() string {
	if p.Area == "" {
		return "SE3"
	}
	return p.Area
}

type AppConfigPlanner struct {
	SlotMinutes  int    `mapstructure:"slot_minutes"`  // scheduling bucket size, default 15
	HorizonHours int    `mapstructure:"horizon_hours"` // how far ahead to plan, default 48
	RunAt        string `mapstructure:"run_at"`        // cron expression for planning runs
	// Wall-clock cap for one solve; the best incumbent found so far is
	// returned when exceeded.
	SolveTimeoutSeconds int `mapstructure:"solve_timeout_seconds"`
	FetchRetries        int `mapstructure:"fetch_retries"` // provider fetch attempts before degrading to cached data
	HistoryDays         int `mapstructure:"history_days"`  // days of executed slots behind the load forecast
}

func (p AppConfigPlanner) SlotDuration() time.Duration {
	if p.SlotMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(p.SlotMinutes) * time.Minute
}

func (p AppConfigPlanner) GetHorizonHours() int {
	if p.HorizonHours <= 0 {
		return 48
	}
	return p.HorizonHours
}

func (p AppConfigPlanner) SolveTimeout() time.Duration {
	if p.SolveTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.SolveTimeoutSeconds) * time.Second
}

func (p AppConfigPlanner) GetHistoryDays() int {
	if p.HistoryDays <= 0 {
		return 7
	}
	return p.HistoryDays
}

func (p AppConfigPlanner) GetRunAt() string {
	if p.RunAt == "" {
		return "@hourly"
	}
	return p.RunAt
}

func (p AppConfigPlanner) GetFetchRetries() int {
	if p.FetchRetries <= 0 {
		return 3
	}
	return p.FetchRetries
}

type AppConfigStrategy struct {
	// Baseline cost weights; the risk index scales them upward but never
	// below these configured floors.
	RampingCostSekPerKw   float64 `mapstructure:"ramping_cost_sek_per_kw"`
	ExportThresholdSekKWh float64 `mapstructure:"export_threshold_sek_per_kwh"`

	BaseFactor      float64 `mapstructure:"base_factor"`       // baseline load inflation
	MaxFactor       float64 `mapstructure:"max_factor"`        // cap for the risk index
	MinFactor       float64 `mapstructure:"min_factor"`        // floor for aggressive appetites
	PvDeficitWeight float64 `mapstructure:"pv_deficit_weight"` // weight of tomorrow's PV deficit
	TempWeight      float64 `mapstructure:"temp_weight"`
	TempBaselineC   float64 `mapstructure:"temp_baseline_c"`
	TempColdC       float64 `mapstructure:"temp_cold_c"`
	// 1=safety .. 5=gambler
	RiskAppetite        int     `mapstructure:"risk_appetite"`
	PvConfidencePercent float64 `mapstructure:"pv_confidence_percent"`
}

func (s AppConfigStrategy) GetRiskAppetite() int {
	if s.RiskAppetite < 1 || s.RiskAppetite > 5 {
		return 3
	}
	return s.RiskAppetite
}

func (s AppConfigStrategy) GetBaseFactor() float64 {
	if s.BaseFactor <= 0 {
		return 1.05
	}
	return s.BaseFactor
}

func (s AppConfigStrategy) GetMaxFactor() float64 {
	if s.MaxFactor <= 0 {
		return 1.5
	}
	return s.MaxFactor
}

func (s AppConfigStrategy) GetMinFactor() float64 {
	if s.MinFactor <= 0 {
		return 0.8
	}
	return s.MinFactor
}

func (s AppConfigStrategy) GetPvConfidence() float64 {
	if s.PvConfidencePercent <= 0 {
		return 0.9
	}
	return s.PvConfidencePercent / 100.0
}

func (s AppConfigStrategy) GetTempBaselineC() float64 {
	if s.TempBaselineC == 0 {
		return 20.0
	}
	return s.TempBaselineC
}

func (s AppConfigStrategy) GetTempColdC() float64 {
	if s.TempColdC == 0 {
		return -15.0
	}
	return s.TempColdC
}

type AppConfigMqtt struct {
	Host     string `mapstructure:"host"`
	Port     int16  `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"` // schedule update notifications
	// Topic the plant bridge publishes live battery/water state on.
	LiveStateTopic string `mapstructure:"live_state_topic"`
}

func (m AppConfigMqtt) GetLiveStateTopic() string {
	if m.LiveStateTopic == "" {
		return "kepler/state/live"
	}
	return m.LiveStateTopic
}

func (m AppConfigMqtt) GetTopic() string {
	if m.Topic == "" {
		return "kepler/schedule/updated"
	}
	return m.Topic
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return "JSON"
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return "TEXT"
	}
	return "JSON"
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Timezone    string
	Database    AppConfigDatabase
	System      AppConfigSystem
	BatterySpec AppConfigBatterySpec `mapstructure:"battery_spec"`
	WaterHeater AppConfigWaterHeater `mapstructure:"water_heater"`
	Grid        AppConfigGrid
	Solar       AppConfigSolar
	Location    AppConfigLocation
	Prices      AppConfigPrices
	Planner     AppConfigPlanner
	Strategy    AppConfigStrategy
	Mqtt        AppConfigMqtt
	Logging     AppConfigLogging
}

func (c AppConfig) GetTimezone() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

func Load(path string) (*AppConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c AppConfig

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	return &c, nil
}
