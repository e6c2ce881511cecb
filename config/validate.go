package config

import (
	"fmt"

	"github.com/oskarb/kepler/types"
)

// Validate checks the consistency of the feature toggles against the
// hardware specs. A battery toggle without capacity is a hard error since
// it would corrupt the solver's bounds; a toggled water heater or solar
// array without ratings only degrades the feature, so those come back as
// warnings and the run proceeds.
func (c *AppConfig) Validate() ([]types.Issue, error) {
	var issues []types.Issue

	if c.System.HasBattery && c.BatterySpec.CapacityKWh <= 0 {
		return nil, fmt.Errorf(
			"system.has_battery is true but battery_spec.capacity_kwh is not set (or is 0); " +
				"set battery_spec.capacity_kwh or set system.has_battery to false")
	}

	if c.System.HasWaterHeater && c.WaterHeater.PowerKw <= 0 {
		issues = append(issues, types.Issue{
			Code:     types.IssueWaterHeaterNoPower,
			Severity: types.SeverityWarning,
			Message:  "has_water_heater is true but water_heater.power_kw is 0, water heating is disabled",
		})
	}

	if c.System.HasSolar && c.Solar.Kwp <= 0 {
		issues = append(issues, types.Issue{
			Code:     types.IssueSolarNoCapacity,
			Severity: types.SeverityWarning,
			Message:  "has_solar is true but solar.kwp is 0, PV forecasts will be zero",
		})
	}

	return issues, nil
}
