package calc

// GridCashFlow is the planned grid bill for one slot: import cost minus
// export revenue. Positive means paying, negative means earning.
func GridCashFlow(importKWh, exportKWh, importPrice, exportPrice float64) float64 {
	return importKWh*importPrice - exportKWh*exportPrice
}

// EffectiveExportPrice applies the profitability threshold: exporting
// only pays once the spread clears the threshold.
func EffectiveExportPrice(price, threshold float64) float64 {
	return price - threshold
}

// WearCost prices battery cycling over both directions.
func WearCost(chargeKWh, dischargeKWh, costPerKWh float64) float64 {
	return (chargeKWh + dischargeKWh) * costPerKWh
}
