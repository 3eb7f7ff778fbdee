package portal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"timestamp", "pv_power", "battery_power", "grid_power", "consumption", "battery_soc"}

// ExportCSV writes readings in the dashboard's CSV layout.
func ExportCSV(w io.Writer, rows []Reading) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Timestamp,
			formatFloat(r.PVPower),
			formatFloat(r.BatteryPower),
			formatFloat(r.GridPower),
			formatFloat(r.Consumption),
			formatFloat(r.BatterySOC),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes readings as an indented JSON array.
func ExportJSON(w io.Writer, rows []Reading) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode readings: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
