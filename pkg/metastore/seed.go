// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package metastore

import (
	"context"
	"database/sql"
	"time"

	"github.com/teradata-labs/flywheel/pkg/model"
)

func f64(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Seed installs the system pattern library and the starter knowledge base.
// Idempotent: every write is an upsert on a natural key, and confidences of
// already-learned patterns are left alone.
func (s *Store) Seed(ctx context.Context) error {
	if _, err := s.seedPatterns(ctx); err != nil {
		return err
	}
	return s.seedKnowledge(ctx)
}

func (s *Store) seedPatterns(ctx context.Context) (int, error) {
	type seedPattern struct {
		pattern model.Pattern
		roles   []model.PatternRole
	}
	seeds := []seedPattern{
		{
			pattern: model.Pattern{
				Name:        "Centrifugal Pump",
				Category:    "rotating equipment",
				Description: "Single-stage centrifugal pump with motor telemetry",
				Confidence:  0.85,
				Active:      true,
			},
			roles: []model.PatternRole{
				{Name: "discharge_pressure", Required: true, Weight: 1.0,
					NamePatterns: []string{`dis(ch)?(arge)?[_.\-]?press`, `out(let)?[_.\-]?press`},
					ExpectedUnit: "bar", ExpectedMin: f64(0), ExpectedMax: f64(60), TypicalEvery: 5 * time.Second},
				{Name: "suction_pressure", Required: true, Weight: 1.0,
					NamePatterns: []string{`suc(tion)?[_.\-]?press`, `in(let)?[_.\-]?press`},
					ExpectedUnit: "bar", ExpectedMin: f64(-1), ExpectedMax: f64(10), TypicalEvery: 5 * time.Second},
				{Name: "flow", Required: true, Weight: 1.0,
					NamePatterns: []string{`flow`, `flw`},
					ExpectedUnit: "m3/h", ExpectedMin: f64(0), ExpectedMax: f64(1000), TypicalEvery: 5 * time.Second},
				{Name: "motor_current", Required: false, Weight: 0.6,
					NamePatterns: []string{`amps?`, `curr(ent)?`, `motor[_.\-]?i`},
					ExpectedUnit: "A", ExpectedMin: f64(0), ExpectedMax: f64(500), TypicalEvery: 5 * time.Second},
				{Name: "discharge_temperature", Required: false, Weight: 0.4,
					NamePatterns: []string{`temp`, `dis(ch)?[_.\-]?temp`},
					ExpectedUnit: "°C", ExpectedMin: f64(-20), ExpectedMax: f64(150), TypicalEvery: 10 * time.Second},
			},
		},
		{
			pattern: model.Pattern{
				Name:        "Horizontal Axis Wind Turbine",
				Category:    "renewable generation",
				Description: "Utility-scale horizontal axis wind turbine",
				Confidence:  0.88,
				Active:      true,
			},
			roles: []model.PatternRole{
				{Name: "wind_speed", Required: true, Weight: 1.0,
					NamePatterns: []string{`wind[_.\-]?speed`, `wspd`, `anemometer`},
					TypicalEvery: time.Second},
				{Name: "active_power", Required: true, Weight: 1.0,
					NamePatterns: []string{`power`, `pwr`, `kw\b`},
					TypicalEvery: time.Second},
				{Name: "rotor_speed", Required: true, Weight: 1.0,
					NamePatterns: []string{`rotor[_.\-]?rpm`, `rotor[_.\-]?speed`, `\brpm`},
					TypicalEvery: time.Second},
				{Name: "blade_pitch", Required: false, Weight: 0.5,
					NamePatterns: []string{`pitch`},
					TypicalEvery: time.Second},
				{Name: "nacelle_position", Required: false, Weight: 0.5,
					NamePatterns: []string{`nacelle`, `yaw`},
					TypicalEvery: 5 * time.Second},
			},
		},
		{
			pattern: model.Pattern{
				Name:        "Battery Energy Storage",
				Category:    "energy storage",
				Description: "Grid-connected battery energy storage system",
				Confidence:  0.75,
				Active:      true,
			},
			roles: []model.PatternRole{
				{Name: "state_of_charge", Required: true, Weight: 1.0,
					NamePatterns: []string{`soc`, `state[_.\-]?of[_.\-]?charge`},
					ExpectedUnit: "%", ExpectedMin: f64(0), ExpectedMax: f64(100), TypicalEvery: 10 * time.Second},
				{Name: "dc_voltage", Required: true, Weight: 1.0,
					NamePatterns: []string{`volt`, `\bv(dc)?\b`},
					ExpectedUnit: "V", ExpectedMin: f64(0), ExpectedMax: f64(1500), TypicalEvery: 5 * time.Second},
				{Name: "dc_current", Required: true, Weight: 1.0,
					NamePatterns: []string{`curr(ent)?`, `amps?`},
					ExpectedUnit: "A", ExpectedMin: f64(-2000), ExpectedMax: f64(2000), TypicalEvery: 5 * time.Second},
				{Name: "cell_temperature", Required: false, Weight: 0.5,
					NamePatterns: []string{`temp`, `cell[_.\-]?t`},
					ExpectedUnit: "°C", ExpectedMin: f64(-30), ExpectedMax: f64(80), TypicalEvery: 30 * time.Second},
			},
		},
	}

	n := 0
	for _, sp := range seeds {
		existing, err := s.GetPatternByName(ctx, sp.pattern.Name)
		if err == nil {
			// Re-seeding must not clobber learned confidence.
			sp.pattern.Confidence = existing.Confidence
		}
		p, err := s.UpsertPattern(ctx, sp.pattern)
		if err != nil {
			return n, err
		}
		for i, role := range sp.roles {
			role.PatternID = p.ID
			role.Position = i
			if err := s.UpsertRole(ctx, role); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

func (s *Store) seedKnowledge(ctx context.Context) error {
	abbrevs := []model.Abbreviation{
		{Token: "dis", Expansion: "discharge", Context: "pump", Priority: 10},
		{Token: "disch", Expansion: "discharge", Context: "pump", Priority: 10},
		{Token: "suc", Expansion: "suction", Context: "pump", Priority: 10},
		{Token: "press", Expansion: "pressure", Priority: 10, Measurement: "pressure"},
		{Token: "pt", Expansion: "pressure transmitter", Priority: 5, Measurement: "pressure"},
		{Token: "flow", Expansion: "flow", Priority: 10, Measurement: "flow"},
		{Token: "flw", Expansion: "flow", Priority: 8, Measurement: "flow"},
		{Token: "ft", Expansion: "flow transmitter", Priority: 5, Measurement: "flow"},
		{Token: "temp", Expansion: "temperature", Priority: 10, Measurement: "temperature"},
		{Token: "tt", Expansion: "temperature transmitter", Priority: 5, Measurement: "temperature"},
		{Token: "amps", Expansion: "motor current", Priority: 10, Measurement: "current"},
		{Token: "curr", Expansion: "current", Priority: 8, Measurement: "current"},
		{Token: "pwr", Expansion: "power", Priority: 10, Measurement: "power"},
		{Token: "power", Expansion: "power", Priority: 10, Measurement: "power"},
		{Token: "rpm", Expansion: "rotational speed", Priority: 10, Measurement: "rotational_speed"},
		{Token: "spd", Expansion: "speed", Priority: 8, Measurement: "speed"},
		{Token: "windspeed", Expansion: "wind speed", Priority: 10, Measurement: "speed"},
		{Token: "rotorrpm", Expansion: "rotor speed", Priority: 10, Measurement: "rotational_speed"},
		{Token: "lvl", Expansion: "level", Priority: 8, Measurement: "level"},
		{Token: "soc", Expansion: "state of charge", Priority: 10, Measurement: "percentage"},
		{Token: "vib", Expansion: "vibration", Priority: 8, Measurement: "vibration"},
	}
	for _, a := range abbrevs {
		if err := s.UpsertAbbreviation(ctx, a); err != nil {
			return err
		}
	}

	units := []model.UnitMapping{
		{Unit: "bar", Measurement: "pressure"},
		{Unit: "psi", Measurement: "pressure"},
		{Unit: "kPa", Measurement: "pressure"},
		{Unit: "°C", Measurement: "temperature"},
		{Unit: "°F", Measurement: "temperature"},
		{Unit: "K", Measurement: "temperature"},
		{Unit: "m3/h", Measurement: "flow"},
		{Unit: "l/min", Measurement: "flow"},
		{Unit: "A", Measurement: "current"},
		{Unit: "V", Measurement: "voltage"},
		{Unit: "kW", Measurement: "power"},
		{Unit: "MW", Measurement: "power"},
		{Unit: "rpm", Measurement: "rotational_speed"},
		{Unit: "m/s", Measurement: "speed"},
		{Unit: "Hz", Measurement: "frequency"},
		{Unit: "%", Measurement: "percentage"},
		{Unit: "mm/s", Measurement: "vibration"},
	}
	for _, u := range units {
		if err := s.UpsertUnitMapping(ctx, u); err != nil {
			return err
		}
	}

	conventions := []model.NamingConvention{
		{ID: "asset-prefix", Regex: `^[A-Za-z]{1,4}[_\-]?\d{2,4}[_.\-]`, Boost: 1.0,
			Comment: "site standard: asset prefix then measurement"},
		{ID: "pump-tag", Regex: `^(P|PU|PMP)\d+`, Boost: 0.9, Comment: "pump asset tag"},
		{ID: "turbine-tag", Regex: `^(WT|WTG|T)\d+`, Boost: 0.9, Comment: "wind turbine asset tag"},
	}
	for _, c := range conventions {
		if err := s.UpsertNamingConvention(ctx, c); err != nil {
			return err
		}
	}

	types := []model.MeasurementType{
		{Name: "pressure"}, {Name: "temperature"}, {Name: "flow"},
		{Name: "current", Parent: "electrical"}, {Name: "voltage", Parent: "electrical"},
		{Name: "power", Parent: "electrical"}, {Name: "frequency", Parent: "electrical"},
		{Name: "electrical"}, {Name: "speed"}, {Name: "rotational_speed", Parent: "speed"},
		{Name: "level"}, {Name: "percentage"}, {Name: "vibration"},
	}
	for _, m := range types {
		if err := s.UpsertMeasurementType(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
