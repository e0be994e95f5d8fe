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
package model

// Abbreviation maps a tag-name token to its expansion. Priority breaks ties
// when the same token has several context-dependent meanings; higher wins.
type Abbreviation struct {
	Token       string `db:"token" json:"token"`
	Expansion   string `db:"expansion" json:"expansion"`
	Context     string `db:"context" json:"context"`
	Priority    int    `db:"priority" json:"priority"`
	Measurement string `db:"measurement" json:"measurement"`
}

// UnitMapping maps an engineering-unit symbol to its canonical measurement
// type ("bar" → pressure, "°C" → temperature, ...).
type UnitMapping struct {
	Unit        string `db:"unit" json:"unit"`
	Measurement string `db:"measurement" json:"measurement"`
}

// NamingConvention is a site-wide tag naming rule. When its regex matches a
// group's tag names the proactive matcher adds Boost to its knowledge score.
type NamingConvention struct {
	ID      string  `db:"id" json:"id"`
	Regex   string  `db:"regex" json:"regex"`
	Boost   float64 `db:"boost" json:"boost"`
	Comment string  `db:"comment" json:"comment"`
}

// MeasurementType is one node of the measurement-type hierarchy.
type MeasurementType struct {
	Name   string `db:"name" json:"name"`
	Parent string `db:"parent" json:"parent"`
}
