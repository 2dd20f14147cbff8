package censusapi

import (
	"encoding/json"
	"strings"
)

// Release identifies the data vintage behind a DataShowPayload.
type Release struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Years string `json:"years,omitempty"`
}

// TableMeta is per-table metadata from the data/show endpoint.
type TableMeta struct {
	TableTitle       string                `json:"table_title,omitempty"`
	SimpleTableTitle string                `json:"simple_table_title,omitempty"`
	Universe         string                `json:"universe,omitempty"`
	Columns          map[string]ColumnMeta `json:"columns,omitempty"`
}

// Title returns the preferred display title for the table.
func (t TableMeta) Title() string {
	if t.SimpleTableTitle != "" {
		return t.SimpleTableTitle
	}
	return t.TableTitle
}

// ColumnMeta describes one column of a statistical table.
type ColumnMeta struct {
	ColumnTitle string `json:"column_title,omitempty"`
	Indent      int    `json:"indent,omitempty"`
}

// GeographyMeta is per-geography display metadata.
type GeographyMeta struct {
	Name string `json:"name,omitempty"`
}

// TableData holds the estimates and margins of error for one table scoped
// to one geography. Null upstream values stay nil.
type TableData struct {
	Estimate map[string]*float64 `json:"estimate"`
	Error    map[string]*float64 `json:"error"`
}

// DataShowPayload is the aggregate result of a data/show fetch:
// release metadata, table metadata, geography metadata, and estimates
// keyed geoid → table → column.
type DataShowPayload struct {
	Release   *Release                         `json:"release"`
	Tables    map[string]TableMeta             `json:"tables"`
	Geography map[string]GeographyMeta         `json:"geography"`
	Data      map[string]map[string]*TableData `json:"data"`
}

// NewEmptyPayload returns a payload ready to accumulate merges.
func NewEmptyPayload() *DataShowPayload {
	return &DataShowPayload{
		Tables:    map[string]TableMeta{},
		Geography: map[string]GeographyMeta{},
		Data:      map[string]map[string]*TableData{},
	}
}

// Merge folds incoming into p. Merging is additive and idempotent on keys:
// the scalar release is set once (first non-nil wins), map sections are
// merged key-by-key rather than wholesale-replaced.
func (p *DataShowPayload) Merge(incoming *DataShowPayload) {
	if incoming == nil {
		return
	}

	if p.Release == nil && incoming.Release != nil {
		p.Release = incoming.Release
	}

	if incoming.Tables != nil {
		if p.Tables == nil {
			p.Tables = map[string]TableMeta{}
		}
		for id, meta := range incoming.Tables {
			p.Tables[id] = meta
		}
	}

	if incoming.Geography != nil {
		if p.Geography == nil {
			p.Geography = map[string]GeographyMeta{}
		}
		for geoid, meta := range incoming.Geography {
			p.Geography[geoid] = meta
		}
	}

	if incoming.Data != nil {
		if p.Data == nil {
			p.Data = map[string]map[string]*TableData{}
		}
		for geoid, tables := range incoming.Data {
			if p.Data[geoid] == nil {
				p.Data[geoid] = map[string]*TableData{}
			}
			for tableID, data := range tables {
				p.Data[geoid][tableID] = data
			}
		}
	}
}

// Estimate returns the estimate for (geoid, table, column), or nil when the
// geography, table, or column is absent or null.
func (p *DataShowPayload) Estimate(geoid, tableID, columnID string) *float64 {
	td := p.tableData(geoid, tableID)
	if td == nil {
		return nil
	}
	return td.Estimate[columnID]
}

// MOE returns the margin of error for (geoid, table, column), or nil.
func (p *DataShowPayload) MOE(geoid, tableID, columnID string) *float64 {
	td := p.tableData(geoid, tableID)
	if td == nil {
		return nil
	}
	return td.Error[columnID]
}

// GeographyName returns the display name for a geoid, or "" when unknown.
func (p *DataShowPayload) GeographyName(geoid string) string {
	if p == nil {
		return ""
	}
	return p.Geography[geoid].Name
}

func (p *DataShowPayload) tableData(geoid, tableID string) *TableData {
	if p == nil || p.Data == nil {
		return nil
	}
	tables := p.Data[geoid]
	if tables == nil {
		return nil
	}
	return tables[tableID]
}

// GeographyRecord identifies a geographic area in the comparison hierarchy.
type GeographyRecord struct {
	Sumlevel    Sumlevel `json:"sumlevel"`
	GeoID       string   `json:"geoid,omitempty"`
	FullGeoID   string   `json:"full_geoid,omitempty"`
	Relation    string   `json:"relation,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
}

// EffectiveGeoID returns geoid, falling back to full_geoid (the ancestor
// endpoint uses either name depending on vintage).
func (r GeographyRecord) EffectiveGeoID() string {
	if r.GeoID != "" {
		return r.GeoID
	}
	return r.FullGeoID
}

// Sumlevel is a 3-digit summary level code. The ancestor endpoint encodes
// it as either a JSON string or number, so unmarshaling is tolerant and
// numeric codes are zero-padded to 3 digits.
type Sumlevel string

// UnmarshalJSON accepts string or number encodings.
func (s *Sumlevel) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = NormalizeSumlevel(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*s = NormalizeSumlevel(asNumber.String())
		return nil
	}
	*s = ""
	return nil
}

// NormalizeSumlevel pads numeric summary level codes to 3 digits.
func NormalizeSumlevel(value string) Sumlevel {
	text := strings.TrimSpace(value)
	if isDigits(text) {
		for len(text) < 3 {
			text = "0" + text
		}
	}
	return Sumlevel(text)
}
