package model

// Sentinel labels written into repaired cells
const (
	NoWeaponLabel      = "No weapon"
	NoMocodesLabel     = "None"
	UnknownLabel       = "Unknown"
	NoPremiseDescLabel = "NO DESC"

	NoWeaponCode      = 0
	UnknownWeaponCode = -1
	NoPremiseCode     = -1
)

// Age bounds accepted for victim_age, both inclusive
const (
	MinVictimAge = 0
	MaxVictimAge = 100
)

// Schema maps the logical attributes of an incident record to the headers
// of the input file. Attributes left empty are treated as absent.
type Schema struct {
	RecordID            string   `yaml:"record_id"`
	DateOccurred        string   `yaml:"date_occurred"`
	DateReported        string   `yaml:"date_reported"`
	Area                string   `yaml:"area"`
	ClassificationCodes []string `yaml:"classification_codes"`
	CrossStreet         string   `yaml:"cross_street"`
	WeaponCode          string   `yaml:"weapon_code"`
	WeaponDescription   string   `yaml:"weapon_description"`
	ModusOperandi       string   `yaml:"modus_operandi"`
	VictimSex           string   `yaml:"victim_sex"`
	VictimDescent       string   `yaml:"victim_descent"`
	VictimAge           string   `yaml:"victim_age"`
	PremiseCode         string   `yaml:"premise_code"`
	PremiseDescription  string   `yaml:"premise_description"`
	Status              string   `yaml:"status"`

	// Derived columns
	VictimAgeGroup     string `yaml:"victim_age_group"`
	ReportingDelayDays string `yaml:"reporting_delay_days"`
}

// DefaultSchema returns the headers of the public LAPD crime extract
func DefaultSchema() Schema {
	return Schema{
		RecordID:            "DR_NO",
		DateOccurred:        "DATE OCC",
		DateReported:        "Date Rptd",
		Area:                "AREA NAME",
		ClassificationCodes: []string{"Crm Cd 1", "Crm Cd 2", "Crm Cd 3", "Crm Cd 4"},
		CrossStreet:         "Cross Street",
		WeaponCode:          "Weapon Used Cd",
		WeaponDescription:   "Weapon Desc",
		ModusOperandi:       "Mocodes",
		VictimSex:           "Vict Sex",
		VictimDescent:       "Vict Descent",
		VictimAge:           "Vict Age",
		PremiseCode:         "Premis Cd",
		PremiseDescription:  "Premis Desc",
		Status:              "Status",
		VictimAgeGroup:      "Vict Age Group",
		ReportingDelayDays:  "Reporting Delay (days)",
	}
}

// Merge returns a copy of s with every non-empty header of override applied
func (s Schema) Merge(override Schema) Schema {
	pick := func(base, o string) string {
		if o != "" {
			return o
		}
		return base
	}

	merged := Schema{
		RecordID:            pick(s.RecordID, override.RecordID),
		DateOccurred:        pick(s.DateOccurred, override.DateOccurred),
		DateReported:        pick(s.DateReported, override.DateReported),
		Area:                pick(s.Area, override.Area),
		ClassificationCodes: s.ClassificationCodes,
		CrossStreet:         pick(s.CrossStreet, override.CrossStreet),
		WeaponCode:          pick(s.WeaponCode, override.WeaponCode),
		WeaponDescription:   pick(s.WeaponDescription, override.WeaponDescription),
		ModusOperandi:       pick(s.ModusOperandi, override.ModusOperandi),
		VictimSex:           pick(s.VictimSex, override.VictimSex),
		VictimDescent:       pick(s.VictimDescent, override.VictimDescent),
		VictimAge:           pick(s.VictimAge, override.VictimAge),
		PremiseCode:         pick(s.PremiseCode, override.PremiseCode),
		PremiseDescription:  pick(s.PremiseDescription, override.PremiseDescription),
		Status:              pick(s.Status, override.Status),
		VictimAgeGroup:      pick(s.VictimAgeGroup, override.VictimAgeGroup),
		ReportingDelayDays:  pick(s.ReportingDelayDays, override.ReportingDelayDays),
	}
	if len(override.ClassificationCodes) > 0 {
		merged.ClassificationCodes = override.ClassificationCodes
	}

	return merged
}
