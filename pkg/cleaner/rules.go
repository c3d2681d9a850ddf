package cleaner

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// PolicyKind names a remediation strategy
type PolicyKind string

const (
	// PolicyDropColumns removes the columns entirely
	PolicyDropColumns PolicyKind = "drop_columns"
	// PolicyFillText fills missing text with FillText
	PolicyFillText PolicyKind = "fill_text"
	// PolicyFillCode coerces to integer and fills missing with FillCode
	PolicyFillCode PolicyKind = "fill_code"
	// PolicyWeaponPair fills a (code, description) pair where absence means "no weapon"
	PolicyWeaponPair PolicyKind = "weapon_pair"
	// PolicyNormalizeTokens collapses whitespace and maps missing-like tokens to FillText
	PolicyNormalizeTokens PolicyKind = "normalize_tokens"
	// PolicySentinelThenFill maps Sentinels to missing, then fills with FillText
	PolicySentinelThenFill PolicyKind = "sentinel_then_fill"
	// PolicyRangeMedian coerces to integer, drops values outside [Min, Max], imputes the median
	PolicyRangeMedian PolicyKind = "range_median"
	// PolicyFillMode fills missing with the most frequent value
	PolicyFillMode PolicyKind = "fill_mode"
)

// Rule errors
var (
	ErrRuleMissingName    = errors.New("rule name is required")
	ErrRuleMissingColumns = errors.New("rule must reference at least one column")
	ErrRuleUnknownPolicy  = errors.New("unknown policy kind")
	ErrRuleInvalidRange   = errors.New("range_median requires min <= max")
	ErrRulePairColumns    = errors.New("weapon_pair requires exactly two columns: code, description")
)

// Policy is the remediation applied by a rule
type Policy struct {
	Kind          PolicyKind `yaml:"kind"`
	FillText      string     `yaml:"fill_text,omitempty"`
	FillCode      int        `yaml:"fill_code,omitempty"`
	Sentinels     []string   `yaml:"sentinels,omitempty"`
	MissingTokens []string   `yaml:"missing_tokens,omitempty"`
	Min           int        `yaml:"min,omitempty"`
	Max           int        `yaml:"max,omitempty"`
}

// Rule binds a remediation policy to one or more columns
type Rule struct {
	Name    string                 `yaml:"name"`
	Columns []string               `yaml:"columns"`
	Class   model.MissingnessClass `yaml:"class"`
	Policy  Policy                 `yaml:"policy"`
}

// Validate checks that the rule is well formed
func (r Rule) Validate() error {
	if r.Name == "" {
		return ErrRuleMissingName
	}
	if len(nonEmpty(r.Columns)) == 0 {
		return fmt.Errorf("%w: %s", ErrRuleMissingColumns, r.Name)
	}

	switch r.Policy.Kind {
	case PolicyDropColumns, PolicyFillText, PolicyFillCode, PolicyNormalizeTokens,
		PolicySentinelThenFill, PolicyFillMode:
	case PolicyWeaponPair:
		if len(r.Columns) != 2 {
			return fmt.Errorf("%w: %s", ErrRulePairColumns, r.Name)
		}
	case PolicyRangeMedian:
		if r.Policy.Min > r.Policy.Max {
			return fmt.Errorf("%w: %s", ErrRuleInvalidRange, r.Name)
		}
	default:
		return fmt.Errorf("%w %q: %s", ErrRuleUnknownPolicy, r.Policy.Kind, r.Name)
	}
	return nil
}

// DefaultRules returns the ordered repair rules for the incident table.
// Column drops come first so later rules never see them.
func DefaultRules(s model.Schema) []Rule {
	return []Rule{
		{
			Name:    "classification_codes",
			Columns: s.ClassificationCodes,
			Class:   model.MissingNotApplicable,
			Policy:  Policy{Kind: PolicyDropColumns},
		},
		{
			Name:    "cross_street",
			Columns: []string{s.CrossStreet},
			Class:   model.MissingNotAtRandom,
			Policy:  Policy{Kind: PolicyDropColumns},
		},
		{
			Name:    "weapon",
			Columns: []string{s.WeaponCode, s.WeaponDescription},
			Class:   model.MissingNotAtRandom,
			Policy: Policy{
				Kind:     PolicyWeaponPair,
				FillCode: model.NoWeaponCode,
				FillText: model.NoWeaponLabel,
			},
		},
		{
			Name:    "modus_operandi",
			Columns: []string{s.ModusOperandi},
			Class:   model.MissingInformative,
			Policy: Policy{
				Kind:          PolicyNormalizeTokens,
				FillText:      model.NoMocodesLabel,
				MissingTokens: []string{"", "nan", "none", "null", "<nil>"},
			},
		},
		{
			Name:    "victim_sex",
			Columns: []string{s.VictimSex},
			Class:   model.MissingNotAtRandom,
			Policy: Policy{
				Kind:      PolicySentinelThenFill,
				FillText:  model.UnknownLabel,
				Sentinels: []string{"X", "H", "-", ""},
			},
		},
		{
			// "H" is a valid descent code (Hispanic), so it is not a sentinel here
			Name:    "victim_descent",
			Columns: []string{s.VictimDescent},
			Class:   model.MissingNotAtRandom,
			Policy: Policy{
				Kind:      PolicySentinelThenFill,
				FillText:  model.UnknownLabel,
				Sentinels: []string{"X", "-", ""},
			},
		},
		{
			Name:    "victim_age",
			Columns: []string{s.VictimAge},
			Class:   model.MissingOutOfDomain,
			Policy: Policy{
				Kind: PolicyRangeMedian,
				Min:  model.MinVictimAge,
				Max:  model.MaxVictimAge,
			},
		},
		{
			Name:    "premise_description",
			Columns: []string{s.PremiseDescription},
			Class:   model.MissingLowVolume,
			Policy: Policy{
				Kind:      PolicySentinelThenFill,
				FillText:  model.NoPremiseDescLabel,
				Sentinels: []string{"-"},
			},
		},
		{
			Name:    "premise_code",
			Columns: []string{s.PremiseCode},
			Class:   model.MissingLowVolume,
			Policy:  Policy{Kind: PolicyFillCode, FillCode: model.NoPremiseCode},
		},
		{
			Name:    "status",
			Columns: []string{s.Status},
			Class:   model.MissingClericalGap,
			Policy:  Policy{Kind: PolicyFillMode},
		},
	}
}

// RuleSet is the on-disk form of a rule override file
type RuleSet struct {
	Schema model.Schema `yaml:"schema"`
	Rules  []Rule       `yaml:"rules"`
}

// LoadRuleSet reads a YAML rule file. The returned schema is the default
// schema with the file's headers applied; when the file lists no rules the
// default rules for that schema are used.
func LoadRuleSet(path string) (model.Schema, []Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Schema{}, nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return model.Schema{}, nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	schema := model.DefaultSchema().Merge(set.Schema)
	rules := set.Rules
	if len(rules) == 0 {
		rules = DefaultRules(schema)
	}

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return model.Schema{}, nil, fmt.Errorf("invalid rule: %w", err)
		}
	}

	return schema, rules, nil
}

func nonEmpty(cols []string) []string {
	var out []string
	for _, c := range cols {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
