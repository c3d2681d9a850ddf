package cleaner

import (
	"database/sql"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// Operation names recorded on repaired cells
type operation string

const (
	opFillText        operation = "fill_text"
	opFillCode        operation = "fill_code"
	opWeaponPair      operation = "weapon_fill"
	opNormalizeTokens operation = "normalize_tokens"
	opSentinelFill    operation = "sentinel_fill"
	opImputeMedian    operation = "impute_median"
	opImputeMode      operation = "impute_mode"
	opParseDate       operation = "parse_date"
	opDerive          operation = "derive"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// columnUpdate is the new content of one column plus, per row, the reason a
// cell changed ("" when it did not)
type columnUpdate struct {
	name      string
	values    []sql.NullString
	reasons   []string
	integer   bool
	operation operation
}

func newUpdate(name string, n int, op operation) columnUpdate {
	return columnUpdate{
		name:      name,
		values:    make([]sql.NullString, n),
		reasons:   make([]string, n),
		operation: op,
	}
}

func (u *columnUpdate) set(i int, value string, reason string) {
	u.values[i] = sql.NullString{String: value, Valid: true}
	u.reasons[i] = reason
}

func (u *columnUpdate) setMissing(i int, reason string) {
	u.values[i] = sql.NullString{}
	u.reasons[i] = reason
}

// runPolicy computes the new column contents for a rule. Only columns
// present in t are returned. The second value describes the computed fill
// statistic, if any.
func runPolicy(t *frame.Table, rule Rule) ([]columnUpdate, string) {
	cols := t.Present(nonEmpty(rule.Columns)...)
	p := rule.Policy

	switch p.Kind {
	case PolicyFillText:
		return each(t, cols, func(c string) columnUpdate { return fillText(t, c, p.FillText) }), ""
	case PolicyFillCode:
		return each(t, cols, func(c string) columnUpdate { return fillCode(t, c, p.FillCode) }), ""
	case PolicyNormalizeTokens:
		return each(t, cols, func(c string) columnUpdate { return normalizeTokens(t, c, p) }), ""
	case PolicySentinelThenFill:
		return each(t, cols, func(c string) columnUpdate { return sentinelThenFill(t, c, p) }), ""
	case PolicyWeaponPair:
		return weaponPair(t, rule), ""
	case PolicyRangeMedian:
		var stats []string
		updates := each(t, cols, func(c string) columnUpdate {
			u, median := rangeMedian(t, c, p.Min, p.Max)
			stats = append(stats, "median="+strconv.FormatInt(median, 10))
			return u
		})
		return updates, strings.Join(stats, ",")
	case PolicyFillMode:
		var stats []string
		updates := each(t, cols, func(c string) columnUpdate {
			u, mode := fillMode(t, c)
			stats = append(stats, "mode="+mode)
			return u
		})
		return updates, strings.Join(stats, ",")
	}
	return nil, ""
}

func each(t *frame.Table, cols []string, fn func(string) columnUpdate) []columnUpdate {
	updates := make([]columnUpdate, 0, len(cols))
	for _, c := range cols {
		updates = append(updates, fn(c))
	}
	return updates
}

func fillText(t *frame.Table, col, fill string) columnUpdate {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opFillText)
	for i, v := range values {
		if v.Valid {
			u.set(i, v.String, "")
			continue
		}
		u.set(i, fill, ReasonMissingValue)
	}
	return u
}

func fillCode(t *frame.Table, col string, fill int) columnUpdate {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opFillCode)
	u.integer = true
	for i, v := range values {
		n, reason := coerceInt(v)
		if reason == ReasonNotNumeric || reason == ReasonMissingValue {
			u.set(i, strconv.Itoa(fill), reason)
			continue
		}
		u.set(i, strconv.FormatInt(n, 10), reason)
	}
	return u
}

func normalizeTokens(t *frame.Table, col string, p Policy) columnUpdate {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opNormalizeTokens)
	for i, v := range values {
		if !v.Valid {
			u.set(i, p.FillText, ReasonMissingValue)
			continue
		}

		normalized := strings.TrimSpace(whitespaceRun.ReplaceAllString(v.String, " "))
		if containsFold(p.MissingTokens, normalized) {
			u.set(i, p.FillText, ReasonMissingToken)
			continue
		}

		reason := ""
		if normalized != v.String {
			reason = ReasonWhitespace
		}
		u.set(i, normalized, reason)
	}
	return u
}

func sentinelThenFill(t *frame.Table, col string, p Policy) columnUpdate {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opSentinelFill)
	for i, v := range values {
		switch {
		case !v.Valid:
			u.set(i, p.FillText, ReasonMissingValue)
		case contains(p.Sentinels, strings.TrimSpace(v.String)):
			u.set(i, p.FillText, ReasonSentinelValue)
		default:
			u.set(i, v.String, "")
		}
	}
	return u
}

// weaponPair fills a weapon (code, description) pair. A missing description
// means no weapon was used, so the code is forced to the no-weapon code.
// A code missing next to a real description is set to the unknown code so
// that the no-weapon code and label always appear together.
func weaponPair(t *frame.Table, rule Rule) []columnUpdate {
	codeCol, descCol := rule.Columns[0], rule.Columns[1]
	p := rule.Policy
	noWeaponCode := strconv.Itoa(p.FillCode)

	switch {
	case !t.Has(descCol):
		return []columnUpdate{fillCode(t, codeCol, p.FillCode)}
	case !t.Has(codeCol):
		return []columnUpdate{fillText(t, descCol, p.FillText)}
	}

	codes := t.Strings(codeCol)
	descs := t.Strings(descCol)
	code := newUpdate(codeCol, len(codes), opWeaponPair)
	code.integer = true
	desc := newUpdate(descCol, len(descs), opWeaponPair)

	for i := range codes {
		n, codeReason := coerceInt(codes[i])
		codeValid := codeReason != ReasonMissingValue && codeReason != ReasonNotNumeric

		if !descs[i].Valid || descs[i].String == p.FillText {
			descReason := ""
			if !descs[i].Valid {
				descReason = ReasonMissingValue
			}
			desc.set(i, p.FillText, descReason)

			switch {
			case !codeValid:
				code.set(i, noWeaponCode, codeReason)
			case n != int64(p.FillCode):
				code.set(i, noWeaponCode, ReasonInconsistent)
			default:
				code.set(i, noWeaponCode, codeReason)
			}
			continue
		}

		desc.set(i, descs[i].String, "")
		switch {
		case !codeValid:
			code.set(i, strconv.Itoa(model.UnknownWeaponCode), codeReason)
		case n == int64(p.FillCode):
			code.set(i, strconv.Itoa(model.UnknownWeaponCode), ReasonInconsistent)
		default:
			code.set(i, strconv.FormatInt(n, 10), codeReason)
		}
	}

	return []columnUpdate{code, desc}
}

// rangeMedian drops values outside [lo, hi] and imputes the median of the
// remaining ones, rounded half away from zero
func rangeMedian(t *frame.Table, col string, lo, hi int) (columnUpdate, int64) {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opImputeMedian)
	u.integer = true

	parsed := make([]sql.NullInt64, len(values))
	reasons := make([]string, len(values))
	var valid []float64
	for i, v := range values {
		if !v.Valid {
			reasons[i] = ReasonMissingValue
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			reasons[i] = ReasonNotNumeric
			continue
		}
		if f < float64(lo) || f > float64(hi) {
			reasons[i] = ReasonOutOfRange
			continue
		}
		valid = append(valid, f)
		parsed[i] = sql.NullInt64{Int64: int64(math.Round(f)), Valid: true}
		if strconv.FormatInt(parsed[i].Int64, 10) != v.String {
			reasons[i] = ReasonNumberFormat
		}
	}

	median := int64(lo)
	if m, ok := Median(valid); ok {
		median = int64(math.Round(m))
	}

	for i := range values {
		if parsed[i].Valid {
			u.set(i, strconv.FormatInt(parsed[i].Int64, 10), reasons[i])
			continue
		}
		u.set(i, strconv.FormatInt(median, 10), reasons[i])
	}
	return u, median
}

func fillMode(t *frame.Table, col string) (columnUpdate, string) {
	values := t.Strings(col)
	u := newUpdate(col, len(values), opImputeMode)

	mode, ok := Mode(values)
	if !ok {
		mode = model.UnknownLabel
	}
	for i, v := range values {
		if v.Valid {
			u.set(i, v.String, "")
			continue
		}
		u.set(i, mode, ReasonMissingValue)
	}
	return u, mode
}

// Median returns the median of values, averaging the two middle values for
// an even count. ok is false when values is empty.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// Mode returns the most frequent present value; ties go to the
// lexicographically smallest. ok is false when no value is present.
func Mode(values []sql.NullString) (string, bool) {
	counts := make(map[string]int)
	for _, v := range values {
		if v.Valid {
			counts[v.String]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	best, bestCount := "", -1
	for value, n := range counts {
		if n > bestCount || (n == bestCount && value < best) {
			best, bestCount = value, n
		}
	}
	return best, true
}

// coerceInt parses an integer cell. Integral floats such as "400.0" are
// accepted and reported as a format change; ones outside the int64 range
// are not numeric.
func coerceInt(v sql.NullString) (int64, string) {
	if !v.Valid {
		return 0, ReasonMissingValue
	}
	s := strings.TrimSpace(v.String)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if s != v.String {
			return n, ReasonNumberFormat
		}
		return n, ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, ReasonNotNumeric
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, ReasonNotNumeric
	}
	return int64(f), ReasonNumberFormat
}

func contains(list []string, value string) bool {
	for _, s := range list {
		if s == value {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, s := range list {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}
