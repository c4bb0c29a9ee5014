package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Attributes is the business schema shared by projects and observations.
// Every field is optional: empty strings and nil numbers mean absent.
type Attributes struct {
	Name               string   `json:"name,omitempty"`
	Location           string   `json:"location,omitempty"`
	NearTermScale      *float64 `json:"near_term_scale,omitempty"`
	LongTermScale      *float64 `json:"long_term_scale,omitempty"`
	TotalInvestment    *float64 `json:"total_investment,omitempty"`
	ProcessDescription string   `json:"process_description,omitempty"`
	Investor           string   `json:"investor,omitempty"`
	DesignFirm         string   `json:"design_firm,omitempty"`
	Contractor         string   `json:"contractor,omitempty"`
	Operator           string   `json:"operator,omitempty"`
	DischargeStandard  string   `json:"discharge_standard,omitempty"`
	OperationDate      string   `json:"operation_date,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func (a *Attributes) text(key FieldKey) *string {
	switch key {
	case FieldName:
		return &a.Name
	case FieldLocation:
		return &a.Location
	case FieldProcess:
		return &a.ProcessDescription
	case FieldInvestor:
		return &a.Investor
	case FieldDesignFirm:
		return &a.DesignFirm
	case FieldContractor:
		return &a.Contractor
	case FieldOperator:
		return &a.Operator
	case FieldDischargeStandard:
		return &a.DischargeStandard
	case FieldOperationDate:
		return &a.OperationDate
	}
	return nil
}

func (a *Attributes) number(key FieldKey) **float64 {
	switch key {
	case FieldNearTermScale:
		return &a.NearTermScale
	case FieldLongTermScale:
		return &a.LongTermScale
	case FieldTotalInvestment:
		return &a.TotalInvestment
	}
	return nil
}

// Get returns the value of key as a string or float64, or nil when the
// field is absent or unknown.
func (a *Attributes) Get(key FieldKey) any {
	if p := a.number(key); p != nil {
		if *p == nil {
			return nil
		}
		return **p
	}
	if p := a.text(key); p != nil {
		if strings.TrimSpace(*p) == "" {
			return nil
		}
		return *p
	}
	return nil
}

// Set assigns v to key. Numeric fields coerce v with ParseNumber and become
// absent when it does not parse. Unknown keys are ignored.
func (a *Attributes) Set(key FieldKey, v any) {
	if p := a.number(key); p != nil {
		if f, ok := ParseNumber(v); ok {
			*p = &f
		} else {
			*p = nil
		}
		return
	}
	if p := a.text(key); p != nil {
		switch s := v.(type) {
		case nil:
			*p = ""
		case string:
			*p = strings.TrimSpace(s)
		default:
			*p = strings.TrimSpace(fmt.Sprint(s))
		}
	}
}

// Has reports whether key holds a value.
func (a *Attributes) Has(key FieldKey) bool {
	return a.Get(key) != nil
}

// Clone returns a copy that shares no pointers with a.
func (a Attributes) Clone() Attributes {
	out := a
	out.NearTermScale = cloneFloat(a.NearTermScale)
	out.LongTermScale = cloneFloat(a.LongTermScale)
	out.TotalInvestment = cloneFloat(a.TotalInvestment)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParseNumber coerces v to a float64. Strings yield their first decimal
// number ("约12.5亿元" gives 12.5). Anything else reports false.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case *float64:
		if n == nil {
			return 0, false
		}
		f = *n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		m := numberRe.FindString(strings.ReplaceAll(n, ",", ""))
		if m == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
