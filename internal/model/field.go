package model

// FieldKey names a business attribute of a project.
type FieldKey string

const (
	FieldName              FieldKey = "name"
	FieldLocation          FieldKey = "location"
	FieldNearTermScale     FieldKey = "near_term_scale"
	FieldLongTermScale     FieldKey = "long_term_scale"
	FieldTotalInvestment   FieldKey = "total_investment"
	FieldProcess           FieldKey = "process_description"
	FieldInvestor          FieldKey = "investor"
	FieldDesignFirm        FieldKey = "design_firm"
	FieldContractor        FieldKey = "contractor"
	FieldOperator          FieldKey = "operator"
	FieldDischargeStandard FieldKey = "discharge_standard"
	FieldOperationDate     FieldKey = "operation_date"
)

// FieldKind selects how two values of a field are compared.
type FieldKind int

const (
	KindText FieldKind = iota
	KindName
	KindLocation
	KindProcess
	KindNumber
)

// FieldSpec describes one attribute of the project schema.
type FieldSpec struct {
	Key   FieldKey
	Label string
	Kind  FieldKind
	// Tracked fields get provenance stamped when a project is created.
	Tracked bool
	// Checklist fields count toward the completeness percentage.
	Checklist bool
	// Core fields weigh extra in an extractor's completeness hint.
	Core bool
}

// Fields is the fixed project schema in display order.
var Fields = []FieldSpec{
	{Key: FieldName, Label: "Project Name", Kind: KindName, Tracked: true, Checklist: true, Core: true},
	{Key: FieldLocation, Label: "Location", Kind: KindLocation, Tracked: true, Checklist: true, Core: true},
	{Key: FieldNearTermScale, Label: "Near-term Scale (10k t/d)", Kind: KindNumber, Tracked: true, Checklist: true, Core: true},
	{Key: FieldLongTermScale, Label: "Long-term Scale (10k t/d)", Kind: KindNumber, Tracked: true},
	{Key: FieldTotalInvestment, Label: "Total Investment (100M CNY)", Kind: KindNumber, Tracked: true, Checklist: true, Core: true},
	{Key: FieldProcess, Label: "Process", Kind: KindProcess, Tracked: true, Checklist: true, Core: true},
	{Key: FieldInvestor, Label: "Investor", Kind: KindText, Tracked: true, Checklist: true, Core: true},
	{Key: FieldDesignFirm, Label: "Design Firm", Kind: KindText, Tracked: true, Checklist: true},
	{Key: FieldContractor, Label: "Contractor", Kind: KindText, Tracked: true, Checklist: true},
	{Key: FieldOperator, Label: "Operator", Kind: KindText},
	{Key: FieldDischargeStandard, Label: "Discharge Standard", Kind: KindText},
	{Key: FieldOperationDate, Label: "Operation Date", Kind: KindText},
}

var fieldIndex = func() map[FieldKey]FieldSpec {
	m := make(map[FieldKey]FieldSpec, len(Fields))
	for _, f := range Fields {
		m[f.Key] = f
	}
	return m
}()

// LookupField returns the spec for key.
func LookupField(key FieldKey) (FieldSpec, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}
