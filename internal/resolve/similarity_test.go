package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/project-registry/internal/model"
)

func existingJiaxing() model.Attributes {
	return model.Attributes{
		Name:               "Jiaxing Xiuzhou Underground WWTP",
		Location:           "Zhejiang·Jiaxing",
		NearTermScale:      model.Float(15),
		TotalInvestment:    model.Float(12.5),
		ProcessDescription: "AAO+MBR",
	}
}

func incomingJiaxing() model.Attributes {
	return model.Attributes{
		Name:               "Jiaxing Xiuzhou Garden-style Smart Water Plant",
		Location:           "Zhejiang Jiaxing",
		NearTermScale:      model.Float(15),
		TotalInvestment:    model.Float(12.8),
		DesignFirm:         "Firm X",
		ProcessDescription: "AAO+MBR+deep treatment",
	}
}

func TestSimilarity_Components(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Attributes
		want float64
	}{
		{"empty records", model.Attributes{}, model.Attributes{}, 0},
		{"identical names only", model.Attributes{Name: "Xiuzhou WWTP"}, model.Attributes{Name: "Xiuzhou Plant"}, WeightName},
		{"one name missing", model.Attributes{Name: "Xiuzhou"}, model.Attributes{}, 0},
		{"exact location", model.Attributes{Location: "浙江·嘉兴"}, model.Attributes{Location: "Zhejiang Jiaxing"}, WeightLocationExact},
		{"same region", model.Attributes{Location: "浙江·嘉兴"}, model.Attributes{Location: "浙江·湖州"}, WeightLocationRegion},
		{"region prefix only", model.Attributes{Location: "浙江·嘉兴"}, model.Attributes{Location: "浙江"}, WeightLocationRegion},
		{"different region", model.Attributes{Location: "浙江"}, model.Attributes{Location: "江苏"}, 0},
		{"location from name", model.Attributes{Name: "浙江嘉兴"}, model.Attributes{Location: "浙江·嘉兴"}, WeightLocationExact},
		{"equal scale", model.Attributes{NearTermScale: model.Float(15)}, model.Attributes{NearTermScale: model.Float(15)}, WeightScale},
		{"half scale", model.Attributes{NearTermScale: model.Float(10)}, model.Attributes{NearTermScale: model.Float(20)}, WeightScale * 0.5},
		{"zero scales", model.Attributes{NearTermScale: model.Float(0)}, model.Attributes{NearTermScale: model.Float(0)}, 0},
		{"one scale missing", model.Attributes{NearTermScale: model.Float(15)}, model.Attributes{}, 0},
		{"investment", model.Attributes{TotalInvestment: model.Float(12.5)}, model.Attributes{TotalInvestment: model.Float(12.8)}, WeightInvestment * (1 - 0.3/12.8)},
		{"process overlap", model.Attributes{ProcessDescription: "AAO"}, model.Attributes{ProcessDescription: "MBR+AAO"}, WeightProcess},
		{"process disjoint", model.Attributes{ProcessDescription: "MBR"}, model.Attributes{ProcessDescription: "SBR"}, 0},
		{"process without acronyms", model.Attributes{ProcessDescription: "membrane"}, model.Attributes{ProcessDescription: "membrane"}, 0},
		{"full width acronyms", model.Attributes{ProcessDescription: "ＭＢＲ"}, model.Attributes{ProcessDescription: "MBR"}, WeightProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(&tt.a, &tt.b), 1e-9)
		})
	}
}

func TestSimilarity_NoRenormalization(t *testing.T) {
	// Records that agree on everything they share still score low when they
	// share little.
	a := model.Attributes{Name: "Xiuzhou", NearTermScale: model.Float(15)}
	b := model.Attributes{Name: "Xiuzhou", NearTermScale: model.Float(15)}
	assert.InDelta(t, WeightName+WeightScale, Similarity(&a, &b), 1e-9)
	assert.Less(t, Similarity(&a, &b), DefaultThreshold)
}

func TestSimilarity_UnparseableNumbersSkipped(t *testing.T) {
	var a, b model.Attributes
	a.Set(model.FieldNearTermScale, "about ten thousand tons")
	b.Set(model.FieldNearTermScale, 15)
	assert.Zero(t, Similarity(&a, &b))
}

func TestSimilarity_SymmetricAndBounded(t *testing.T) {
	records := []model.Attributes{
		{},
		existingJiaxing(),
		incomingJiaxing(),
		{Name: "浙江嘉兴秀洲污水处理厂", NearTermScale: model.Float(8)},
		{Location: "浙江", TotalInvestment: model.Float(3)},
		{Location: "Zhejiang·Huzhou", ProcessDescription: "MBR"},
		{Name: "Nanjing Jiangxinzhou WWTP", Location: "江苏·南京", NearTermScale: model.Float(64), TotalInvestment: model.Float(0)},
		{Name: "A", Location: "Springfield", NearTermScale: model.Float(-3)},
	}
	for i := range records {
		for j := range records {
			ab := Similarity(&records[i], &records[j])
			ba := Similarity(&records[j], &records[i])
			assert.Equal(t, ab, ba, "pair %d,%d", i, j)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}
}

func TestSimilarity_CappedAtOne(t *testing.T) {
	a := existingJiaxing()
	assert.LessOrEqual(t, Similarity(&a, &a), 1.0)
	assert.InDelta(t, 1.0, Similarity(&a, &a), 1e-9)
}

func TestSimilarity_EndToEndPair(t *testing.T) {
	a, b := existingJiaxing(), incomingJiaxing()
	want := WeightName + WeightLocationExact + WeightScale + WeightInvestment*(1-0.3/12.8) + WeightProcess
	assert.InDelta(t, want, Similarity(&a, &b), 1e-9)
	assert.GreaterOrEqual(t, Similarity(&a, &b), DefaultThreshold)
}
