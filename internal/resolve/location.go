package resolve

import (
	"strings"
	"unicode"
)

// place is a region or subregion with its Chinese and pinyin names.
type place struct {
	zh     string
	pinyin []string
}

type region struct {
	place
	subregions []place
}

// regions is scanned in order; ties on position go to the earlier entry.
var regions = []region{
	{place: place{"北京", []string{"beijing"}}},
	{place: place{"天津", []string{"tianjin"}}},
	{place: place{"上海", []string{"shanghai"}}},
	{place: place{"重庆", []string{"chongqing"}}},
	{place: place{"河北", []string{"hebei"}}},
	{place: place{"山西", []string{"shanxi"}}},
	{place: place{"辽宁", []string{"liaoning"}}},
	{place: place{"吉林", []string{"jilin"}}},
	{place: place{"黑龙江", []string{"heilongjiang"}}},
	{place: place{"江苏", []string{"jiangsu"}}, subregions: []place{
		{"南京", []string{"nanjing"}}, {"苏州", []string{"suzhou"}}, {"无锡", []string{"wuxi"}},
		{"常州", []string{"changzhou"}}, {"徐州", []string{"xuzhou"}}, {"南通", []string{"nantong"}},
		{"连云港", []string{"lianyungang"}}, {"淮安", []string{"huaian", "huai'an"}}, {"盐城", []string{"yancheng"}},
		{"扬州", []string{"yangzhou"}}, {"镇江", []string{"zhenjiang"}}, {"泰州", []string{"taizhou"}},
		{"宿迁", []string{"suqian"}},
	}},
	{place: place{"浙江", []string{"zhejiang"}}, subregions: []place{
		{"杭州", []string{"hangzhou"}}, {"宁波", []string{"ningbo"}}, {"温州", []string{"wenzhou"}},
		{"嘉兴", []string{"jiaxing"}}, {"湖州", []string{"huzhou"}}, {"绍兴", []string{"shaoxing"}},
		{"金华", []string{"jinhua"}}, {"衢州", []string{"quzhou"}}, {"舟山", []string{"zhoushan"}},
		{"台州", []string{"taizhou"}}, {"丽水", []string{"lishui"}},
	}},
	{place: place{"安徽", []string{"anhui"}}},
	{place: place{"福建", []string{"fujian"}}},
	{place: place{"江西", []string{"jiangxi"}}},
	{place: place{"山东", []string{"shandong"}}},
	{place: place{"河南", []string{"henan"}}},
	{place: place{"湖北", []string{"hubei"}}},
	{place: place{"湖南", []string{"hunan"}}},
	{place: place{"广东", []string{"guangdong"}}, subregions: []place{
		{"广州", []string{"guangzhou"}}, {"深圳", []string{"shenzhen"}}, {"珠海", []string{"zhuhai"}},
		{"汕头", []string{"shantou"}}, {"佛山", []string{"foshan"}}, {"韶关", []string{"shaoguan"}},
		{"湛江", []string{"zhanjiang"}}, {"肇庆", []string{"zhaoqing"}}, {"江门", []string{"jiangmen"}},
		{"茂名", []string{"maoming"}}, {"惠州", []string{"huizhou"}}, {"梅州", []string{"meizhou"}},
		{"汕尾", []string{"shanwei"}}, {"河源", []string{"heyuan"}}, {"阳江", []string{"yangjiang"}},
		{"清远", []string{"qingyuan"}}, {"东莞", []string{"dongguan"}}, {"中山", []string{"zhongshan"}},
		{"潮州", []string{"chaozhou"}}, {"揭阳", []string{"jieyang"}}, {"云浮", []string{"yunfu"}},
	}},
	{place: place{"海南", []string{"hainan"}}},
	{place: place{"四川", []string{"sichuan"}}},
	{place: place{"贵州", []string{"guizhou"}}},
	{place: place{"云南", []string{"yunnan"}}},
	{place: place{"陕西", []string{"shaanxi"}}},
	{place: place{"甘肃", []string{"gansu"}}},
	{place: place{"青海", []string{"qinghai"}}},
	{place: place{"台湾", []string{"taiwan"}}},
	{place: place{"内蒙古", []string{"inner mongolia", "neimenggu"}}},
	{place: place{"广西", []string{"guangxi"}}},
	{place: place{"西藏", []string{"tibet", "xizang"}}},
	{place: place{"宁夏", []string{"ningxia"}}},
	{place: place{"新疆", []string{"xinjiang"}}},
	{place: place{"香港", []string{"hong kong", "hongkong"}}},
	{place: place{"澳门", []string{"macau", "macao"}}},
}

// hit is an occurrence of a place name in a text.
type hit struct {
	pos   int
	latin bool
}

// find returns the leftmost occurrence of p in s, which must already be
// folded by prepareText.
func (p place) find(s string) (hit, bool) {
	best := hit{pos: -1}
	if i := strings.Index(s, p.zh); i >= 0 {
		best = hit{pos: i}
	}
	for _, alias := range p.pinyin {
		if i := indexWord(s, alias); i >= 0 && (best.pos < 0 || i < best.pos) {
			best = hit{pos: i, latin: true}
		}
	}
	return best, best.pos >= 0
}

func (p place) render(latin bool) string {
	if !latin {
		return p.zh
	}
	return titleCase(p.pinyin[0])
}

// indexWord finds w in s where it is not glued to other ASCII letters.
func indexWord(s, w string) int {
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], w)
		if i < 0 {
			return -1
		}
		i += off
		end := i + len(w)
		if (i == 0 || !isASCIILetter(s[i-1])) && (end == len(s) || !isASCIILetter(s[end])) {
			return i
		}
		off = i + 1
	}
	return -1
}

func isASCIILetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// prepareText folds text and turns separators into spaces so pinyin names
// split by punctuation still read as words.
func prepareText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, fold(text))
}

// locate finds the region mentioned earliest in text and, within that
// region, the subregion mentioned earliest.
func locate(text string) (r *region, rh hit, sub *place, sh hit) {
	s := prepareText(text)
	if strings.TrimSpace(s) == "" {
		return nil, hit{}, nil, hit{}
	}
	for i := range regions {
		h, ok := regions[i].find(s)
		if ok && (r == nil || h.pos < rh.pos) {
			r, rh = &regions[i], h
		}
	}
	if r == nil {
		return nil, hit{}, nil, hit{}
	}
	for i := range r.subregions {
		h, ok := r.subregions[i].find(s)
		if ok && (sub == nil || h.pos < sh.pos) {
			sub, sh = &r.subregions[i], h
		}
	}
	return r, rh, sub, sh
}

// ExtractLocation returns "region·subregion" or "region" for the first
// region named in text, rendered in the script it was written in. It
// returns "" when no region is recognized.
func ExtractLocation(text string) string {
	r, rh, sub, sh := locate(text)
	if r == nil {
		return ""
	}
	if sub == nil {
		return r.render(rh.latin)
	}
	return r.render(rh.latin) + "·" + sub.render(sh.latin)
}

// LocationKey maps a location to a script-independent comparison key, so
// "Zhejiang·Jiaxing", "Zhejiang Jiaxing" and "浙江嘉兴" agree. Text with no
// recognizable region keys on the folded letters and digits of each
// "·"-separated part, keeping the separator so regions still compare.
func LocationKey(loc string) string {
	r, _, sub, _ := locate(loc)
	if r == nil {
		var parts []string
		for _, part := range strings.Split(loc, "·") {
			if k := strings.Join(strings.FieldsFunc(fold(part), notAlnum), ""); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, "·")
	}
	if sub == nil {
		return r.pinyin[0]
	}
	return r.pinyin[0] + "·" + sub.pinyin[0]
}

// regionOfKey returns the top-level part of a LocationKey.
func regionOfKey(key string) string {
	region, _, _ := strings.Cut(key, "·")
	return region
}
