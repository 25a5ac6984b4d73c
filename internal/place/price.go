package place

type PriceLevel int

const (
	PriceFree PriceLevel = iota
	PriceInexpensive
	PriceModerate
	PriceExpensive
	PriceVeryExpensive
)

const NoPriceInfo = "가격정보 없음"

func (p PriceLevel) Valid() bool {
	return p >= PriceFree && p <= PriceVeryExpensive
}

func (p PriceLevel) Description() string {
	switch p {
	case PriceFree:
		return "무료"
	case PriceInexpensive:
		return "저렴"
	case PriceModerate:
		return "보통"
	case PriceExpensive:
		return "비싼"
	case PriceVeryExpensive:
		return "매우 비싼"
	default:
		return NoPriceInfo
	}
}

// DescribePrice handles the unknown tier too.
func DescribePrice(p *PriceLevel) string {
	if p == nil {
		return NoPriceInfo
	}
	return p.Description()
}
