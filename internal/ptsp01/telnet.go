package ptsp01

// telnet 命令字节（RFC 854）
const (
	telSE   byte = 240
	telSB   byte = 250
	telWILL byte = 251
	telWONT byte = 252
	telDO   byte = 253
	telDONT byte = 254
	telIAC  byte = 255
)

type iacState int

const (
	iacData iacState = iota
	iacCmd
	iacOpt
	iacSub
	iacSubIAC
)

// iacFilter 从字节流中剥离 telnet 协商序列，状态可跨读取分片保持。
// 对端的 DO/WILL 一律以 WONT/DONT 拒绝。
type iacFilter struct {
	state iacState
	verb  byte
}

func (f *iacFilter) filter(in []byte) (data, replies []byte) {
	data = make([]byte, 0, len(in))
	for _, b := range in {
		switch f.state {
		case iacData:
			if b == telIAC {
				f.state = iacCmd
				continue
			}
			data = append(data, b)
		case iacCmd:
			switch b {
			case telIAC:
				data = append(data, telIAC)
				f.state = iacData
			case telDO, telDONT, telWILL, telWONT:
				f.verb = b
				f.state = iacOpt
			case telSB:
				f.state = iacSub
			default:
				f.state = iacData
			}
		case iacOpt:
			switch f.verb {
			case telDO:
				replies = append(replies, telIAC, telWONT, b)
			case telWILL:
				replies = append(replies, telIAC, telDONT, b)
			}
			f.state = iacData
		case iacSub:
			if b == telIAC {
				f.state = iacSubIAC
			}
		case iacSubIAC:
			if b == telSE {
				f.state = iacData
			} else {
				f.state = iacSub
			}
		}
	}
	return data, replies
}
