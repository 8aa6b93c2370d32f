package ptsp01

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// TelemetryPrefix 遥测行路径前缀（已去除空白）
const TelemetryPrefix = "Device.SmartPlug.Socket."

// Telemetry 一条已解析的键值对
type Telemetry struct {
	Socket int
	Attr   Attribute
	Value  float64 // Switch 以外的数值
	On     bool    // 仅 Switch
	Raw    string
}

// stripSpaces 去除所有空白字符（含 \r 与制表符）
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// promptToken 去空白后的 shell 提示符
var promptToken = stripSpaces(PromptMarker)

// normalize 去空白并去掉行首残留的提示符；
// 登录后缓冲以提示符开头，空闲期间到达的第一行会带上它。
func normalize(line string) string {
	msg := stripSpaces(line)
	for strings.HasPrefix(msg, promptToken) {
		msg = msg[len(promptToken):]
	}
	return msg
}

// IsTelemetryLine 去空白与行首提示符后是否以遥测前缀开头
func IsTelemetryLine(line string) bool {
	return strings.HasPrefix(normalize(line), TelemetryPrefix)
}

// ParseTelemetry 解析 Device.SmartPlug.Socket.<n>.<Attr>(<type>)=<value>。
// 格式不符、缺少分隔符、未知属性或数值非法时返回 ok=false，不产生错误。
func ParseTelemetry(line string) (Telemetry, bool) {
	msg := normalize(line)
	if !strings.HasPrefix(msg, TelemetryPrefix) {
		return Telemetry{}, false
	}
	rest := msg[len(TelemetryPrefix):]

	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return Telemetry{}, false
	}
	socket, err := strconv.Atoi(rest[:dot])
	if err != nil || !ValidSocket(socket) {
		return Telemetry{}, false
	}

	pair := rest[dot+1:]
	eq := strings.IndexByte(pair, '=')
	if eq < 0 {
		return Telemetry{}, false
	}
	key, value := pair[:eq], pair[eq+1:]
	if p := strings.IndexByte(key, '('); p >= 0 {
		key = key[:p]
	}
	t := Telemetry{Socket: socket, Attr: Attribute(key), Raw: value}

	switch t.Attr {
	case AttrSwitch:
		t.On = value == "1"
	case AttrVoltage, AttrCurrent, AttrPower, AttrEnergy:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Telemetry{}, false
		}
		t.Value = f
	case AttrEnergyMeter:
		f, ok := parseSingleCount(value)
		if !ok {
			return Telemetry{}, false
		}
		t.Value = f
	default:
		return Telemetry{}, false
	}
	return t, true
}

// parseSingleCount 解析 {'peakenergy':5,'valleyenergy':3}，返回峰谷之和
func parseSingleCount(payload string) (float64, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.ReplaceAll(payload, "'", `"`)), &m); err != nil {
		return 0, false
	}
	peak, ok := jsonNumber(m["peakenergy"])
	if !ok {
		return 0, false
	}
	valley, ok := jsonNumber(m["valleyenergy"])
	if !ok {
		return 0, false
	}
	return peak + valley, true
}

// jsonNumber 数值或数值字符串
func jsonNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
