package ptsp01

import (
	"fmt"
	"strings"
)

const (
	// PromptMarker 登录成功后的 shell 提示符
	PromptMarker = "root@(none):/# "
	// LoginMarker 登录提示
	LoginMarker = "(none) login: "
	// FailureMarker 密码错误提示
	FailureMarker = "Login incorrect"
	// VersionMarker 固件版本所在行的标记，版本号位于括号内
	VersionMarker = "ATTITUDE ADJUSTMENT"

	// ScriptPath 设备端批量查询脚本
	ScriptPath = "/tmp/readStates.sh"
	// DefaultUsername 设备 shell 用户
	DefaultUsername = "root"
)

// AttributePath Device.SmartPlug.Socket.<n>.<Attr>
func AttributePath(socket int, attr Attribute) string {
	return fmt.Sprintf("%s%d.%s", TelemetryPrefix, socket, attr)
}

// PathCommand 任意路径查询
func PathCommand(path string) string {
	return "qmibtree -g " + path + "\n"
}

// QueryCommand 单个属性查询
func QueryCommand(socket int, attr Attribute) string {
	return PathCommand(AttributePath(socket, attr))
}

// SetSwitchCommand 开关设置命令
func SetSwitchCommand(socket int, on bool) string {
	v := 0
	if on {
		v = 1
	}
	return fmt.Sprintf("qmibtree -s %s %d\n", AttributePath(socket, AttrSwitch), v)
}

// InstallScriptCommand 通过 heredoc 写入批量查询脚本，每个(插座,属性)一行
func InstallScriptCommand() string {
	var b strings.Builder
	b.WriteString("tee " + ScriptPath + " <<EOF\n")
	for socket := 1; socket <= SocketCount; socket++ {
		for _, attr := range AllAttributes {
			b.WriteString(QueryCommand(socket, attr))
		}
	}
	b.WriteString("EOF\n")
	return b.String()
}

// RunScriptCommand 执行批量查询脚本
func RunScriptCommand() string {
	return "sh " + ScriptPath + "\n"
}

// LoginCommand 用户名与密码各占一行
func LoginCommand(user, password string) string {
	return user + "\n" + password + "\n"
}
