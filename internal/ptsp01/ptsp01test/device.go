// Package ptsp01test 提供本地 TCP 模拟排插，供上层包测试使用。
package ptsp01test

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// Banner 登录成功后的欢迎信息
const Banner = "\r\n\r\nBusyBox v1.22.1 (2019-05-01) built-in shell (ash)\r\n" +
	" ATTITUDE ADJUSTMENT (12.09, r36088)\r\n" +
	" -----------------------------------------------------\r\n"

// Device 模拟设备：接受 telnet 连接并应答 qmibtree 命令
type Device struct {
	Password string

	ln net.Listener

	mu       sync.Mutex
	switches [ptsp01.SocketCount + 1]bool
	voltage  float64
	energy   [ptsp01.SocketCount + 1]float64
	conns    map[net.Conn]struct{}
	commands []string
	logins   int
	wg       sync.WaitGroup
}

// Start 在 127.0.0.1 随机端口上启动模拟设备
func Start(password string) (*Device, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	d := &Device{Password: password, ln: ln, voltage: 230, conns: make(map[net.Conn]struct{})}
	d.wg.Add(1)
	go d.accept()
	return d, nil
}

// Host 监听地址
func (d *Device) Host() string {
	return d.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port 监听端口
func (d *Device) Port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

// SetSwitch 直接修改插座状态（模拟面板按键）
func (d *Device) SetSwitch(socket int, on bool) {
	d.mu.Lock()
	d.switches[socket] = on
	d.mu.Unlock()
}

// Switch 当前插座状态
func (d *Device) Switch(socket int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.switches[socket]
}

// SetVoltage 修改电压读数
func (d *Device) SetVoltage(v float64) {
	d.mu.Lock()
	d.voltage = v
	d.mu.Unlock()
}

// SetEnergy 修改电量读数
func (d *Device) SetEnergy(socket int, v float64) {
	d.mu.Lock()
	d.energy[socket] = v
	d.mu.Unlock()
}

// Commands 已登录状态下收到的命令
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Logins 成功登录次数
func (d *Device) Logins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logins
}

// Kick 断开全部现有连接
func (d *Device) Kick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.conns {
		_ = c.Close()
	}
}

// Close 停止监听并断开连接
func (d *Device) Close() error {
	err := d.ln.Close()
	d.Kick()
	d.wg.Wait()
	return err
}

func (d *Device) accept() {
	defer d.wg.Done()
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns[c] = struct{}{}
		d.mu.Unlock()
		d.wg.Add(1)
		go d.serve(c)
	}
}

func (d *Device) serve(c net.Conn) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.conns, c)
		d.mu.Unlock()
		_ = c.Close()
	}()

	r := bufio.NewReader(c)
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}
	write := func(s string) bool {
		_, err := c.Write([]byte(s))
		return err == nil
	}

	if !write("\r\n" + ptsp01.LoginMarker) {
		return
	}
	for {
		if _, ok := readLine(); !ok {
			return
		}
		pw, ok := readLine()
		if !ok {
			return
		}
		if pw == d.Password {
			break
		}
		if !write("Password: \r\n" + ptsp01.FailureMarker + "\r\n" + ptsp01.LoginMarker) {
			return
		}
	}
	d.mu.Lock()
	d.logins++
	d.mu.Unlock()
	if !write("Password: \r\n" + Banner + ptsp01.PromptMarker) {
		return
	}

	for {
		line, ok := readLine()
		if !ok {
			return
		}
		d.mu.Lock()
		d.commands = append(d.commands, line)
		d.mu.Unlock()

		var out strings.Builder
		out.WriteString(line + "\r\n")
		switch {
		case strings.HasPrefix(line, "tee "):
			for {
				l, ok := readLine()
				if !ok {
					return
				}
				out.WriteString("> " + l + "\r\n")
				if l == "EOF" {
					break
				}
			}
		case line == strings.TrimSuffix(ptsp01.RunScriptCommand(), "\n"):
			for socket := 1; socket <= ptsp01.SocketCount; socket++ {
				for _, attr := range ptsp01.AllAttributes {
					out.WriteString(d.value(socket, attr) + "\r\n")
				}
			}
		case strings.HasPrefix(line, "qmibtree -s "):
			d.set(strings.Fields(line))
		case strings.HasPrefix(line, "qmibtree -g "):
			if socket, attr, ok := splitPath(strings.TrimPrefix(line, "qmibtree -g ")); ok {
				out.WriteString(d.value(socket, attr) + "\r\n")
			}
		}
		out.WriteString(ptsp01.PromptMarker)
		if !write(out.String()) {
			return
		}
	}
}

func (d *Device) set(fields []string) {
	if len(fields) != 4 {
		return
	}
	socket, attr, ok := splitPath(fields[2])
	if !ok || attr != ptsp01.AttrSwitch {
		return
	}
	d.SetSwitch(socket, fields[3] == "1")
}

func splitPath(path string) (int, ptsp01.Attribute, bool) {
	rest, ok := strings.CutPrefix(path, ptsp01.TelemetryPrefix)
	if !ok {
		return 0, "", false
	}
	num, attr, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, "", false
	}
	socket, err := strconv.Atoi(num)
	if err != nil || !ptsp01.ValidSocket(socket) {
		return 0, "", false
	}
	return socket, ptsp01.Attribute(attr), true
}

func (d *Device) value(socket int, attr ptsp01.Attribute) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	path := ptsp01.AttributePath(socket, attr)
	switch attr {
	case ptsp01.AttrSwitch:
		v := 0
		if d.switches[socket] {
			v = 1
		}
		return fmt.Sprintf("%s(bool)=%d", path, v)
	case ptsp01.AttrVoltage:
		return fmt.Sprintf("%s(float)=%g", path, d.voltage)
	case ptsp01.AttrCurrent:
		return fmt.Sprintf("%s(float)=%g", path, 0.1*float64(socket))
	case ptsp01.AttrPower:
		return fmt.Sprintf("%s(float)=%g", path, 10*float64(socket))
	case ptsp01.AttrEnergy:
		return fmt.Sprintf("%s(float)=%g", path, d.energy[socket])
	case ptsp01.AttrEnergyMeter:
		return fmt.Sprintf("%s(string)={'peakenergy':%g,'valleyenergy':0}", path, d.energy[socket]/2)
	default:
		return path + "=?"
	}
}
