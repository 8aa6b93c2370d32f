// ptsp01ctl 直接连接单台排插，查询状态或切换插座。
//
//	ptsp01ctl -host 192.168.1.50 -password secret status
//	ptsp01ctl -host 192.168.1.50 -password secret on 1,3
//	ptsp01ctl -host 192.168.1.50 -password secret off all
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/ptsp01-gateway/internal/logging"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// 退出码
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitAuth     = 3
	exitNoDevice = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	host     string
	port     int
	user     string
	password string
	timeout  time.Duration
	logLevel string
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "usage: ptsp01ctl [flags] status|on|off [sockets]\n\n")
		fmt.Fprintf(out, "sockets: comma separated list or ranges (1,2-3) or \"all\"; default all\n\n")
		fs.PrintDefaults()
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("ptsp01ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.host, "host", os.Getenv("PTSP01_STRIP_HOST"), "strip address")
	fs.IntVar(&o.port, "port", ptsp01.DefaultPort, "telnet port")
	fs.StringVar(&o.user, "user", ptsp01.DefaultUsername, "login user")
	fs.StringVar(&o.password, "password", os.Getenv("PTSP01_STRIP_PASSWORD"), "login password")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "overall timeout")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	rest := fs.Args()
	if o.host == "" || len(rest) == 0 || len(rest) > 2 {
		fs.Usage()
		return exitUsage
	}
	cmd := rest[0]
	selection := "all"
	if len(rest) == 2 {
		selection = rest[1]
	}
	sockets, err := parseSockets(selection)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	var want *bool
	switch cmd {
	case "status":
	case "on", "off":
		on := cmd == "on"
		want = &on
	default:
		fs.Usage()
		return exitUsage
	}

	log := logging.InitConsole(o.logLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	report, err := execute(ctx, o, sockets, want, log)
	if report != nil {
		if werr := writeYAML(stdout, report); werr != nil {
			fmt.Fprintln(stderr, werr)
			return exitFailure
		}
	}
	switch {
	case err == nil:
		return exitOK
	case ptsp01.IsAuthenticationError(err):
		fmt.Fprintln(stderr, "authentication failed:", err)
		return exitAuth
	case ptsp01.IsConnectivityError(err):
		fmt.Fprintln(stderr, "cannot connect:", err)
		return exitNoDevice
	default:
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
}

// parseSockets 解析 "1,2-3" 或 "all"
func parseSockets(selection string) ([]int, error) {
	selection = strings.TrimSpace(strings.ToLower(selection))
	if selection == "" || selection == "all" {
		out := make([]int, 0, ptsp01.SocketCount)
		for i := 1; i <= ptsp01.SocketCount; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	seen := make(map[int]struct{})
	for _, part := range strings.Split(selection, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid socket %q", part)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || b < a {
				return nil, fmt.Errorf("invalid socket range %q", part)
			}
		}
		for s := a; s <= b; s++ {
			if !ptsp01.ValidSocket(s) {
				return nil, fmt.Errorf("socket %d out of range 1-%d", s, ptsp01.SocketCount)
			}
			seen[s] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out, nil
}

// Report 命令输出
type Report struct {
	Host    string         `yaml:"host"`
	Version string         `yaml:"version"`
	Outlets []OutletReport `yaml:"outlets"`
}

// OutletReport 单个插座，未知值为空
type OutletReport struct {
	Socket  int      `yaml:"socket"`
	On      *bool    `yaml:"on"`
	Voltage *float64 `yaml:"voltage"`
	Current *float64 `yaml:"current"`
	Power   *float64 `yaml:"power"`
	Energy  *float64 `yaml:"energy"`
}

func optional(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func execute(ctx context.Context, o options, sockets []int, want *bool, log *zap.Logger) (*Report, error) {
	s := ptsp01.New(ptsp01.Options{
		Host:         o.host,
		Port:         o.port,
		Username:     o.user,
		Password:     o.password,
		LoginTimeout: min(o.timeout, 5*time.Second),
		Logger:       log,
	})
	defer s.Close()

	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if want != nil {
		for _, socket := range sockets {
			if err := s.Switch(socket, *want); err != nil {
				return nil, fmt.Errorf("switch socket %d: %w", socket, err)
			}
		}
	}
	if err := s.RefreshAll(); err != nil {
		return nil, err
	}

	err := waitFor(ctx, func() bool { return settled(s, sockets, want) })
	return buildReport(s, sockets), err
}

// settled 所需插座均已收到开关状态与电压；切换时还需状态与目标一致
func settled(s *ptsp01.Session, sockets []int, want *bool) bool {
	for _, socket := range sockets {
		st, ok := s.Outlet(socket)
		if !ok || !st.SwitchSeen || math.IsNaN(st.Voltage) {
			return false
		}
		if want != nil && st.Switch != *want {
			return false
		}
	}
	return true
}

func waitFor(ctx context.Context, cond func() bool) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.New("timed out waiting for device state")
			}
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func buildReport(s *ptsp01.Session, sockets []int) *Report {
	r := &Report{Host: s.Host(), Version: s.Version()}
	for _, socket := range sockets {
		st, _ := s.Outlet(socket)
		or := OutletReport{
			Socket:  socket,
			Voltage: optional(st.Voltage),
			Current: optional(st.Current),
			Power:   optional(st.Power),
			Energy:  optional(st.EffectiveEnergy()),
		}
		if on, known := s.SwitchState(socket); known {
			or.On = &on
		}
		r.Outlets = append(r.Outlets, or)
	}
	return r
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
