package packetpolicy

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/port"
)

// tracer reports spans for every subprocess call the adapter issues.
// It resolves against whatever TracerProvider telemetry.NewTracerProvider
// registered globally (a no-op provider before that call, which is safe).
var tracer = otel.Tracer("github.com/coinvendo/gateway/internal/infra/packetpolicy")

// traced wraps a subprocess-calling operation in a span, recording the
// resulting error so the exporter can distinguish transient PacketPolicy
// failures (retried by the Ticker) from the request that triggered them.
func traced(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "packetpolicy."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Config tunes the subprocess timeouts used by Adapter, per §5's
// cancellation-and-timeouts rule.
type Config struct {
	ProbeTimeout    time.Duration
	RewriteTimeout  time.Duration
	IpsetName       string
	TcClassParent   string
}

func DefaultConfig() Config {
	return Config{
		ProbeTimeout:   2 * time.Second,
		RewriteTimeout: 5 * time.Second,
		IpsetName:      "gateway_authorized",
		TcClassParent:  "1:0",
	}
}

// Adapter shells out to ipset/tc/conntrack/ip-neigh to implement the
// PacketPolicy contract. Every call carries a bounded context timeout and
// translates subprocess failure into the transient error kind so the
// Ticker retries it on the next pass.
type Adapter struct {
	cfg Config
	log *zap.Logger
}

func NewAdapter(cfg Config, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, log: log}
}

var _ port.PacketPolicy = (*Adapter)(nil)

func (a *Adapter) Authorize(ctx context.Context, mac string) (bool, error) {
	ctx, span := traced(ctx, "authorize", attribute.String("mac", mac))
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RewriteTimeout)
	defer cancel()

	already, runErr := a.run(ctx, "ipset", "test", a.cfg.IpsetName, mac)
	if runErr == nil && already {
		return false, nil
	}
	if _, outErr := a.runOutput(ctx, "ipset", "add", a.cfg.IpsetName, mac, "-exist"); outErr != nil {
		err = wrapTransient("authorize", outErr)
		return false, err
	}
	return true, nil
}

func (a *Adapter) Deauthorize(ctx context.Context, mac string) error {
	ctx, span := traced(ctx, "deauthorize", attribute.String("mac", mac))
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RewriteTimeout)
	defer cancel()

	if _, outErr := a.runOutput(ctx, "ipset", "del", a.cfg.IpsetName, mac, "-exist"); outErr != nil {
		err = wrapTransient("deauthorize", outErr)
		return err
	}
	if _, outErr := a.runOutput(ctx, "conntrack", "-D", "-m", mac); outErr != nil {
		a.log.Debug("deauthorize: conntrack flush returned non-zero (likely no matching flows)", zap.Error(outErr))
	}
	return nil
}

func (a *Adapter) SetLimit(ctx context.Context, ip string, downKbps, upKbps int64) error {
	ctx, span := traced(ctx, "set_limit", attribute.String("ip", ip), attribute.Int64("down_kbps", downKbps), attribute.Int64("up_kbps", upKbps))
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RewriteTimeout)
	defer cancel()

	classID, cErr := classIDFor(ip)
	if cErr != nil {
		err = fmt.Errorf("set limit: %w", cErr)
		return err
	}

	if _, outErr := a.runOutput(ctx, "tc", "class", "replace", "dev", "eth0", "parent", a.cfg.TcClassParent,
		"classid", fmt.Sprintf("1:%d", classID), "htb", "rate", fmt.Sprintf("%dkbit", downKbps)); outErr != nil {
		err = wrapTransient("set_limit", outErr)
		return err
	}
	_, _ = a.runOutput(ctx, "tc", "filter", "add", "dev", "eth0", "protocol", "ip", "parent", a.cfg.TcClassParent,
		"prio", "1", "u32", "match", "ip", "dst", ip, "flowid", fmt.Sprintf("1:%d", classID))
	return nil
}

func (a *Adapter) RemoveLimit(ctx context.Context, ip string) error {
	ctx, span := traced(ctx, "remove_limit", attribute.String("ip", ip))
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RewriteTimeout)
	defer cancel()

	classID, cErr := classIDFor(ip)
	if cErr != nil {
		err = fmt.Errorf("remove limit: %w", cErr)
		return err
	}
	if _, outErr := a.runOutput(ctx, "tc", "class", "del", "dev", "eth0", "classid", fmt.Sprintf("1:%d", classID)); outErr != nil {
		err = wrapTransient("remove_limit", outErr)
		return err
	}
	return nil
}

// SampleCounters parses `iptables -L ACCT -vnx` style byte counters.
func (a *Adapter) SampleCounters(ctx context.Context, iface string) (port.CounterSnapshot, error) {
	ctx, span := traced(ctx, "sample_counters", attribute.String("iface", iface))
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	out, outErr := a.runOutput(ctx, "iptables", "-L", "ACCT", "-vnx")
	if outErr != nil {
		err = wrapTransient("sample_counters", outErr)
		return port.CounterSnapshot{}, err
	}
	return parseAcctOutput(out), nil
}

func (a *Adapter) ListAuthorizedMacs(ctx context.Context) (map[string]struct{}, error) {
	ctx, span := traced(ctx, "list_authorized")
	var err error
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	out, outErr := a.runOutput(ctx, "ipset", "list", a.cfg.IpsetName)
	if outErr != nil {
		err = wrapTransient("list_authorized", outErr)
		return nil, err
	}
	return parseIpsetMembers(out), nil
}

func (a *Adapter) HasLiveFlows(ctx context.Context, ip string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	out, err := a.runOutput(ctx, "conntrack", "-L", "-d", ip)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) != "", nil
}

func (a *Adapter) NeighborStale(ctx context.Context, ip string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	out, err := a.runOutput(ctx, "ip", "neigh", "show", ip)
	if err != nil {
		return true, wrapTransient("neighbor_probe", err)
	}
	line := strings.TrimSpace(out)
	if line == "" {
		return true, nil
	}
	return strings.Contains(line, "STALE") || strings.Contains(line, "FAILED") || strings.Contains(line, "INCOMPLETE"), nil
}

func (a *Adapter) run(ctx context.Context, name string, args ...string) (bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	err := cmd.Run()
	return err == nil, err
}

func (a *Adapter) runOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func wrapTransient(op string, err error) error {
	return fmt.Errorf("packet policy %s: transient: %w", op, err)
}

// classIDFor derives the tc class-id from the IP's last octet (1-254),
// the same key sampleCounters uses for download attribution so upload
// and download accounting and shaping share one identifier.
func classIDFor(ip string) (int, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("not an ipv4 address: %q", ip)
	}
	octet, err := strconv.Atoi(parts[3])
	if err != nil || octet < 1 || octet > 254 {
		return 0, fmt.Errorf("invalid last octet in %q", ip)
	}
	return octet, nil
}

func parseIpsetMembers(out string) map[string]struct{} {
	macs := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(out))
	inMembers := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Members:" {
			inMembers = true
			continue
		}
		if inMembers && line != "" {
			macs[line] = struct{}{}
		}
	}
	return macs
}

// parseAcctOutput parses iptables -L ACCT -vnx lines of the form:
// "<pkts> <bytes> <target> <prot> <opt> <in> <out> <src> <dst> ..."
// attributing bytes to the source address column: the same byte count is
// recorded as that IP's upload sample and as the download sample of the
// class-id derived from it.
func parseAcctOutput(out string) port.CounterSnapshot {
	snapshot := port.CounterSnapshot{
		Uploads:   make(map[string]port.CounterSample),
		Downloads: make(map[int]port.CounterSample),
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 9 {
			continue
		}
		bytes, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		src := fields[7]
		if classID, err := classIDFor(src); err == nil {
			snapshot.Uploads[src] = port.CounterSample{Bytes: bytes}
			snapshot.Downloads[classID] = port.CounterSample{Bytes: bytes}
		}
	}
	return snapshot
}
