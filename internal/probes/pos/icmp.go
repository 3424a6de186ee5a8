package pos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"bytemomo/narwhal/internal/probes/toolexec"
)

// Pinger reports whether a host answers an echo request.
type Pinger interface {
	Ping(ctx context.Context, ip string) (bool, error)
}

// EchoRequest builds an ICMPv4 echo request with a checksummed header.
func EchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize echo request: %w", err)
	}
	return buf.Bytes(), nil
}

// IsEchoReply reports whether b is an ICMPv4 echo reply matching id and seq.
func IsEchoReply(b []byte, id, seq uint16) bool {
	pkt := gopacket.NewPacket(b, layers.LayerTypeICMPv4, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeICMPv4)
	if layer == nil {
		return false
	}
	icmp := layer.(*layers.ICMPv4)
	return icmp.TypeCode.Type() == layers.ICMPv4TypeEchoReply && icmp.Id == id && icmp.Seq == seq
}

// ICMPPinger sends raw echo requests. Raw sockets need privileges; when the
// socket cannot be opened it falls back to the system ping command.
type ICMPPinger struct {
	Timeout  time.Duration
	Fallback toolexec.Runner
}

func (p ICMPPinger) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 2 * time.Second
}

func (p ICMPPinger) Ping(ctx context.Context, ip string) (bool, error) {
	dst := net.ParseIP(ip)
	if dst == nil || dst.To4() == nil {
		return false, fmt.Errorf("ping %q: not an IPv4 address", ip)
	}

	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return p.pingCommand(ctx, ip)
	}
	defer conn.Close()

	id := uint16(os.Getpid() & 0xffff)
	const seq = 1
	req, err := EchoRequest(id, seq, []byte("narwhal"))
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(p.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.WriteTo(req, &net.IPAddr{IP: dst}); err != nil {
		return false, fmt.Errorf("send echo to %s: %w", ip, err)
	}

	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return false, nil
			}
			return false, fmt.Errorf("read echo reply: %w", err)
		}
		if addr, ok := from.(*net.IPAddr); ok && addr.IP.Equal(dst) && IsEchoReply(buf[:n], id, seq) {
			return true, nil
		}
	}
}

func (p ICMPPinger) pingCommand(ctx context.Context, ip string) (bool, error) {
	runner := p.Fallback
	if runner == nil {
		runner = toolexec.Exec{}
	}
	args := []string{"-c", "1", ip}
	if runtime.GOOS == "windows" {
		args = []string{"-n", "1", ip}
	}
	out, err := runner.Run(ctx, "ping", args...)
	if err != nil {
		return false, err
	}
	return out.OK(), nil
}
