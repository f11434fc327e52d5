package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/packet"
	"firestige.xyz/uoaprobe/internal/uoa"
)

const maxDatagram = 65535

// RequestReply binds spec.SourcePort, sends the datagram and waits for
// one reply on that port.
func (t *Transport) RequestReply(ctx context.Context, spec packet.Spec) ([]byte, error) {
	network := "udp4"
	if spec.Destination.Family() == uoa.V6 {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: int(spec.SourcePort)})
	if err != nil {
		return nil, fmt.Errorf("bind source port %d: %w", spec.SourcePort, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := t.send(ctx, spec); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(t.cfg.Timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, maxDatagram)
	n, from, err := conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: %s did not answer within %s", core.ErrNoResponse, spec.Destination, t.cfg.Timeout)
		}
		return nil, fmt.Errorf("read reply: %w", err)
	}

	log.GetLogger().WithFields(logrus.Fields{
		"dst":     spec.Destination.String(),
		"from":    from.String(),
		"variant": spec.Variant(),
		"bytes":   n,
	}).Debug("reply received")
	return buf[:n], nil
}
