package presence

import (
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/nerrad567/fritz-presence/internal/fritzbox"
)

const magicPacketSize = 6 + 16*6

// MagicPacket builds the wake-on-LAN payload for mac: six 0xFF bytes
// followed by the hardware address repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	norm, err := fritzbox.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	hw, err := net.ParseMAC(norm)
	if err != nil {
		return nil, err
	}

	pkt := make([]byte, 0, magicPacketSize)
	pkt = append(pkt, bytes.Repeat([]byte{0xFF}, 6)...)
	for i := 0; i < 16; i++ {
		pkt = append(pkt, hw...)
	}
	return pkt, nil
}

// SendMagicPacket sends a wake-on-LAN packet for mac to addr
// (usually "255.255.255.255:9").
func SendMagicPacket(ctx context.Context, addr, mac string) error {
	pkt, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("sending magic packet to %s: %w", addr, err)
	}
	return nil
}
