package pxe

import "net"
import "time"

import "github.com/srikwit/chocolate-milk/defs"

const (
	_RRQ   = 1
	_DATA  = 3
	_ACK   = 4
	_ERROR = 5

	_BLKSZ = 512

	_EFNOTFOUND = 1
)

// Tftp_t downloads files from a TFTP server (RFC 1350, octet mode).
type Tftp_t struct {
	// server address, host:port
	Server string
	// per-packet receive deadline and retransmit cap
	Timeout time.Duration
	Tries   int
}

func (t *Tftp_t) timeout() time.Duration {
	if t.Timeout == 0 {
		return time.Second
	}
	return t.Timeout
}

func (t *Tftp_t) tries() int {
	if t.Tries == 0 {
		return 4
	}
	return t.Tries
}

func rrq(name string) []uint8 {
	req := []uint8{0, _RRQ}
	req = append(req, name...)
	req = append(req, 0)
	req = append(req, "octet"...)
	req = append(req, 0)
	return req
}

func ack(blk uint16) []uint8 {
	return []uint8{0, _ACK, uint8(blk >> 8), uint8(blk)}
}

func (t *Tftp_t) Download(name string) ([]uint8, defs.Err_t) {
	saddr, err := net.ResolveUDPAddr("udp", t.Server)
	if err != nil {
		return nil, -defs.EIO
	}
	c, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, -defs.EIO
	}
	defer c.Close()

	// the server answers from a fresh port (its TID); all traffic after
	// the request goes there.
	var tid net.Addr
	last := rrq(name)
	dst := net.Addr(saddr)

	var file []uint8
	var blk uint16 = 1
	pkt := make([]uint8, 4+_BLKSZ)
	for {
		if _, err := c.WriteTo(last, dst); err != nil {
			return nil, -defs.EIO
		}
		var n int
		var from net.Addr
		got := false
		for try := 0; try < t.tries(); try++ {
			c.SetReadDeadline(time.Now().Add(t.timeout()))
			n, from, err = c.ReadFrom(pkt)
			if err != nil {
				// retransmit the request or the last ack
				c.WriteTo(last, dst)
				continue
			}
			if tid != nil && from.String() != tid.String() {
				// stray sender; not ours
				try--
				continue
			}
			got = true
			break
		}
		if !got {
			return nil, -defs.ETIMEDOUT
		}
		if n < 4 {
			return nil, -defs.EIO
		}
		op := int(pkt[0])<<8 | int(pkt[1])
		arg := uint16(pkt[2])<<8 | uint16(pkt[3])
		if op == _ERROR {
			if arg == _EFNOTFOUND {
				return nil, -defs.ENOENT
			}
			return nil, -defs.EIO
		}
		if op != _DATA {
			return nil, -defs.EIO
		}
		if tid == nil {
			tid = from
			dst = from
		}
		if arg != blk {
			// duplicate of an old block; ack it again and wait
			last = ack(arg)
			continue
		}
		file = append(file, pkt[4:n]...)
		last = ack(blk)
		blk++
		if n-4 < _BLKSZ {
			// short block terminates the transfer; fire the final
			// ack and go
			c.WriteTo(last, dst)
			return file, 0
		}
	}
}
