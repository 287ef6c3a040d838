package qemu

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"kmon/logflags"
	"kmon/target"
)

const (
	ackTimeout    = 2 * time.Second
	packetTimeout = 5 * time.Second
	maxRetries    = 3

	// maxMemChunk keeps 'm' replies within the stub's packet buffer.
	maxMemChunk = 0x400
)

// QemuDbg is a connection to QEMU's GDB stub. It implements target.Target.
type QemuDbg struct {
	conn net.Conn
	rd   *bufio.Reader
	host string
	port int
}

var _ target.Target = (*QemuDbg)(nil)

// Connect dials the GDB stub at host:port.
func Connect(host string, port int) (*QemuDbg, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	q, err := NewConn(conn)
	if err != nil {
		return nil, err
	}
	q.host, q.port = host, port
	return q, nil
}

// NewConn starts a session over an established connection.
func NewConn(conn net.Conn) (*QemuDbg, error) {
	q := &QemuDbg{conn: conn, rd: bufio.NewReader(conn)}
	if _, err := conn.Write([]byte("+")); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// Close detaches from the stub, which resumes the guest.
func (q *QemuDbg) Close() error {
	if q.conn == nil {
		return nil
	}
	q.sendPacket("D")
	err := q.conn.Close()
	q.conn = nil
	return err
}

func checksum(data string) byte {
	sum := byte(0)
	for i := 0; i < len(data); i++ {
		sum += data[i]
	}
	return sum
}

func (q *QemuDbg) sendPacket(data string) error {
	packet := fmt.Sprintf("$%s#%02x", data, checksum(data))
	if logflags.GdbWire() {
		logflags.GdbWireLogger().Debugf("-> %s", packet)
	}

	for retry := 0; retry < maxRetries; retry++ {
		if _, err := q.conn.Write([]byte(packet)); err != nil {
			return err
		}

		q.conn.SetReadDeadline(time.Now().Add(ackTimeout))
		ack, err := q.rd.ReadByte()
		q.conn.SetReadDeadline(time.Time{})
		if err != nil {
			if retry < maxRetries-1 {
				continue
			}
			return fmt.Errorf("failed to read ack: %w", err)
		}

		switch ack {
		case '+':
			return nil
		case '-':
			continue
		default:
			// No-ack mode or a stop reply racing us; keep it for recvPacket.
			q.rd.UnreadByte()
			return nil
		}
	}
	return fmt.Errorf("failed to send packet after %d retries", maxRetries)
}

func (q *QemuDbg) recvPacket() (string, error) {
	q.conn.SetReadDeadline(time.Now().Add(packetTimeout))
	defer q.conn.SetReadDeadline(time.Time{})

	for {
		data, err := readPacket(q.rd)
		if errors.Is(err, errBadChecksum) {
			q.conn.Write([]byte("-"))
			continue
		}
		if err != nil {
			return "", err
		}
		q.conn.Write([]byte("+"))
		if logflags.GdbWire() {
			logflags.GdbWireLogger().Debugf("<- %s", data)
		}
		return data, nil
	}
}

var errBadChecksum = errors.New("checksum mismatch")

// readPacket reads one "$data#cs" packet, skipping acks and noise before it.
func readPacket(rd *bufio.Reader) (string, error) {
	for {
		b, err := rd.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '$' {
			break
		}
	}
	body, err := rd.ReadString('#')
	if err != nil {
		return "", err
	}
	body = body[:len(body)-1]

	var cs [2]byte
	if _, err := io.ReadFull(rd, cs[:]); err != nil {
		return "", err
	}
	want, err := strconv.ParseUint(string(cs[:]), 16, 8)
	if err != nil || byte(want) != checksum(body) {
		return "", errBadChecksum
	}
	return body, nil
}

func (q *QemuDbg) readResponse(cmd string) (string, error) {
	if q.conn == nil {
		return "", errors.New("not connected")
	}
	if err := q.sendPacket(cmd); err != nil {
		return "", err
	}
	return q.recvPacket()
}

// HaltReason asks why the guest stopped (the "?" packet).
func (q *QemuDbg) HaltReason() (string, error) {
	return q.readResponse("?")
}

// Interrupt stops a running guest and returns its stop reply.
func (q *QemuDbg) Interrupt() (string, error) {
	if q.conn == nil {
		return "", errors.New("not connected")
	}
	if _, err := q.conn.Write([]byte{0x03}); err != nil {
		return "", fmt.Errorf("failed to send interrupt: %w", err)
	}
	reply, err := q.recvPacket()
	if err != nil {
		return "", fmt.Errorf("failed to receive interrupt response: %w", err)
	}
	return reply, nil
}

func isStopReply(reply string) bool {
	return reply != "" && (reply[0] == 'S' || reply[0] == 'T')
}

// Halt makes sure the guest is stopped. When the stub does not answer "?"
// with a stop reply the guest is interrupted.
func (q *QemuDbg) Halt() (string, error) {
	reason, err := q.HaltReason()
	if err == nil && isStopReply(reason) {
		return reason, nil
	}
	if logflags.GdbWire() {
		logflags.GdbWireLogger().Debugf("guest not halted (%q, %v), interrupting", reason, err)
	}
	return q.Interrupt()
}

// GetMemory reads size bytes at addr, splitting the request into packets
// of at most maxMemChunk bytes.
func (q *QemuDbg) GetMemory(size uint, addr uintptr) ([]byte, error) {
	data := make([]byte, 0, size)
	for uint(len(data)) < size {
		n := size - uint(len(data))
		if n > maxMemChunk {
			n = maxMemChunk
		}
		at := addr + uintptr(len(data))
		chunk, err := q.readMemory(n, at)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}
	return data, nil
}

func (q *QemuDbg) readMemory(size uint, addr uintptr) ([]byte, error) {
	resp, err := q.readResponse(fmt.Sprintf("m%x,%x", addr, size))
	if err != nil {
		return nil, err
	}
	if resp == "" || resp[0] == 'E' {
		return nil, fmt.Errorf("failed to read memory at 0x%016x: %q", addr, resp)
	}
	data, err := hex.DecodeString(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode memory: %w", err)
	}
	if uint(len(data)) != size {
		return nil, fmt.Errorf("short memory read at 0x%016x: got %d bytes, want %d", addr, len(data), size)
	}
	return data, nil
}

// Register layout of the x86-64 'g' reply: 16 general purpose registers,
// rip, then 32-bit eflags and segment selectors.
const (
	gprBytes    = 16 * 8
	ripOff      = gprBytes
	eflagsOff   = ripOff + 8
	segOff      = eflagsOff + 4
	minRegBytes = segOff
	fullRegSize = segOff + 6*4
)

func (q *QemuDbg) GetRegs() (*target.TrapFrame, error) {
	resp, err := q.readResponse("g")
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode registers: %w", err)
	}
	return decodeRegs(data)
}

func decodeRegs(data []byte) (*target.TrapFrame, error) {
	if len(data) < minRegBytes {
		return nil, fmt.Errorf("insufficient register data: got %d bytes, need at least %d", len(data), minRegBytes)
	}
	le := binary.LittleEndian
	gpr := make([]uint64, 16)
	for i := range gpr {
		gpr[i] = le.Uint64(data[i*8:])
	}
	tf := &target.TrapFrame{
		Rax: gpr[0], Rbx: gpr[1], Rcx: gpr[2], Rdx: gpr[3],
		Rsi: gpr[4], Rdi: gpr[5], Rbp: gpr[6], Rsp: gpr[7],
		R8: gpr[8], R9: gpr[9], R10: gpr[10], R11: gpr[11],
		R12: gpr[12], R13: gpr[13], R14: gpr[14], R15: gpr[15],
		Rip:    le.Uint64(data[ripOff:]),
		Eflags: uint64(le.Uint32(data[eflagsOff:])),
	}
	if len(data) >= fullRegSize {
		seg := func(i int) uint32 { return le.Uint32(data[segOff+i*4:]) }
		tf.Cs, tf.Ss, tf.Ds, tf.Es, tf.Fs, tf.Gs = seg(0), seg(1), seg(2), seg(3), seg(4), seg(5)
	}
	return tf, nil
}
