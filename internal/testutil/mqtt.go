package testutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// Message is a PUBLISH received by the mock broker.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockMQTTBroker implements the subset of MQTT 3.1.1 a publishing client
// needs: CONNECT, PUBLISH (QoS 0/1), PINGREQ and DISCONNECT.
type MockMQTTBroker struct {
	listener net.Listener
	conns    map[net.Conn]struct{}
	messages []Message
	received chan Message
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex

	// RejectConnect makes the broker refuse every CONNECT with this return code.
	RejectConnect byte
}

func NewMockMQTTBroker() *MockMQTTBroker {
	return &MockMQTTBroker{
		conns:    make(map[net.Conn]struct{}),
		received: make(chan Message, 64),
	}
}

// Start starts the broker on a random port.
func (b *MockMQTTBroker) Start() error {
	var err error
	b.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	b.wg.Add(1)
	go b.acceptLoop()
	return nil
}

func (b *MockMQTTBroker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleConnection(conn)
		}()
	}
}

func (b *MockMQTTBroker) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
	}()

	for {
		header := make([]byte, 1)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length, err := readRemainingLength(conn)
		if err != nil {
			return
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		switch header[0] >> 4 {
		case 1: // CONNECT
			if b.RejectConnect != 0 {
				conn.Write([]byte{0x20, 0x02, 0x00, b.RejectConnect})
				return
			}
			conn.Write([]byte{0x20, 0x02, 0x00, 0x00})
		case 3: // PUBLISH
			b.handlePublish(conn, header[0], payload)
		case 12: // PINGREQ
			conn.Write([]byte{0xD0, 0x00})
		case 14: // DISCONNECT
			return
		}
	}
}

// readRemainingLength decodes the variable length integer of the fixed header.
func readRemainingLength(r io.Reader) (int, error) {
	var (
		value      int
		multiplier = 1
		buf        = make([]byte, 1)
	)
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		value += int(buf[0]&127) * multiplier
		if buf[0]&128 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, fmt.Errorf("malformed remaining length")
}

func (b *MockMQTTBroker) handlePublish(conn net.Conn, flags byte, payload []byte) {
	qos := (flags >> 1) & 0x03
	if len(payload) < 2 {
		return
	}
	topicLen := int(binary.BigEndian.Uint16(payload))
	if len(payload) < 2+topicLen {
		return
	}
	msg := Message{
		Topic:  string(payload[2 : 2+topicLen]),
		QoS:    qos,
		Retain: flags&0x01 != 0,
	}
	idx := 2 + topicLen

	var packetID uint16
	if qos > 0 {
		if len(payload) < idx+2 {
			return
		}
		packetID = binary.BigEndian.Uint16(payload[idx:])
		idx += 2
	}
	msg.Payload = append([]byte(nil), payload[idx:]...)

	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
	select {
	case b.received <- msg:
	default:
	}

	if qos == 1 {
		conn.Write([]byte{0x40, 0x02, byte(packetID >> 8), byte(packetID)})
	}
}

// Received delivers every published message as it arrives.
func (b *MockMQTTBroker) Received() <-chan Message { return b.received }

// Messages returns a copy of every message published so far.
func (b *MockMQTTBroker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

// Stop stops the broker.
func (b *MockMQTTBroker) Stop() error {
	b.mu.Lock()
	b.closed = true
	for conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()

	if b.listener != nil {
		b.listener.Close()
	}
	b.wg.Wait()
	return nil
}

// Addr returns the broker address.
func (b *MockMQTTBroker) Addr() string {
	return b.listener.Addr().String()
}
