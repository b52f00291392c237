/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package hal

import (
	"fmt"
	"net"
	"sync"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/layers"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const (
	DefaultBridgeTimeout = 500 * time.Millisecond
	maxDatagramSize      = 2048
)

// ErrBridgeResponse returned when the board controller answered with a
// frame that does not match the request
type ErrBridgeResponse struct {
	Reason string
}

func (e ErrBridgeResponse) Error() string {
	return fmt.Sprintf("Wrong SPI bridge response: %s", e.Reason)
}

// UDPBridge sends SPI register operations to the board controller over UDP.
// Every request carries a sequence number which the response must echo.
type UDPBridge struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	seq     uint16
	timeout time.Duration
}

var _ ifc.Bus = &UDPBridge{}

func NewUDPBridge(addr string, timeout time.Duration) (*UDPBridge, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	log.Debug("SPI bridge: local %s remote %s", conn.LocalAddr(), raddr)
	return &UDPBridge{conn: conn, timeout: timeout}, nil
}

func (b *UDPBridge) Close() error {
	return b.conn.Close()
}

func (b *UDPBridge) RegGet(addr uint16) (uint8, error) {
	ops, err := b.Transact([]layers.SpiOp{{Read: true, Addr: addr}})
	if err != nil {
		return 0, err
	}
	return ops[0].Value, nil
}

func (b *UDPBridge) RegSet(addr uint16, val uint8) error {
	_, err := b.Transact([]layers.SpiOp{{Addr: addr, Value: val}})
	return err
}

// Transact sends a batch of operations in one frame and returns the
// operations echoed by the controller with read values filled in.
func (b *UDPBridge) Transact(ops []layers.SpiOp) ([]layers.SpiOp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	seq := b.seq
	out, err := layers.SerializeSpiFrame(layers.SpiFrameRequest, seq, ops)
	if err != nil {
		return nil, err
	}
	if err := b.conn.SetDeadline(time.Now().Add(b.timeout)); err != nil {
		return nil, err
	}
	if _, err := b.conn.Write(out); err != nil {
		return nil, err
	}

	data := make([]byte, maxDatagramSize)
	for {
		n, err := b.conn.Read(data)
		if err != nil {
			return nil, err
		}
		frame, resp, err := layers.DecodeSpiFrame(data[:n])
		if err != nil {
			return nil, err
		}
		if frame.Seq != seq {
			// late answer to a request that already timed out
			log.Debug("SPI bridge: drop response seq %d, waiting for %d", frame.Seq, seq)
			continue
		}
		if frame.Type != layers.SpiFrameResponse {
			return nil, ErrBridgeResponse{Reason: fmt.Sprintf("frame type %s", frame.Type)}
		}
		if len(resp.Ops) != len(ops) {
			return nil, ErrBridgeResponse{Reason: fmt.Sprintf("%d ops for %d requested", len(resp.Ops), len(ops))}
		}
		for i := range ops {
			if resp.Ops[i].Addr != ops[i].Addr&0x7fff || resp.Ops[i].Read != ops[i].Read {
				return nil, ErrBridgeResponse{Reason: fmt.Sprintf("op %d addr 0x%04x", i, resp.Ops[i].Addr)}
			}
			if resp.Ops[i].Fail {
				return nil, ErrBridgeResponse{Reason: fmt.Sprintf("board bus error at 0x%04x", resp.Ops[i].Addr)}
			}
		}
		return resp.Ops, nil
	}
}
