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
	"net"
	"testing"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/layers"
)

// serveSim answers SPI frames from the bridge out of a Sim register file
func serveSim(t *testing.T, sim *Sim) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, maxDatagramSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			frame, req, err := layers.DecodeSpiFrame(buf[:n])
			if err != nil {
				continue
			}
			resp := make([]layers.SpiOp, len(req.Ops))
			for i, op := range req.Ops {
				resp[i] = op
				if op.Read {
					resp[i].Value, _ = sim.RegGet(op.Addr)
				} else {
					sim.RegSet(op.Addr, op.Value)
				}
			}
			out, err := layers.SerializeSpiFrame(layers.SpiFrameResponse, frame.Seq, resp)
			if err != nil {
				continue
			}
			conn.WriteToUDP(out, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestUDPBridgeRoundTrip(t *testing.T) {
	sim := NewSim()
	sim.Poke(0x0004, 0x81)
	addr := serveSim(t, sim)

	b, err := NewUDPBridge(addr, time.Second)
	if err != nil {
		t.Fatalf("NewUDPBridge: %v", err)
	}
	defer b.Close()

	v, err := b.RegGet(0x0004)
	if err != nil || v != 0x81 {
		t.Fatalf("RegGet = 0x%02x, %v", v, err)
	}
	if err := b.RegSet(0x0100, 0x5A); err != nil {
		t.Fatalf("RegSet: %v", err)
	}
	if got := sim.Peek(0x0100); got != 0x5A {
		t.Errorf("board register = 0x%02x, want 0x5a", got)
	}

	ops, err := b.Transact([]layers.SpiOp{
		{Addr: 0x0101, Value: 7},
		{Read: true, Addr: 0x0101},
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if ops[1].Value != 7 {
		t.Errorf("batched read = %d, want 7", ops[1].Value)
	}
}

func TestUDPBridgeTimeout(t *testing.T) {
	// nobody answers on this socket
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	b, err := NewUDPBridge(conn.LocalAddr().String(), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.RegGet(1); err == nil {
		t.Fatal("expected timeout error")
	}
}
