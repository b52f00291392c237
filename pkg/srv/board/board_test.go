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

package board

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd204"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

func startBoard(t *testing.T, sim *hal.Sim) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := NewServer(ctx, "127.0.0.1:0", sim)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Run()
	return s.Addr().String()
}

func TestBoardAnswersBridge(t *testing.T) {
	sim := hal.NewSimChip(regmap.ProdIDAD9082, 3)
	addr := startBoard(t, sim)

	b, err := hal.NewUDPBridge(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	lo, err := b.RegGet(regmap.RegChipProdIDLo)
	if err != nil || lo != 0x82 {
		t.Fatalf("prod id lo = 0x%02x, %v", lo, err)
	}
	if err := b.RegSet(0x0100, 0xA5); err != nil {
		t.Fatalf("RegSet: %v", err)
	}
	if got := sim.Peek(0x0100); got != 0xA5 {
		t.Errorf("board register = 0x%02x, want 0xa5", got)
	}
}

func TestBoardReportsBusError(t *testing.T) {
	sim := hal.NewSimChip(regmap.ProdIDAD9081, 3)
	sim.Fail(0x0100, errors.New("bus stuck"))
	addr := startBoard(t, sim)

	b, err := hal.NewUDPBridge(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var br hal.ErrBridgeResponse
	if _, err := b.RegGet(0x0100); !errors.As(err, &br) {
		t.Fatalf("RegGet: expected ErrBridgeResponse, got %v", err)
	}
	var te errs.ErrTransport
	if err := hal.NewFields(b).RegSet(0x0100, 1); !errors.As(err, &te) || te.Addr != 0x0100 {
		t.Fatalf("RegSet: expected ErrTransport at 0x0100, got %v", err)
	}
	sim.Fail(0x0100, nil)
	if _, err := b.RegGet(0x0100); err != nil {
		t.Fatalf("RegGet after recovery: %v", err)
	}
}

func TestRunReturnsOnSocketError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := NewServer(ctx, "127.0.0.1:0", hal.NewSimChip(regmap.ProdIDAD9081, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	s.conn.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Run returned nil after the socket closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the socket closed")
	}
}

func TestBoardDropsGarbage(t *testing.T) {
	sim := hal.NewSimChip(regmap.ProdIDAD9081, 3)
	addr := startBoard(t, sim)

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatal("garbage frame was answered")
	}

	b, err := hal.NewUDPBridge(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.RegGet(regmap.RegChipRevision); err != nil {
		t.Fatalf("board stopped answering after garbage: %v", err)
	}
}

func TestBringUpOverBridge(t *testing.T) {
	sim := hal.NewSimChip(regmap.ProdIDAD9081, 3)
	addr := startBoard(t, sim)

	b, err := hal.NewUDPBridge(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	cfg := config.NewDefaultDevice("board0")
	cfg.Transport = config.TransportUDP
	cfg.Address = addr
	d, err := device.New(cfg, hal.NewFields(b), device.Options{
		ChainTop: true,
		Poller:   jesd.Poller{Retries: 2, Interval: time.Millisecond},
		Sleep:    func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	topo := jesd204.NewTopology(1, d)
	if _, err := topo.BringUp(context.Background()); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if !d.Initialized() {
		t.Error("device not initialized after bring-up over the bridge")
	}
}
