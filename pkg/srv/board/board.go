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
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"

	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/layers"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/srv"
)

const (
	DefaultPort = 33300
	bufferSize  = 65536
)

// Server plays the board controller: it answers SPI frames sent by
// hal.UDPBridge out of a register bus, usually a simulated chip.
type Server struct {
	srv.Server
	bus ifc.Bus

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewServer(ctx context.Context, addr string, bus ifc.Bus) (*Server, error) {
	log.Debug("Initializing board server with address: %s", addr)

	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		Server: srv.Server{
			Context: ctx,
			UDPAddr: uaddr,
			ChIn:    make(chan srv.InPacket),
			ChOut:   make(chan srv.OutPacket),
		},
		bus: bus,
	}, nil
}

// Listen binds the socket. Run calls it when it was not called before.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", s.UDPAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Addr is the bound address, useful when listening on port 0
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return s.UDPAddr
	}
	return s.conn.LocalAddr()
}

func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	conn := s.conn
	defer conn.Close()

	log.Info("Board server listening on %s", conn.LocalAddr())

	errChan := make(chan error, 2)

	// Read UDP packets from wire and put them to input queue
	go func() {
		buffer := make([]byte, bufferSize)
		for {
			length, addr, readErr := conn.ReadFromUDP(buffer)
			if readErr != nil {
				select {
				case errChan <- readErr:
				case <-s.Context.Done():
				}
				return
			}
			data := make([]byte, length)
			copy(data, buffer[:length])
			captureInfo := gopacket.CaptureInfo{
				Length:        length,
				CaptureLength: length,
				Timestamp:     time.Now(),
				AncillaryData: []interface{}{addr},
			}
			select {
			case s.ChIn <- srv.InPacket{Data: data, CaptureInfo: captureInfo}:
			case <-s.Context.Done():
				return
			}
		}
	}()

	// Decode requests, apply them to the bus and queue responses
	go func() {
		source := gopacket.NewPacketSource(s, layers.SpiFrameLayerType)
		for packet := range source.Packets() {
			out, err := s.handle(packet)
			if err != nil {
				log.Debug("Drop SPI request: %s", err)
				continue
			}
			select {
			case s.ChOut <- out:
			case <-s.Context.Done():
				return
			}
		}
	}()

	// Read packets from output queue and send them to wire
	go func() {
		for {
			select {
			case outPacket := <-s.ChOut:
				if _, sendErr := conn.WriteToUDP(outPacket.Data, outPacket.UDPAddr); sendErr != nil {
					log.Error("Error while sending data to %s", outPacket.UDPAddr)
					select {
					case errChan <- sendErr:
					case <-s.Context.Done():
					}
					return
				}
			case <-s.Context.Done():
				return
			}
		}
	}()

	select {
	case <-s.Context.Done():
		return s.Context.Err()
	case err := <-errChan:
		return err
	}
}

func (s *Server) handle(packet gopacket.Packet) (srv.OutPacket, error) {
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return srv.OutPacket{}, errLayer.Error()
	}
	addr, err := srv.GetAddrPort(packet)
	if err != nil {
		return srv.OutPacket{}, err
	}
	frameLayer := packet.Layer(layers.SpiFrameLayerType)
	opsLayer := packet.Layer(layers.SpiOpsLayerType)
	if frameLayer == nil || opsLayer == nil {
		return srv.OutPacket{}, ErrUnexpectedFrame{What: "missing SPI layers"}
	}
	frame := frameLayer.(*layers.SpiFrameLayer)
	if frame.Type != layers.SpiFrameRequest {
		return srv.OutPacket{}, ErrUnexpectedFrame{What: frame.Type.String()}
	}

	resp := s.apply(opsLayer.(*layers.SpiOpsLayer).Ops)
	data, err := layers.SerializeSpiFrame(layers.SpiFrameResponse, frame.Seq, resp)
	if err != nil {
		return srv.OutPacket{}, err
	}
	return srv.OutPacket{Data: data, UDPAddr: addr}, nil
}

// apply runs the operations in order. A failing access is answered with
// zero and the fail flag so the frame keeps its shape.
func (s *Server) apply(ops []layers.SpiOp) []layers.SpiOp {
	resp := make([]layers.SpiOp, len(ops))
	for i, op := range ops {
		resp[i] = op
		if op.Read {
			val, err := s.bus.RegGet(op.Addr)
			if err != nil {
				log.Warning("Board read 0x%04x: %s", op.Addr, err)
				val, resp[i].Fail = 0, true
			}
			resp[i].Value = val
			continue
		}
		if err := s.bus.RegSet(op.Addr, op.Value); err != nil {
			log.Warning("Board write 0x%04x: %s", op.Addr, err)
			resp[i].Fail = true
		}
	}
	return resp
}
