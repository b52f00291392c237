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

package layers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const (
	// SpiFrameLayerNum identifies the frame layer
	SpiFrameLayerNum = 2001
	// SpiOpsLayerNum identifies the register operation layer
	SpiOpsLayerNum = 2002
	// SpiSync is a magic number that appears in the beginning of each frame
	SpiSync = 0x5350
	// SpiFrameHeaderSize is 4 uint16 words: type, sync, seq, op count
	SpiFrameHeaderSize = 8
	// SpiFrameTailSize is the crc32 of header and payload
	SpiFrameTailSize = 4
	// SpiMaxOps fits a frame into a single non fragmented UDP datagram
	SpiMaxOps = 256
)

type SpiFrameType uint16

const (
	SpiFrameRequest  SpiFrameType = 0x0201
	SpiFrameResponse SpiFrameType = 0x0202
)

func (t SpiFrameType) String() string {
	switch t {
	case SpiFrameRequest:
		return "SpiRequest"
	case SpiFrameResponse:
		return "SpiResponse"
	}
	return fmt.Sprintf("UnknownSpiFrameType(0x%04x)", uint16(t))
}

type SpiFrameLayer struct {
	layers.BaseLayer
	Type  SpiFrameType
	Sync  uint16
	Seq   uint16
	Count uint16 // number of register operations in the payload
	Crc   uint32
}

var SpiFrameLayerType = gopacket.RegisterLayerType(SpiFrameLayerNum,
	gopacket.LayerTypeMetadata{Name: "SpiFrameLayerType", Decoder: gopacket.DecodeFunc(decodeSpiFrameLayer)})

func (f *SpiFrameLayer) LayerType() gopacket.LayerType {
	return SpiFrameLayerType
}

func (f *SpiFrameLayer) NextLayerType() gopacket.LayerType {
	return SpiOpsLayerType
}

// SerializeTo prepends the header and appends the crc. The payload
// (register operations) must already be in the buffer, so the op layer
// goes after the frame layer in gopacket.SerializeLayers.
func (f *SpiFrameLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	if payloadLen%4 != 0 {
		return fmt.Errorf("SPI frame payload length %d is not a multiple of 4", payloadLen)
	}
	if opts.FixLengths {
		f.Count = uint16(payloadLen / 4)
	}
	if f.Sync == 0 {
		f.Sync = SpiSync
	}
	header, err := b.PrependBytes(SpiFrameHeaderSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(header[0:2], uint16(f.Type))
	binary.LittleEndian.PutUint16(header[2:4], f.Sync)
	binary.LittleEndian.PutUint16(header[4:6], f.Seq)
	binary.LittleEndian.PutUint16(header[6:8], f.Count)

	if opts.ComputeChecksums {
		f.Crc = crc32.ChecksumIEEE(b.Bytes())
	}
	tail, err := b.AppendBytes(SpiFrameTailSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(tail, f.Crc)
	return nil
}

// DecodeFromBytes attempts to decode the byte slice as a SPI frame
func (f *SpiFrameLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < SpiFrameHeaderSize+SpiFrameTailSize {
		df.SetTruncated()
		return errors.New("SPI frame too short")
	}
	f.Sync = binary.LittleEndian.Uint16(data[2:4])
	if f.Sync != SpiSync {
		return fmt.Errorf("Wrong SPI frame sync 0x%04x. Must be 0x%04x", f.Sync, SpiSync)
	}
	f.Type = SpiFrameType(binary.LittleEndian.Uint16(data[0:2]))
	f.Seq = binary.LittleEndian.Uint16(data[4:6])
	f.Count = binary.LittleEndian.Uint16(data[6:8])

	end := len(data) - SpiFrameTailSize
	if int(f.Count)*4 != end-SpiFrameHeaderSize {
		df.SetTruncated()
		return fmt.Errorf("SPI frame declares %d ops but carries %d bytes", f.Count, end-SpiFrameHeaderSize)
	}
	f.Crc = binary.LittleEndian.Uint32(data[end:])
	if sum := crc32.ChecksumIEEE(data[:end]); sum != f.Crc {
		return fmt.Errorf("Wrong SPI frame crc 0x%08x. Must be 0x%08x", f.Crc, sum)
	}

	f.BaseLayer = layers.BaseLayer{
		Contents: data[:SpiFrameHeaderSize],
		Payload:  data[SpiFrameHeaderSize:end],
	}
	return nil
}

func decodeSpiFrameLayer(data []byte, p gopacket.PacketBuilder) error {
	f := &SpiFrameLayer{}
	if err := f.DecodeFromBytes(data, p); err != nil {
		log.Debug("Error while decoding SPI frame: %s", err)
		return err
	}
	p.AddLayer(f)
	return p.NextDecoder(f.NextLayerType())
}

// SpiOp is a single register access. For reads Value is ignored in the
// request and carries the register contents in the response. Fail is only
// set in responses, when the board could not complete the access.
type SpiOp struct {
	Read  bool
	Addr  uint16
	Value uint8
	Fail  bool
}

const (
	spiOpRead = 0x80000000
	spiOpFail = 0x00008000
)

func (op SpiOp) word() uint32 {
	w := (uint32(op.Addr) & 0x7fff) << 16
	if op.Read {
		w |= spiOpRead
	}
	if op.Fail {
		w |= spiOpFail
	}
	return w | uint32(op.Value)
}

type SpiOpsLayer struct {
	layers.BaseLayer
	Ops []SpiOp
}

var SpiOpsLayerType = gopacket.RegisterLayerType(SpiOpsLayerNum,
	gopacket.LayerTypeMetadata{Name: "SpiOpsLayerType", Decoder: gopacket.DecodeFunc(decodeSpiOpsLayer)})

func (l *SpiOpsLayer) LayerType() gopacket.LayerType {
	return SpiOpsLayerType
}

func (l *SpiOpsLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if len(l.Ops) > SpiMaxOps {
		return fmt.Errorf("Too many SPI ops in one frame: %d > %d", len(l.Ops), SpiMaxOps)
	}
	bytes, err := b.AppendBytes(4 * len(l.Ops))
	if err != nil {
		return err
	}
	for i, op := range l.Ops {
		binary.LittleEndian.PutUint32(bytes[4*i:4*i+4], op.word())
	}
	return nil
}

func (l *SpiOpsLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data)%4 != 0 {
		df.SetTruncated()
		return fmt.Errorf("SPI ops payload length %d is not a multiple of 4", len(data))
	}
	l.BaseLayer = layers.BaseLayer{Contents: data, Payload: []byte{}}
	l.Ops = make([]SpiOp, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		word := binary.LittleEndian.Uint32(data[i : i+4])
		l.Ops = append(l.Ops, SpiOp{
			Read:  word&spiOpRead != 0,
			Addr:  uint16((word >> 16) & 0x7fff),
			Value: uint8(word),
			Fail:  word&spiOpFail != 0,
		})
	}
	return nil
}

func decodeSpiOpsLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &SpiOpsLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}

// DecodeSpiFrame decodes a datagram into its frame and op layers
func DecodeSpiFrame(data []byte) (*SpiFrameLayer, *SpiOpsLayer, error) {
	packet := gopacket.NewPacket(data, SpiFrameLayerType, gopacket.Default)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, nil, errLayer.Error()
	}
	frame, ok := packet.Layer(SpiFrameLayerType).(*SpiFrameLayer)
	if !ok {
		return nil, nil, errors.New("SPI frame layer missing")
	}
	ops, ok := packet.Layer(SpiOpsLayerType).(*SpiOpsLayer)
	if !ok {
		// frame without operations
		ops = &SpiOpsLayer{}
	}
	return frame, ops, nil
}

// SerializeSpiFrame encodes the frame header and ops into a datagram
func SerializeSpiFrame(typ SpiFrameType, seq uint16, ops []SpiOp) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts,
		&SpiFrameLayer{Type: typ, Seq: seq},
		&SpiOpsLayer{Ops: ops},
	)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
