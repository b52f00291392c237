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

package regmap

import (
	"fmt"
)

// Field is a bit field of the chip register space. Fields wider than the
// remaining bits of Addr continue in the following addresses, least
// significant byte first.
type Field struct {
	Name   string
	Addr   uint16
	Offset uint8
	Width  uint8
}

// Mask returns the value mask of the field (not shifted)
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return 0xffffffff
	}
	return (uint32(1) << f.Width) - 1
}

// Bytes returns the number of consecutive registers the field touches
func (f Field) Bytes() int {
	return (int(f.Offset) + int(f.Width) + 7) / 8
}

func (f Field) String() string {
	return fmt.Sprintf("%s@0x%04x[%d:%d]", f.Name, f.Addr, int(f.Offset)+int(f.Width)-1, f.Offset)
}

// At returns a copy of the field shifted by n registers, used for
// per-lane, per-converter and per-GPIO tables.
func (f Field) At(n int) Field {
	return Field{
		Name:   fmt.Sprintf("%s%d", f.Name, n),
		Addr:   f.Addr + uint16(n),
		Offset: f.Offset,
		Width:  f.Width,
	}
}

// Raw (non paged) control registers accessed with RegGet/RegSet
const (
	RegSpiConfig      uint16 = 0x0000
	RegChipProdIDLo   uint16 = 0x0004
	RegChipProdIDHi   uint16 = 0x0005
	RegChipRevision   uint16 = 0x0006
	RegClkPllStatus   uint16 = 0x0722
	RegSyncbCtrl      uint16 = 0x0595
	RegGeneralJrxCtrl uint16 = 0x0596
	RegForceLinkReset uint16 = 0x05BB
)

const (
	SpiSoftReset = 0x81

	// bit0: slow lock, bit1: fast lock
	ClkPllLockMask = 0x03

	ForceLinkResetJrx = 0x01
	ForceLinkResetJtx = 0x02

	SyncbRxModeRC   = 0x01
	PdSyncbRxRC     = 0x02
	GeneralJrxSync1 = 0x80
)

type FieldAlias int

const (
	// clocks
	FieldPllEnable FieldAlias = iota
	FieldPllRefDiv
	FieldPllFbDiv
	FieldAdcClkDiv
	FieldSerdesPllLocked
	FieldAclkPdTxDigClk
	FieldAdcDividerCtrl

	// sysref and one-shot sync
	FieldSysrefCouplingAC
	FieldSysrefRxEnable
	FieldSyncLmfcDelay
	FieldSysrefAverage
	FieldAvrgFlowEn
	FieldSyncMode
	FieldSyncSubclass
	FieldSysrefArm
	FieldSysrefCaptured

	// nco master/slave sync
	FieldMainAutoClkGating
	FieldNcoSyncMsMode
	FieldNcoSyncMsTrigSource
	FieldNcoSyncMsExtraLmfc
	FieldNcoSyncMsTrig
	FieldNcoSyncResetViaSysref
	FieldCddcSyncEnable
	FieldFddcSyncEnable
	FieldGpioCfg

	// rx datapath
	FieldCddcPage
	FieldFddcPage
	FieldCddcEnable
	FieldFddcEnable
	FieldCddcDcm
	FieldCddcC2R
	FieldCddcFtwLo
	FieldCddcFtwHi
	FieldFddcDcm
	FieldFddcC2R
	FieldFddcFtwLo
	FieldFddcFtwHi
	FieldNyquistZone
	FieldPfirDinSelectI
	FieldPfirDinSelectQ

	// tx datapath
	FieldTxMainInterp
	FieldTxChanInterp
	FieldDucMainPage
	FieldDucChanPage
	FieldDucMainFtwLo
	FieldDucMainFtwHi
	FieldDucChanFtwLo
	FieldDucChanFtwHi
	FieldDucChanGain
	FieldDacXbar

	// jrx (tx direction links)
	FieldJrxLinkPage
	FieldJrxLinkEn
	FieldJrxLanesReady
	FieldJrx204CState
	FieldJrxLaneXbar
	FieldJrxTplPhaseAdjust
	FieldJrxTplBufProtectEn

	// jtx (rx direction links)
	FieldJtxLinkPage
	FieldJtxLinkEn
	FieldJtxQbfState
	FieldJtxSyncN
	FieldJtxPllLocked
	FieldJtxPhaseEstablished
	FieldJtxModeInvalid
	FieldJtxLaneXbar
	FieldJtxLid
	FieldJtxConvSel
	FieldJtxSyncMode

	// 204C calibration
	FieldPhyPdLanes
	FieldCal204CStart
	FieldCal204CDone

	FieldAliasLimit
)

var FieldMap = map[FieldAlias]Field{
	FieldPllEnable:       {Name: "PLL_EN", Addr: 0x0720, Offset: 0, Width: 1},
	FieldPllRefDiv:       {Name: "PLL_REF_DIV", Addr: 0x0720, Offset: 4, Width: 2},
	FieldPllFbDiv:        {Name: "PLL_FB_DIV", Addr: 0x0721, Offset: 0, Width: 8},
	FieldAdcClkDiv:       {Name: "ADC_CLK_DIV", Addr: 0x0723, Offset: 0, Width: 2},
	FieldSerdesPllLocked: {Name: "SERDES_PLL_LOCKED", Addr: 0x0729, Offset: 0, Width: 1},
	FieldAclkPdTxDigClk:  {Name: "PD_TXDIGCLK", Addr: 0x0724, Offset: 2, Width: 1},
	FieldAdcDividerCtrl:  {Name: "ADC_DIVIDER_CTRL", Addr: 0x0725, Offset: 7, Width: 1},

	FieldSysrefCouplingAC: {Name: "SYSREF_COUPLING_AC", Addr: 0x00B0, Offset: 0, Width: 1},
	FieldSysrefRxEnable:   {Name: "SYSREF_RX_EN", Addr: 0x00B0, Offset: 1, Width: 1},
	FieldSyncLmfcDelay:    {Name: "SYNC_LMFC_DELAY", Addr: 0x00B2, Offset: 0, Width: 12},
	FieldSysrefAverage:    {Name: "SYSREF_AVERAGE", Addr: 0x00B5, Offset: 0, Width: 3},
	FieldAvrgFlowEn:       {Name: "AVRG_FLOW_EN", Addr: 0x00B7, Offset: 4, Width: 1},
	FieldSyncMode:         {Name: "SYNC_MODE", Addr: 0x00B4, Offset: 0, Width: 2},
	FieldSysrefArm:        {Name: "SYSREF_ONESHOT_ARM", Addr: 0x00B4, Offset: 2, Width: 1},
	FieldSyncSubclass:     {Name: "SYNC_SUBCLASS", Addr: 0x00B4, Offset: 4, Width: 1},
	FieldSysrefCaptured:   {Name: "SYSREF_CAPTURED", Addr: 0x00B6, Offset: 0, Width: 1},

	FieldMainAutoClkGating:     {Name: "MAIN_AUTO_CLK_GATING", Addr: 0x003E, Offset: 0, Width: 4},
	FieldNcoSyncMsMode:         {Name: "NCO_SYNC_MS_MODE", Addr: 0x00CC, Offset: 0, Width: 2},
	FieldNcoSyncMsTrigSource:   {Name: "NCO_SYNC_MS_TRIG_SOURCE", Addr: 0x00CC, Offset: 2, Width: 2},
	FieldNcoSyncMsExtraLmfc:    {Name: "NCO_SYNC_MS_EXTRA_LMFC_NUM", Addr: 0x00CC, Offset: 4, Width: 4},
	FieldNcoSyncMsTrig:         {Name: "NCO_SYNC_MS_TRIG", Addr: 0x00BC, Offset: 0, Width: 1},
	FieldNcoSyncResetViaSysref: {Name: "NCO_SYNC_RESET_VIA_SYSREF", Addr: 0x0205, Offset: 2, Width: 1},
	FieldCddcSyncEnable:        {Name: "CDDC_SYNC_EN", Addr: 0x0290, Offset: 0, Width: 4},
	FieldFddcSyncEnable:        {Name: "FDDC_SYNC_EN", Addr: 0x0291, Offset: 0, Width: 8},
	FieldGpioCfg:               {Name: "GPIO_CFG", Addr: 0x00D0, Offset: 0, Width: 4},

	FieldCddcPage:       {Name: "CDDC_PAGE", Addr: 0x0018, Offset: 0, Width: 4},
	FieldFddcPage:       {Name: "FDDC_PAGE", Addr: 0x0019, Offset: 0, Width: 8},
	FieldCddcEnable:     {Name: "CDDC_EN", Addr: 0x0292, Offset: 0, Width: 4},
	FieldFddcEnable:     {Name: "FDDC_EN", Addr: 0x0293, Offset: 0, Width: 8},
	FieldCddcDcm:        {Name: "CDDC_DCM", Addr: 0x0280, Offset: 0, Width: 4},
	FieldCddcC2R:        {Name: "CDDC_C2R", Addr: 0x0281, Offset: 0, Width: 1},
	FieldCddcFtwLo:      {Name: "CDDC_FTW_LO", Addr: 0x0282, Offset: 0, Width: 32},
	FieldCddcFtwHi:      {Name: "CDDC_FTW_HI", Addr: 0x0286, Offset: 0, Width: 16},
	FieldFddcDcm:        {Name: "FDDC_DCM", Addr: 0x0300, Offset: 0, Width: 4},
	FieldFddcC2R:        {Name: "FDDC_C2R", Addr: 0x0301, Offset: 0, Width: 1},
	FieldFddcFtwLo:      {Name: "FDDC_FTW_LO", Addr: 0x0302, Offset: 0, Width: 32},
	FieldFddcFtwHi:      {Name: "FDDC_FTW_HI", Addr: 0x0306, Offset: 0, Width: 16},
	FieldNyquistZone:    {Name: "NYQUIST_ZONE", Addr: 0x0270, Offset: 0, Width: 1},
	FieldPfirDinSelectI: {Name: "PFIR_DIN_SEL_I", Addr: 0x0D40, Offset: 0, Width: 2},
	FieldPfirDinSelectQ: {Name: "PFIR_DIN_SEL_Q", Addr: 0x0D40, Offset: 2, Width: 2},

	FieldTxMainInterp: {Name: "TX_MAIN_INTERP", Addr: 0x01FF, Offset: 0, Width: 4},
	FieldTxChanInterp: {Name: "TX_CHAN_INTERP", Addr: 0x01FF, Offset: 4, Width: 4},
	FieldDucMainPage:  {Name: "DUC_MAIN_PAGE", Addr: 0x001B, Offset: 0, Width: 4},
	FieldDucChanPage:  {Name: "DUC_CHAN_PAGE", Addr: 0x001C, Offset: 0, Width: 8},
	FieldDucMainFtwLo: {Name: "DUC_MAIN_FTW_LO", Addr: 0x01D2, Offset: 0, Width: 32},
	FieldDucMainFtwHi: {Name: "DUC_MAIN_FTW_HI", Addr: 0x01D6, Offset: 0, Width: 16},
	FieldDucChanFtwLo: {Name: "DUC_CHAN_FTW_LO", Addr: 0x01A2, Offset: 0, Width: 32},
	FieldDucChanFtwHi: {Name: "DUC_CHAN_FTW_HI", Addr: 0x01A6, Offset: 0, Width: 16},
	FieldDucChanGain:  {Name: "DUC_CHAN_GAIN", Addr: 0x0146, Offset: 0, Width: 12},
	FieldDacXbar:      {Name: "DAC_XBAR", Addr: 0x01B3, Offset: 0, Width: 4},

	FieldJrxLinkPage:        {Name: "JRX_LINK_PAGE", Addr: 0x0600, Offset: 0, Width: 2},
	FieldJrxLinkEn:          {Name: "JRX_LINK_EN", Addr: 0x0601, Offset: 0, Width: 2},
	FieldJrxLanesReady:      {Name: "JRX_LANES_READY", Addr: 0x0602, Offset: 0, Width: 8},
	FieldJrx204CState:       {Name: "JRX_204C_STATE", Addr: 0x0603, Offset: 0, Width: 3},
	FieldJrxLaneXbar:        {Name: "JRX_LANE_XBAR", Addr: 0x0610, Offset: 0, Width: 3},
	FieldJrxTplPhaseAdjust:  {Name: "JRX_TPL_PHASE_ADJUST", Addr: 0x0620, Offset: 0, Width: 8},
	FieldJrxTplBufProtectEn: {Name: "JRX_TPL_BUF_PROTECT_EN", Addr: 0x0621, Offset: 0, Width: 1},

	FieldJtxLinkPage:         {Name: "JTX_LINK_PAGE", Addr: 0x0700, Offset: 0, Width: 2},
	FieldJtxLinkEn:           {Name: "JTX_LINK_EN", Addr: 0x0701, Offset: 0, Width: 1},
	FieldJtxQbfState:         {Name: "JTX_QBF_STATE", Addr: 0x0702, Offset: 0, Width: 4},
	FieldJtxSyncN:            {Name: "JTX_SYNC_N", Addr: 0x0703, Offset: 0, Width: 1},
	FieldJtxPllLocked:        {Name: "JTX_PLL_LOCKED", Addr: 0x0728, Offset: 0, Width: 1},
	FieldJtxPhaseEstablished: {Name: "JTX_PHASE_ESTABLISHED", Addr: 0x0704, Offset: 0, Width: 1},
	FieldJtxModeInvalid:      {Name: "JTX_MODE_INVALID", Addr: 0x0705, Offset: 0, Width: 1},
	FieldJtxLaneXbar:         {Name: "JTX_LANE_XBAR", Addr: 0x0710, Offset: 0, Width: 3},
	FieldJtxLid:              {Name: "JTX_LID", Addr: 0x0718, Offset: 0, Width: 5},
	FieldJtxConvSel:          {Name: "JTX_CONV_SEL", Addr: 0x0730, Offset: 0, Width: 4},
	FieldJtxSyncMode:         {Name: "JTX_SYNC_MODE", Addr: 0x0706, Offset: 0, Width: 1},

	FieldPhyPdLanes:   {Name: "PHY_PD_LANES", Addr: 0x2110, Offset: 0, Width: 8},
	FieldCal204CStart: {Name: "CAL_204C_START", Addr: 0x21C1, Offset: 0, Width: 1},
	FieldCal204CDone:  {Name: "CAL_204C_DONE", Addr: 0x21C3, Offset: 0, Width: 1},
}

// F returns the field for the alias. It panics on an alias missing from
// FieldMap since that is a programming error.
func F(alias FieldAlias) Field {
	f, ok := FieldMap[alias]
	if !ok {
		panic(fmt.Sprintf("regmap: no field for alias %d", alias))
	}
	return f
}

// GpioCfg returns the function select nibble of the given chip GPIO.
// Two GPIOs share one register, even index in the low nibble.
func GpioCfg(index uint8) Field {
	f := F(FieldGpioCfg)
	return Field{
		Name:   fmt.Sprintf("%s%d", f.Name, index),
		Addr:   f.Addr + uint16(index>>1),
		Offset: 4 * (index & 1),
		Width:  f.Width,
	}
}

// Bit returns a single bit of a multi-bit field, e.g. one link of JRX_LINK_EN
func Bit(alias FieldAlias, bit uint8) Field {
	f := F(alias)
	return Field{
		Name:   fmt.Sprintf("%s.%d", f.Name, bit),
		Addr:   f.Addr + uint16((f.Offset+bit)/8),
		Offset: (f.Offset + bit) % 8,
		Width:  1,
	}
}

// GPIO function select codes
const (
	GpioModeHighZ   = 0
	GpioModeSyncOut = 10
	GpioModeSyncIn  = 11
	GpioMax         = 5
)

// NCO sync master/slave modes
const (
	NcoSyncMsDisabled = 0
	NcoSyncMsMaster   = 1
	NcoSyncMsSlave    = 2
)

const (
	ClkGatingAuto     = 0
	ClkGatingDisabled = 7

	SyncModeOneShot = 1

	CddcAll = 0x0F
	FddcAll = 0xFF

	// JTX framer terminal state
	QbfStateData = 13
	// JRX 204C link good state
	State204CLinkGood = 6
)

// ChipID values this software knows how to bring up
const (
	ProdIDAD9081 uint16 = 0x9081
	ProdIDAD9082 uint16 = 0x9082
	ProdIDAD9986 uint16 = 0x9986
	ProdIDAD9988 uint16 = 0x9988
)

var SupportedProdIDs = map[uint16]string{
	ProdIDAD9081: "AD9081",
	ProdIDAD9082: "AD9082",
	ProdIDAD9986: "AD9986",
	ProdIDAD9988: "AD9988",
}
