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

package config

const (
	ConfigDir  = ".go-mxfe"
	ConfigFile = "config"
	DBFile     = "state.db"

	DefaultIP             = "127.0.0.1"
	DefaultPort           = 8003
	DefaultLogLevel       = "info"
	DefaultRetries        = 3
	DefaultPollRetries    = 5
	DefaultPollIntervalMs = 20
	DefaultBridgeTimeout  = 500

	TransportSim = "sim"
	TransportUDP = "udp"

	DefaultDeviceName  = "mxfe0"
	DefaultDacHz       = 12_000_000_000
	DefaultAdcHz       = 4_000_000_000
	DefaultRefHz       = 500_000_000
	DefaultResetSettle = 1
)
