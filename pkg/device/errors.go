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

package device

import (
	"fmt"
)

type ErrUnsupportedChip struct {
	ProdID uint16
}

func (e ErrUnsupportedChip) Error() string {
	return fmt.Sprintf("Unsupported chip product id 0x%04x", e.ProdID)
}

type ErrLinkNotFound struct {
	Device string
	Link   string
}

func (e ErrLinkNotFound) Error() string {
	return fmt.Sprintf("Link %s not found on device %s", e.Link, e.Device)
}
