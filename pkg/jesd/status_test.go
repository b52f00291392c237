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

package jesd

import (
	"context"
	"errors"
	"testing"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
)

func TestClassify204C(t *testing.T) {
	for code := 0; code < 8; code++ {
		for _, low := range []uint16{0x00, 0xFF} {
			status := uint16(code)<<8 | low | 0xF800
			v := Classify204C(status)
			if v.Pass != (code == 6) {
				t.Errorf("status 0x%04x: pass = %v", status, v.Pass)
			}
			if v.State != linkStateNames[code] {
				t.Errorf("status 0x%04x: state %q, want %q", status, v.State, linkStateNames[code])
			}
		}
	}
	if Classify204C(0x0600).State != "LinkGood" {
		t.Error("code 6 is not named LinkGood")
	}
}

func TestClassify204B(t *testing.T) {
	for lanes := uint8(1); lanes <= MaxLanes; lanes++ {
		mask := uint16(1)<<lanes - 1
		for status := uint16(0); status < 0x200; status++ {
			want := status&mask == mask
			if got := Classify204B(status, lanes).Pass; got != want {
				t.Fatalf("lanes %d status 0x%03x: pass = %v, want %v", lanes, status, got, want)
			}
		}
	}
}

func TestClassifyFramer(t *testing.T) {
	good := uint16(FramerData) | FramerSyncN | FramerPllLocked | FramerPhaseEstablished
	tests := []struct {
		name   string
		enc    Encoding
		status uint16
		pass   bool
	}{
		{"legacy data", Legacy, good, true},
		{"legacy ila", Legacy, good&^0x0F | 9, false},
		{"newer ignores framer state", Newer, good &^ 0x0F, true},
		{"pll unlocked", Newer, good &^ FramerPllLocked, false},
		{"no phase", Legacy, good &^ FramerPhaseEstablished, false},
		{"mode invalid", Newer, good | FramerModeInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := tt.enc.ClassifyFramer(tt.status); v.Pass != tt.pass {
				t.Errorf("status 0x%04x: %+v, want pass %v", tt.status, v, tt.pass)
			}
		})
	}
}

// statusSequence returns a reader that yields words in order, repeating the last
func statusSequence(words ...uint16) (func() (uint16, error), *int) {
	reads := 0
	return func() (uint16, error) {
		i := reads
		if i >= len(words) {
			i = len(words) - 1
		}
		reads++
		return words[i], nil
	}, &reads
}

func TestPollExhaustion(t *testing.T) {
	for _, retries := range []int{0, 1, 3, 7} {
		read, reads := statusSequence(0x0000)
		p := Poller{Retries: retries}
		polls, err := p.Poll(context.Background(), "tx0", read, Classify204C)
		var lnu errs.ErrLinkNotUp
		if !errors.As(err, &lnu) {
			t.Fatalf("retries %d: expected ErrLinkNotUp, got %v", retries, err)
		}
		if *reads != retries+1 || polls != retries+1 || lnu.Polls != retries+1 {
			t.Errorf("retries %d: %d reads, %d polls reported", retries, *reads, lnu.Polls)
		}
		if lnu.State != "Reset" {
			t.Errorf("last state = %q", lnu.State)
		}
	}
}

func TestPollStopsAtFirstPass(t *testing.T) {
	for k := 1; k <= 4; k++ {
		words := make([]uint16, k)
		for i := range words {
			words[i] = 0x0200
		}
		words[k-1] = 0x0600
		read, reads := statusSequence(words...)
		polls, err := Poller{Retries: 5}.Poll(context.Background(), "rx0", read, Classify204C)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if *reads != k || polls != k {
			t.Errorf("k=%d: %d reads", k, *reads)
		}
	}
}

func TestPollReadError(t *testing.T) {
	cause := errors.New("spi timeout")
	reads := 0
	read := func() (uint16, error) {
		reads++
		return 0, cause
	}
	_, err := Poller{Retries: 5}.Poll(context.Background(), "tx1", read, Classify204C)
	if !errors.Is(err, cause) || reads != 1 {
		t.Errorf("err = %v after %d reads", err, reads)
	}
}

func TestPollContextBound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	read, reads := statusSequence(0)
	_, err := Poller{Retries: 1000, Interval: time.Second}.Poll(ctx, "tx0", read, Classify204C)
	var lnu errs.ErrLinkNotUp
	if !errors.As(err, &lnu) {
		t.Fatalf("expected ErrLinkNotUp, got %v", err)
	}
	if *reads != 1 {
		t.Errorf("cancelled poll did %d reads", *reads)
	}
}
