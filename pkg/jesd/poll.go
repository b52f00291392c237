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
	"time"

	"github.com/cenkalti/backoff"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const (
	DefaultPollRetries  = 5
	DefaultPollInterval = 20 * time.Millisecond
)

var errNotYet = errors.New("status not passing yet")

// Poller reads a status word until it classifies as passing.
// Retries is the number of reads after the first one.
type Poller struct {
	Retries  int
	Interval time.Duration
}

func (p Poller) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.Retries > 0 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.Retries))
	}
	return backoff.WithContext(b, ctx)
}

// Poll returns the number of reads done. A read error stops polling
// immediately and is returned as is. Exhausting the retries gives
// errs.ErrLinkNotUp carrying the last observed state.
func (p Poller) Poll(ctx context.Context, name string, read func() (uint16, error), classify func(uint16) Verdict) (int, error) {
	polls := 0
	var last Verdict
	op := func() error {
		polls++
		status, err := read()
		if err != nil {
			return backoff.Permanent(err)
		}
		last = classify(status)
		if !last.Pass {
			log.Debug("Link %s: poll %d status 0x%04x (%s)", name, polls, status, last.State)
			return errNotYet
		}
		return nil
	}
	err := backoff.Retry(op, p.backOff(ctx))
	if err == nil {
		log.Debug("Link %s: passed after %d polls (%s)", name, polls, last.State)
		return polls, nil
	}
	if errors.Is(err, errNotYet) {
		return polls, errs.ErrLinkNotUp{Link: name, Polls: polls, State: last.State}
	}
	return polls, err
}
