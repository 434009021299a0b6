/*
Copyright 2025 Outbound Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cadence

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/outboundlabs/cadence/model"
)

// ProcessDispatch transmits an admitted entry pulled from the dispatch
// queue. Admission already happened at dispatch time; this handler only
// delivers and logs. Returning an error lets asynq retry transient
// provider outages.
func (c *Cadence) ProcessDispatch(ctx context.Context, t *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "Process Dispatch From Redis Queue")
	defer span.End()

	var entry model.QueueEntry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		logrus.Error(err)
		return err
	}

	if err := c.SendMessage(ctx, &entry, true); err != nil {
		logrus.Infof("Entry %s pushed back for retry due to error: %v", entry.EntryID, err)
		return err
	}

	log.Println(" [*] Dispatch Processed", entry.EntryID)
	return nil
}
