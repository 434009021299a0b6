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
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/model"
)

func TestDispatchTask_ShardsByAccount(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Queue: config.QueueConfig{DispatchQueue: "new:dispatch", NumberOfQueues: 4},
	})

	q := &Queue{}
	entry := &model.QueueEntry{
		EntryID:    "ent_1",
		AccountID:  "acc_1",
		ContactID:  "ctt_1",
		Channel:    model.ChannelEmail,
		Body:       "Hi there",
		Recipient:  "prospect@example.com",
		EnqueuedAt: time.Now(),
	}
	payload, err := json.Marshal(entry)
	assert.NoError(t, err)

	task := q.dispatchTask(entry, payload)
	assert.True(t, strings.HasPrefix(task.Type(), "new:dispatch_"))

	// same account always lands in the same queue
	other := *entry
	other.EntryID = "ent_2"
	again := q.dispatchTask(&other, payload)
	assert.Equal(t, task.Type(), again.Type())
}

func TestDispatchTask_DifferentAccountsSpread(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Queue: config.QueueConfig{DispatchQueue: "new:dispatch", NumberOfQueues: 4},
	})

	q := &Queue{}
	seen := make(map[string]bool)
	for _, accountID := range []string{"acc_1", "acc_2", "acc_3", "acc_4", "acc_5", "acc_6", "acc_7", "acc_8"} {
		entry := &model.QueueEntry{EntryID: "ent_" + accountID, AccountID: accountID}
		payload, _ := json.Marshal(entry)
		seen[q.dispatchTask(entry, payload).Type()] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestHashAccountID_Consistent(t *testing.T) {
	assert.Equal(t, hashAccountID("acc_1"), hashAccountID("acc_1"))
	assert.NotEqual(t, hashAccountID("acc_1"), hashAccountID("acc_2"))
}
