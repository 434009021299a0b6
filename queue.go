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
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"

	"github.com/outboundlabs/cadence/config"
	redis_db "github.com/outboundlabs/cadence/internal/redis-db"
	"github.com/outboundlabs/cadence/model"
)

// Queue hands admitted entries to the dispatch workers over Redis.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes the dispatch queue from the configured Redis
// instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueDispatch queues an admitted entry for transmission. Entries
// are sharded across dispatch queues by account so all of one account's
// messages transmit serially from the same queue.
func (q *Queue) EnqueueDispatch(ctx context.Context, entry *model.QueueEntry) error {
	ctx, span := tracer.Start(ctx, "Adding Entry To Dispatch Queue")
	defer span.End()

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, q.dispatchTask(entry, payload), asynq.MaxRetry(5))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued dispatch: %+v", entry.EntryID)
	return nil
}

// dispatchTask builds the task for an entry, assigned to a queue picked
// by hashing the account ID.
func (q *Queue) dispatchTask(entry *model.QueueEntry, payload []byte) *asynq.Task {
	cnf, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config: %v", err)
		queueName := "new:dispatch_1"
		return asynq.NewTask(queueName, payload, asynq.TaskID(entry.EntryID), asynq.Queue(queueName))
	}
	queueIndex := hashAccountID(entry.AccountID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.DispatchQueue, queueIndex+1)

	return asynq.NewTask(queueName, payload, asynq.TaskID(entry.EntryID), asynq.Queue(queueName))
}

// hashAccountID returns a consistent hash value for an account ID.
func hashAccountID(accountID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(accountID))
	return int(hasher.Sum32())
}

// GetDispatchFromQueue retrieves a queued dispatch by entry ID, or nil
// when it is in no queue.
func (q *Queue) GetDispatchFromQueue(entryID string) (*model.QueueEntry, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.DispatchQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, entryID)
		if err == nil && task != nil {
			var entry model.QueueEntry
			if err := json.Unmarshal(task.Payload, &entry); err != nil {
				return nil, err
			}
			return &entry, nil
		}
	}
	return nil, nil
}
