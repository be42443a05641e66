package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// taskEnvelope is the structure stored in Badger for each queued task.
type taskEnvelope struct {
	ID         string           `json:"id"`
	Queue      models.QueueName `json:"queue"`
	Task       models.Task      `json:"task"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	VisibleAt  time.Time        `json:"visible_at"`
	Attempts   int              `json:"attempts"`
}

// Broker implements interfaces.TaskQueue on the shared Badger instance.
//
// Each logical queue keeps the task body at task:{queue}:msg:{id} and a
// visibility index at task:{queue}:index:{visibleAt}:{id}. The index key
// embeds the zero-padded nanosecond timestamp so iteration order is
// delivery order. Receiving a task moves its index key forward by the
// visibility timeout plus retry backoff; acking deletes both keys. Tasks
// that exhaust max attempts move to task:{queue}:dead:{id}.
type Broker struct {
	db                *badgerdb.DB
	logger            arbor.ILogger
	visibilityTimeout time.Duration
	maxAttempts       int
}

// NewBroker creates a task broker over an existing Badger connection.
func NewBroker(db *badgerdb.DB, logger arbor.ILogger, visibilityTimeout time.Duration, maxAttempts int) *Broker {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Broker{
		db:                db,
		logger:            logger,
		visibilityTimeout: visibilityTimeout,
		maxAttempts:       maxAttempts,
	}
}

// Enqueue adds a task to the given queue, immediately visible.
func (b *Broker) Enqueue(ctx context.Context, queue models.QueueName, task models.Task) error {
	env := taskEnvelope{
		ID:         uuid.New().String(),
		Queue:      queue,
		Task:       task,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(msgKey(queue, env.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(queue, env.VisibleAt, env.ID), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	b.logger.Debug().
		Str("queue", string(queue)).
		Str("task_type", string(task.Type)).
		Str("company_id", task.CompanyID).
		Msg("Task enqueued")
	return nil
}

// Receive claims the next visible task. The returned AckFunc deletes the
// task; an unacked task reappears after the visibility timeout with
// exponential backoff, or is dead-lettered past max attempts.
func (b *Broker) Receive(ctx context.Context, queue models.QueueName) (*models.Task, interfaces.AckFunc, error) {
	var claimed taskEnvelope

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := indexPrefix(queue)
		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := append([]byte(nil), it.Item().Key()...)
			visibleAt, id, err := parseIndexKey(queue, key)
			if err != nil {
				continue
			}
			if visibleAt.After(now) {
				// Index keys sort by timestamp, nothing later is ready
				break
			}

			item, err := txn.Get(msgKey(queue, id))
			if err == badgerdb.ErrKeyNotFound {
				// Orphaned index entry, clean it up
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}

			var env taskEnvelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			if env.Attempts >= b.maxAttempts {
				if err := b.deadLetter(txn, queue, key, &env); err != nil {
					return err
				}
				continue
			}

			env.Attempts++
			delay := b.visibilityTimeout
			if env.Attempts > 1 {
				delay += BackoffDelay(env.Attempts - 1)
			}
			env.VisibleAt = now.Add(delay)

			data, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(queue, env.ID), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(indexKey(queue, env.VisibleAt, env.ID), []byte{}); err != nil {
				return err
			}

			claimed = env
			return nil
		}
		return models.ErrNoTask
	})
	if err != nil {
		return nil, nil, err
	}

	ack := func() error {
		return b.delete(queue, claimed.ID)
	}
	return &claimed.Task, ack, nil
}

// Len returns the number of tasks in a queue, visible or in flight.
func (b *Broker) Len(ctx context.Context, queue models.QueueName) (int, error) {
	count := 0
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := msgPrefix(queue)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue %s: %w", queue, err)
	}
	return count, nil
}

// PurgeCompany removes every pending task for a company across all queues.
// Called on cancel, rescan, and delete so stale work cannot resurrect a job.
func (b *Broker) PurgeCompany(ctx context.Context, companyID string) error {
	queues := []models.QueueName{models.QueueCrawl, models.QueueExtract, models.QueueAnalyze}
	purged := 0

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		for _, queue := range queues {
			opts := badgerdb.DefaultIteratorOptions
			it := txn.NewIterator(opts)

			prefix := msgPrefix(queue)
			var victims []taskEnvelope
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var env taskEnvelope
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &env)
				}); err != nil {
					continue
				}
				if env.Task.CompanyID == companyID {
					victims = append(victims, env)
				}
			}
			it.Close()

			for _, env := range victims {
				if err := txn.Delete(msgKey(queue, env.ID)); err != nil {
					return err
				}
				if err := txn.Delete(indexKey(queue, env.VisibleAt, env.ID)); err != nil && err != badgerdb.ErrKeyNotFound {
					return err
				}
				purged++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge tasks for company %s: %w", companyID, err)
	}

	if purged > 0 {
		b.logger.Info().Str("company_id", companyID).Int("purged", purged).Msg("Purged queued tasks")
	}
	return nil
}

func (b *Broker) delete(queue models.QueueName, id string) error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(msgKey(queue, id))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Already acked or purged
		}
		if err != nil {
			return err
		}
		var env taskEnvelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}
		if err := txn.Delete(indexKey(queue, env.VisibleAt, env.ID)); err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Delete(msgKey(queue, id))
	})
}

// deadLetter moves an exhausted task out of the delivery path, keeping the
// body for inspection.
func (b *Broker) deadLetter(txn *badgerdb.Txn, queue models.QueueName, idxKey []byte, env *taskEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := txn.Set(deadKey(queue, env.ID), data); err != nil {
		return err
	}
	if err := txn.Delete(idxKey); err != nil {
		return err
	}
	if err := txn.Delete(msgKey(queue, env.ID)); err != nil {
		return err
	}
	b.logger.Warn().
		Str("queue", string(queue)).
		Str("task_type", string(env.Task.Type)).
		Str("company_id", env.Task.CompanyID).
		Int("attempts", env.Attempts).
		Msg("Task dead-lettered after max attempts")
	return nil
}

// Key scheme helpers. Timestamps are zero-padded so byte order matches
// time order.

func msgKey(queue models.QueueName, id string) []byte {
	return []byte(fmt.Sprintf("task:%s:msg:%s", queue, id))
}

func msgPrefix(queue models.QueueName) []byte {
	return []byte(fmt.Sprintf("task:%s:msg:", queue))
}

func indexKey(queue models.QueueName, visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("task:%s:index:%020d:%s", queue, visibleAt.UnixNano(), id))
}

func indexPrefix(queue models.QueueName) []byte {
	return []byte(fmt.Sprintf("task:%s:index:", queue))
}

func deadKey(queue models.QueueName, id string) []byte {
	return []byte(fmt.Sprintf("task:%s:dead:%s", queue, id))
}

func parseIndexKey(queue models.QueueName, key []byte) (time.Time, string, error) {
	prefix := indexPrefix(queue)
	suffix := string(key[len(prefix):])
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("malformed index key %q", key)
	}
	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
