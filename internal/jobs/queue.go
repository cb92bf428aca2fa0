package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// Queue dispatches job IDs onto a Redis Stream consumer group, the Go
// analogue of the original's Celery broker routing (spec §4.8 step 4:
// "Enqueue a dispatch message keyed by job_id, routed to the
// conversion queue"). Using a stream instead of a plain list buys
// at-least-once delivery: a message is only removed from the pending
// list once a worker XACKs it, so a worker crash before ack makes it
// visible to XCLAIM/XAUTOCLAIM again.
type Queue struct {
	rdb    *redis.Client
	stream string
	group  string
}

const consumerGroupName = "geoconvert-workers"

func NewQueue(rdb *redis.Client, stream string) *Queue {
	return &Queue{rdb: rdb, stream: stream, group: consumerGroupName}
}

// EnsureGroup creates the consumer group if it does not already exist;
// call once at worker-fleet startup.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: creating consumer group on %s", q.stream)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Enqueue publishes jobID as a new stream entry.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"job_id": jobID},
	}).Err()
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: enqueueing job %s", jobID)
	}
	return nil
}

// Delivery is one unacknowledged stream message handed to a worker.
type Delivery struct {
	MessageID string
	JobID     string
}

// Pull reads at most one new message for consumerName (spec §4.8:
// "each worker pulls at most one job at a time, no prefetch beyond
// 1"), blocking up to blockFor if the stream is empty.
func (q *Queue) Pull(ctx context.Context, consumerName string, blockFor time.Duration) (*Delivery, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    blockFor,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: reading from %s", q.stream)
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			jobID, _ := msg.Values["job_id"].(string)
			return &Delivery{MessageID: msg.ID, JobID: jobID}, nil
		}
	}
	return nil, nil
}

// Ack acknowledges a message only after the job's terminal transition
// (success/failed) commits, so a crash beforehand leaves the message
// pending and eligible for Reclaim.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	if err := q.rdb.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: acking %s", messageID)
	}
	return nil
}

// Reclaim claims pending messages idle longer than minIdle, surfacing
// jobs whose worker crashed before acking (spec §4.8's implicit
// recovery requirement, since "crash before ack re-queues the job").
func (q *Queue) Reclaim(ctx context.Context, consumerName string, minIdle time.Duration) ([]Delivery, error) {
	claimed, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumerName,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: reclaiming from %s", q.stream)
	}
	out := make([]Delivery, 0, len(claimed))
	for _, msg := range claimed {
		jobID, _ := msg.Values["job_id"].(string)
		out = append(out, Delivery{MessageID: msg.ID, JobID: jobID})
	}
	return out, nil
}
