package redis

import "time"

// Redis key naming conventions for warrant data.
// All keys are prefixed with "warrant:" to avoid collisions; queue-scoped
// keys carry the queue name so one Redis can serve several queues.

const keyPrefix = "warrant:"

// taskKey returns the Hash key for a task body: warrant:{queue}:task:{id}
func taskKey(queue, id string) string { return keyPrefix + queue + ":task:" + id }

// taskIDsKey returns the Set key tracking outstanding task ids.
func taskIDsKey(queue string) string { return keyPrefix + queue + ":task_ids" }

// candidatesKey returns the Sorted Set key ordering claim candidates.
func candidatesKey(queue string) string { return keyPrefix + queue + ":candidates" }

// leaseKey returns the key for a task's lease record (the active-lease
// marker): warrant:{queue}:lease:{id}
func leaseKey(queue, id string) string { return keyPrefix + queue + ":lease:" + id }

// resultKey returns the key for a completed task's result.
func resultKey(queue, id string) string { return keyPrefix + queue + ":result:" + id }

// candidateScore computes the Sorted Set score for a candidate: lower
// scores are claimed first, so higher priority ranks map to smaller
// bands and age breaks ties within a band.
func candidateScore(rank int, queuedAt time.Time) float64 {
	const band = 1e13 // wider than any unix-milli timestamp
	return float64(3-rank)*band + float64(queuedAt.UnixMilli())
}
