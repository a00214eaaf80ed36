package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/task"
)

type taskDoc struct {
	ID             string     `bson:"_id"`
	Queue          string     `bson:"queue"`
	Payload        []byte     `bson:"payload"`
	Priority       string     `bson:"priority"`
	PriorityRank   int        `bson:"priority_rank"`
	Status         string     `bson:"status"`
	WorkerID       string     `bson:"worker_id,omitempty"`
	ClaimedAt      *time.Time `bson:"claimed_at,omitempty"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at,omitempty"`
	QueuedAt       time.Time  `bson:"queued_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

// PutTask inserts a task document. The id must not already exist.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	doc := taskDoc{
		ID:           t.ID.String(),
		Queue:        s.queue,
		Payload:      []byte(t.Payload),
		Priority:     string(t.Priority),
		PriorityRank: t.Priority.Rank(),
		Status:       string(t.Status),
		QueuedAt:     t.QueuedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return warrant.ErrTaskExists
		}
		return fmt.Errorf("warrant/mongo: put task: %w", err)
	}
	return nil
}

// GetTask fetches a task document by id.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var doc taskDoc
	err := s.tasks.FindOne(ctx, bson.M{
		"_id":   taskID.String(),
		"queue": s.queue,
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, warrant.ErrTaskNotFound
		}
		return nil, fmt.Errorf("warrant/mongo: get task: %w", err)
	}
	return taskFromDoc(&doc)
}

// DeleteTask removes a task document. Deleting an absent task is a no-op.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	_, err := s.tasks.DeleteOne(ctx, bson.M{
		"_id":   taskID.String(),
		"queue": s.queue,
	})
	if err != nil {
		return fmt.Errorf("warrant/mongo: delete task: %w", err)
	}
	return nil
}

// ListTasks returns all outstanding tasks in candidate order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	cur, err := s.tasks.Find(ctx,
		bson.M{"queue": s.queue},
		options.Find().SetSort(bson.D{
			{Key: "priority_rank", Value: -1},
			{Key: "queued_at", Value: 1},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/mongo: list tasks: %w", err)
	}
	defer cur.Close(ctx)

	var tasks []*task.Task
	for cur.Next(ctx) {
		var doc taskDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("warrant/mongo: list tasks: %w", err)
		}
		t, err := taskFromDoc(&doc)
		if err != nil {
			return nil, fmt.Errorf("warrant/mongo: list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("warrant/mongo: list tasks: %w", err)
	}
	return tasks, nil
}

// IndexAdd is a no-op: the tasks collection is its own index.
func (s *Store) IndexAdd(ctx context.Context, t *task.Task) error { return nil }

// IndexRemove is a no-op for the same reason.
func (s *Store) IndexRemove(ctx context.Context, taskID id.TaskID) error { return nil }

// IndexList returns claimable candidate ids ordered by priority then age.
// Expired leases are treated as claimable.
func (s *Store) IndexList(ctx context.Context, limit int) ([]id.TaskID, error) {
	filter := bson.M{
		"queue": s.queue,
		"$or": bson.A{
			bson.M{"status": string(task.StatusPending)},
			bson.M{
				"status":           string(task.StatusClaimed),
				"lease_expires_at": bson.M{"$lt": time.Now().UTC()},
			},
		},
	}
	opts := options.Find().
		SetSort(bson.D{
			{Key: "priority_rank", Value: -1},
			{Key: "queued_at", Value: 1},
		}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("warrant/mongo: index list: %w", err)
	}
	defer cur.Close(ctx)

	var ids []id.TaskID
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("warrant/mongo: index list: %w", err)
		}
		taskID, err := id.ParseTaskID(doc.ID)
		if err != nil {
			continue
		}
		ids = append(ids, taskID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("warrant/mongo: index list: %w", err)
	}
	return ids, nil
}

func taskFromDoc(doc *taskDoc) (*task.Task, error) {
	taskID, err := id.ParseTaskID(doc.ID)
	if err != nil {
		return nil, err
	}
	return &task.Task{
		ID:        taskID,
		Payload:   doc.Payload,
		Priority:  task.Priority(doc.Priority),
		Status:    task.Status(doc.Status),
		QueuedAt:  doc.QueuedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}
