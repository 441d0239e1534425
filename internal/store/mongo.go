package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seantiz/scaleprobe/internal/model"
)

const (
	tasksCollection = "tasks"
	mongoPoolSize   = 100
	mongoOpTimeout  = 10 * time.Second
)

var _ Store = (*MongoStore)(nil)

// MongoStore implements Store on a MongoDB collection. Several instances
// behind a load balancer can share one history this way.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

type taskDoc struct {
	ID         string     `bson:"_id"`
	Kind       string     `bson:"kind"`
	Status     string     `bson:"status"`
	Isolation  string     `bson:"isolation"`
	InstanceID string     `bson:"instance_id"`
	Seconds    int        `bson:"seconds"`
	TimeoutMS  int64      `bson:"timeout_ms"`
	DurationMS *int64     `bson:"duration_ms,omitempty"`
	Error      string     `bson:"error"`
	CreatedAt  time.Time  `bson:"created_at"`
	FinishedAt *time.Time `bson:"finished_at,omitempty"`
}

func toDoc(t *model.Task) taskDoc {
	return taskDoc{
		ID:         t.ID,
		Kind:       t.Kind,
		Status:     t.Status,
		Isolation:  t.Isolation,
		InstanceID: t.InstanceID,
		Seconds:    t.Seconds,
		TimeoutMS:  t.TimeoutMS,
		DurationMS: t.DurationMS,
		Error:      t.Error,
		CreatedAt:  t.CreatedAt.UTC(),
		FinishedAt: t.FinishedAt,
	}
}

func (d taskDoc) task() *model.Task {
	t := &model.Task{
		ID:         d.ID,
		Kind:       d.Kind,
		Status:     d.Status,
		Isolation:  d.Isolation,
		InstanceID: d.InstanceID,
		Seconds:    d.Seconds,
		TimeoutMS:  d.TimeoutMS,
		DurationMS: d.DurationMS,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.FinishedAt != nil {
		f := d.FinishedAt.UTC()
		t.FinishedAt = &f
	}
	return t
}

// NewMongoStore connects to uri, verifies the connection and ensures the
// indexes used by listing and stats exist.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(mongoPoolSize),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	tasks := client.Database(database).Collection(tasksCollection)
	_, err = tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("created_at_-1_id_-1"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_1"),
		},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return &MongoStore{client: client, tasks: tasks}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateTask inserts a new task document.
func (s *MongoStore) CreateTask(ctx context.Context, t *model.Task) error {
	if _, err := s.tasks.InsertOne(ctx, toDoc(t)); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *MongoStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var d taskDoc
	err := s.tasks.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return d.task(), nil
}

// ListTasks returns a page of tasks, newest first, and the total count.
func (s *MongoStore) ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error) {
	total, err := s.tasks.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.tasks.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*model.Task
	for cursor.Next(ctx) {
		var d taskDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, 0, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, d.task())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, int(total), nil
}

// FinishTask moves a running task to a terminal status. The update only
// matches a running document, so two finishers cannot both win.
func (s *MongoStore) FinishTask(ctx context.Context, id string, f Finish) error {
	if !model.ValidTransition(model.StatusRunning, f.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, model.StatusRunning, f.Status)
	}

	set := bson.D{
		{Key: "status", Value: f.Status},
		{Key: "error", Value: f.Error},
		{Key: "finished_at", Value: f.FinishedAt.UTC()},
	}
	if f.DurationMS != nil {
		set = append(set, bson.E{Key: "duration_ms", Value: *f.DurationMS})
	}

	res, err := s.tasks.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "status", Value: model.StatusRunning}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, f.Status)
}

// GetTaskStats returns totals grouped by status and isolation mode, and the
// average duration of completed tasks.
func (s *MongoStore) GetTaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{
		CountByStatus:    make(map[string]int),
		CountByIsolation: make(map[string]int),
	}

	if err := s.countBy(ctx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "isolation", stats.CountByIsolation); err != nil {
		return nil, err
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	cursor, err := s.tasks.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "status", Value: model.StatusCompleted},
			{Key: "duration_ms", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$duration_ms"}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Avg float64 `bson:"avg"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if len(rows) == 1 {
		stats.AvgDurationMS = rows[0].Avg
	}

	return stats, nil
}

func (s *MongoStore) countBy(ctx context.Context, field string, dst map[string]int) error {
	cursor, err := s.tasks.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return fmt.Errorf("count by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Key string `bson:"_id"`
		N   int    `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return fmt.Errorf("scan %s counts: %w", field, err)
	}
	for _, r := range rows {
		dst[r.Key] = r.N
	}
	return nil
}
