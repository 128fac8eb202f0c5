package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shaiso/Callflow/internal/domain"
)

// DynamoAPI — подмножество клиента DynamoDB, которым пользуется DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoOptions — параметры DynamoStore.
type DynamoOptions struct {
	// Region — регион AWS (по умолчанию us-east-2).
	Region string

	// Endpoint — переопределение адреса (DynamoDB Local).
	Endpoint string

	// TasksTable — таблица tasks (ключ task_id).
	TasksTable string

	// RunsTable — таблица runs (ключ run_id).
	RunsTable string

	// RunIndex — GSI таблицы tasks по run_id.
	RunIndex string
}

func (o *DynamoOptions) withDefaults() {
	if o.Region == "" {
		o.Region = "us-east-2"
	}
	if o.TasksTable == "" {
		o.TasksTable = "callflow_tasks"
	}
	if o.RunsTable == "" {
		o.RunsTable = "callflow_runs"
	}
	if o.RunIndex == "" {
		o.RunIndex = "run_id-index"
	}
}

// DynamoStore — TaskStore поверх DynamoDB.
//
// CAS статуса выполняется через ConditionExpression; проигранное
// условие (ConditionalCheckFailedException) — не ошибка, а false.
type DynamoStore struct {
	db   DynamoAPI
	opts DynamoOptions
	now  func() time.Time
}

var _ TaskStore = (*DynamoStore)(nil)

// dynamoTask — представление task в DynamoDB.
type dynamoTask struct {
	TaskID            string         `dynamodbav:"task_id"`
	RunID             string         `dynamodbav:"run_id,omitempty"`
	AgentID           string         `dynamodbav:"agent_id,omitempty"`
	Status            string         `dynamodbav:"status"`
	RetryAttempt      int            `dynamodbav:"retry_attempt"`
	Input             map[string]any `dynamodbav:"input,omitempty"`
	Output            map[string]any `dynamodbav:"output,omitempty"`
	Provider          string         `dynamodbav:"provider,omitempty"`
	LastFailureReason string         `dynamodbav:"last_failure_reason,omitempty"`
	ScheduledAt       *time.Time     `dynamodbav:"scheduled_at,omitempty"`
	CreatedAt         time.Time      `dynamodbav:"created_at"`
	UpdatedAt         time.Time      `dynamodbav:"updated_at"`
}

// NewDynamoStore создаёт клиент DynamoDB из стандартной цепочки конфигурации AWS.
func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	opts.withDefaults()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return NewDynamoStoreFromClient(client, opts), nil
}

// NewDynamoStoreFromClient оборачивает готовый клиент.
func NewDynamoStoreFromClient(db DynamoAPI, opts DynamoOptions) *DynamoStore {
	opts.withDefaults()
	return &DynamoStore{
		db:   db,
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoStore) taskKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"task_id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.opts.TasksTable),
		Key:            s.taskKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoTask
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return item.toDomain(), nil
}

func (s *DynamoStore) Create(ctx context.Context, task *domain.Task) error {
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	task.UpdatedAt = task.CreatedAt

	item, err := attributevalue.MarshalMap(fromDomain(task))
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.opts.TasksTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(task_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, id string, u domain.TaskUpdate) error {
	sets := []string{"#st = :st", "updated_at = :u"}
	var removes []string
	values := map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: string(u.Status)},
		":u":  &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
	}

	if u.Output != nil {
		av, err := attributevalue.Marshal(u.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		sets = append(sets, "#out = :out")
		values[":out"] = av
	}
	if u.Provider != nil {
		sets = append(sets, "provider = :prov")
		values[":prov"] = &types.AttributeValueMemberS{Value: *u.Provider}
	}
	if u.LastFailureReason != nil {
		sets = append(sets, "last_failure_reason = :lfr")
		values[":lfr"] = &types.AttributeValueMemberS{Value: *u.LastFailureReason}
	}
	if u.RetryAttempt != nil {
		sets = append(sets, "retry_attempt = :ra")
		values[":ra"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *u.RetryAttempt)}
	}
	switch {
	case u.ClearScheduledAt:
		removes = append(removes, "scheduled_at")
	case u.ScheduledAt != nil:
		sets = append(sets, "scheduled_at = :sa")
		values[":sa"] = &types.AttributeValueMemberS{Value: u.ScheduledAt.UTC().Format(time.RFC3339Nano)}
	}

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	names := map[string]string{"#st": "status"}
	if u.Output != nil {
		names["#out"] = "output"
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.opts.TasksTable),
		Key:                       s.taskKey(id),
		ConditionExpression:       aws.String("attribute_exists(task_id)"),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *DynamoStore) UpdateStatusAtomic(ctx context.Context, id string, from, to domain.TaskStatus) (bool, error) {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.opts.TasksTable),
		Key:                 s.taskKey(id),
		ConditionExpression: aws.String("#st = :from"),
		UpdateExpression:    aws.String("SET #st = :to, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":u":    &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		// Условие не выполнено — task уже в другом статусе.
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("update task status atomic: %w", err)
	}
	return true, nil
}

func (s *DynamoStore) CheckAndUpdateRunStatus(ctx context.Context, runID string) (domain.RunStatus, bool, error) {
	if runID == "" {
		return "", false, nil
	}

	var total, completed, failed int
	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:              aws.String(s.opts.TasksTable),
		IndexName:              aws.String(s.opts.RunIndex),
		KeyConditionExpression: aws.String("run_id = :rid"),
		ProjectionExpression:   aws.String("#st"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: runID},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", false, fmt.Errorf("query run tasks: %w", err)
		}
		for _, item := range page.Items {
			total++
			st, ok := item["status"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			switch domain.TaskStatus(st.Value) {
			case domain.TaskStatusCompleted:
				completed++
			case domain.TaskStatusFailed:
				failed++
			}
		}
	}

	status, final := domain.RollupRunStatus(total, completed, failed)
	if !final {
		return "", false, nil
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.opts.RunsTable),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
		ConditionExpression: aws.String("attribute_not_exists(#st) OR NOT (#st IN (:c, :f, :p))"),
		UpdateExpression:    aws.String("SET #st = :st, finished_at = :fa"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(status)},
			":fa": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
			":c":  &types.AttributeValueMemberS{Value: string(domain.RunStatusCompleted)},
			":f":  &types.AttributeValueMemberS{Value: string(domain.RunStatusFailed)},
			":p":  &types.AttributeValueMemberS{Value: string(domain.RunStatusPartiallyCompleted)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("update run status: %w", err)
	}
	return status, true, nil
}

// --- Helpers ---

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

func fromDomain(t *domain.Task) dynamoTask {
	return dynamoTask{
		TaskID:            t.ID,
		RunID:             t.RunID,
		AgentID:           t.AgentID,
		Status:            string(t.Status),
		RetryAttempt:      t.RetryAttempt,
		Input:             t.Input,
		Output:            t.Output,
		Provider:          t.Provider,
		LastFailureReason: t.LastFailureReason,
		ScheduledAt:       t.ScheduledAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func (d dynamoTask) toDomain() *domain.Task {
	return &domain.Task{
		ID:                d.TaskID,
		RunID:             d.RunID,
		AgentID:           d.AgentID,
		Status:            domain.TaskStatus(d.Status),
		RetryAttempt:      d.RetryAttempt,
		Input:             d.Input,
		Output:            d.Output,
		Provider:          d.Provider,
		LastFailureReason: d.LastFailureReason,
		ScheduledAt:       d.ScheduledAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
