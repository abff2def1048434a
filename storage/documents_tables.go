package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"tasksync/domain"
)

const edmInt64 = "Edm.Int64"

// TableDocuments stores tasks in an Azure table. The partition key is derived
// from the scope, the row key is the task id.
type TableDocuments struct {
	table *aztables.Client
	newID func() string
}

// NewTableDocuments creates a table backed document store from the given connection string.
func NewTableDocuments(connStr, tasksTable string) (*TableDocuments, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableDocuments{table: svc.NewClient(tasksTable), newID: uuid.NewString}, nil
}

type tableKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	tableKeys
	Text           string `json:"Text"`
	Completed      bool   `json:"Completed"`
	Priority       string `json:"Priority"`
	AlarmTime      string `json:"AlarmTime,omitempty"`
	NotificationID string `json:"NotificationId,omitempty"`
	CreatedAt      string `json:"CreatedAt"`
	UpdatedAt      string `json:"UpdatedAt"`
	Seq            int64  `json:"Seq,string"`
	SeqType        string `json:"Seq@odata.type"`
}

// partitionKey avoids the characters table keys reject ('/', '\', '#', '?').
func partitionKey(scope domain.Scope) string {
	if scope.IsGlobal() {
		return "global"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "#", "_", "?", "_")
	return "u_" + r.Replace(scope.Identity)
}

func partitionFilter(pk string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(pk, "'", "''") + "'"
}

func toEntity(pk string, t domain.Task) taskEntity {
	ent := taskEntity{
		tableKeys:      tableKeys{PartitionKey: pk, RowKey: t.ID},
		Text:           t.Text,
		Completed:      t.Completed,
		Priority:       string(t.Priority),
		NotificationID: t.NotificationID,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Seq:            t.Seq,
		SeqType:        edmInt64,
	}
	if t.AlarmTime != nil {
		ent.AlarmTime = t.AlarmTime.UTC().Format(time.RFC3339Nano)
	}
	return ent
}

func fromEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:             ent.RowKey,
		Text:           ent.Text,
		Completed:      ent.Completed,
		Priority:       domain.Priority(ent.Priority),
		NotificationID: ent.NotificationID,
		Seq:            ent.Seq,
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, ent.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, ent.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if ent.AlarmTime != "" {
		at, err := time.Parse(time.RFC3339Nano, ent.AlarmTime)
		if err != nil {
			return domain.Task{}, err
		}
		t.AlarmTime = &at
	}
	return t, nil
}

func tableError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}

func isPreconditionFailed(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusPreconditionFailed
}

func (d *TableDocuments) Insert(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error) {
	task := domain.NewTask(d.newID(), in, now)
	task.Seq = now.UnixNano()
	payload, err := json.Marshal(toEntity(partitionKey(scope), task))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := d.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// List retrieves all tasks of the scope.
func (d *TableDocuments) List(ctx context.Context, scope domain.Scope) ([]domain.Task, error) {
	filter := partitionFilter(partitionKey(scope))
	pager := d.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := fromEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	domain.SortNewestFirst(tasks)
	return tasks, nil
}

// Update replaces the entity with the patched task, guarded by its ETag.
func (d *TableDocuments) Update(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error {
	pk := partitionKey(scope)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		resp, err := d.table.GetEntity(ctx, pk, id, nil)
		if err != nil {
			return tableError(err)
		}
		cur, err := fromEntity(resp.Value)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(toEntity(pk, domain.ApplyPatch(cur, patch, now)))
		if err != nil {
			return err
		}
		etag := resp.ETag
		_, err = d.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err == nil {
			return nil
		}
		if !isPreconditionFailed(err) {
			return tableError(err)
		}
	}
	return errors.New("task " + id + " kept changing during update")
}

func (d *TableDocuments) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if _, err := d.table.DeleteEntity(ctx, partitionKey(scope), id, nil); err != nil {
		return tableError(err)
	}
	return nil
}
