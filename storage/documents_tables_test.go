package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"

	"tasksync/domain"
)

func TestTaskEntityRoundTrip(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	alarm := created.Add(time.Hour)
	task := domain.Task{
		ID:             "row-1",
		Text:           "Water plants",
		Completed:      true,
		Priority:       domain.PriorityHigh,
		AlarmTime:      &alarm,
		NotificationID: "n-9",
		CreatedAt:      created,
		UpdatedAt:      created.Add(time.Minute),
		Seq:            42,
	}

	data, err := json.Marshal(toEntity("u_abc", task))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"Seq@odata.type":"Edm.Int64"`) || !strings.Contains(string(data), `"Seq":"42"`) {
		t.Fatalf("expected typed Seq property, got %s", data)
	}

	got, err := fromEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != task.ID || got.Text != task.Text || !got.Completed || got.Priority != domain.PriorityHigh || got.Seq != 42 {
		t.Fatalf("unexpected task: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.AlarmTime == nil || !got.AlarmTime.Equal(alarm) || got.NotificationID != "n-9" {
		t.Fatalf("timestamps or alarm lost: %+v", got)
	}
}

func TestFromEntityDefaultsPriority(t *testing.T) {
	data := []byte(`{"PartitionKey":"global","RowKey":"r1","Text":"x","CreatedAt":"2024-01-01T00:00:00Z","UpdatedAt":"2024-01-01T00:00:00Z"}`)
	got, err := fromEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Priority != domain.PriorityMedium || got.AlarmTime != nil {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestPartitionKeys(t *testing.T) {
	if pk := partitionKey(domain.GlobalScope); pk != "global" {
		t.Fatalf("unexpected global key %q", pk)
	}
	if pk := partitionKey(domain.IdentityScope("a/b#c")); pk != "u_a_b_c" {
		t.Fatalf("unexpected identity key %q", pk)
	}
	if f := partitionFilter("u_o'neil"); f != "PartitionKey eq 'u_o''neil'" {
		t.Fatalf("unexpected filter %q", f)
	}
}

func TestTableErrorMapping(t *testing.T) {
	if err := tableError(fmt.Errorf("get: %w", &azcore.ResponseError{StatusCode: 404})); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	other := &azcore.ResponseError{StatusCode: 403}
	if err := tableError(other); errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("403 must not be mapped to not found")
	}
	if !isPreconditionFailed(&azcore.ResponseError{StatusCode: 412}) {
		t.Fatalf("expected 412 to be a precondition failure")
	}
	if !alreadyExists(&azcore.ResponseError{ErrorCode: "QueueAlreadyExists"}, "QueueAlreadyExists") {
		t.Fatalf("expected already-exists match")
	}
}

func TestEncodeCancelRequest(t *testing.T) {
	msg, err := encodeCancel("t1", "notif-7", time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var req notificationRequest
	if err := sonic.UnmarshalString(msg, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Action != "cancel" || req.NotificationID != "notif-7" || req.TaskID != "t1" || req.RequestedAt != 1700000000000 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseRedisOptions(t *testing.T) {
	opts := ParseRedisOptions("cache.example:6380,password=secret,ssl=true")
	if opts.Addr != "cache.example:6380" || opts.Password != "secret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options: %+v", opts)
	}
	opts = ParseRedisOptions("redis://localhost:6379/2")
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %+v", opts)
	}
}
