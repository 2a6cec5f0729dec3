package cachify

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo implements DynamoAPI in memory, honoring the two conditional
// expressions the store uses.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	k, _ := item["k"].(*types.AttributeValueMemberS)
	if k == nil {
		return ""
	}
	return k.Value
}

func attrNumber(av types.AttributeValue) (int64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func (f *fakeDynamo) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(params.Item)
	if params.ConditionExpression != nil {
		// "attribute_not_exists(k) OR ea < :now"
		if existing, ok := f.items[key]; ok {
			now, _ := attrNumber(params.ExpressionAttributeValues[":now"])
			ea, _ := attrNumber(existing["ea"])
			if ea >= now {
				return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
			}
		}
	}
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(params.Key)
	if params.ConditionExpression != nil {
		// "tk = :token"
		existing, ok := f.items[key]
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("no item")}
		}
		want, _ := params.ExpressionAttributeValues[":token"].(*types.AttributeValueMemberS)
		held, _ := existing["tk"].(*types.AttributeValueMemberS)
		if want == nil || held == nil || held.Value != want.Value {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("token mismatch")}
		}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func newTestDynamoStore(t *testing.T) Store {
	t.Helper()
	store, err := newDynamoStore(context.Background(), StoreConfig{
		DynamoClient: newFakeDynamo(),
		DynamoTable:  "cachify",
	})
	if err != nil {
		t.Fatalf("new dynamo store failed: %v", err)
	}
	return store
}

func TestDynamoStoreSetGetDelete(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "alpha", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "hello" {
		t.Fatalf("get failed: ok=%v err=%v body=%q", ok, err, body)
	}
	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "alpha"); ok {
		t.Fatalf("expected deleted key to be missing")
	}
}

func TestDynamoStoreLazyExpiry(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, "ttl-key", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected logical expiry: ok=%v err=%v", ok, err)
	}
}

func TestDynamoStoreTryAcquireIsExclusive(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()

	acquired, err := store.TryAcquire(ctx, "lock", "one", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first acquire failed: acquired=%v err=%v", acquired, err)
	}
	acquired, err = store.TryAcquire(ctx, "lock", "two", time.Minute)
	if err != nil || acquired {
		t.Fatalf("expected contention: acquired=%v err=%v", acquired, err)
	}
}

func TestDynamoStoreExpiredLockIsReclaimed(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()
	if _, err := store.TryAcquire(ctx, "lock", "one", 20*time.Millisecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	acquired, err := store.TryAcquire(ctx, "lock", "two", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected expired lock reclaim: acquired=%v err=%v", acquired, err)
	}
}

func TestDynamoStoreReleaseChecksToken(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()
	if _, err := store.TryAcquire(ctx, "lock", "one", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	released, err := store.Release(ctx, "lock", "wrong")
	if err != nil || released {
		t.Fatalf("foreign token released the lock: released=%v err=%v", released, err)
	}
	released, err = store.Release(ctx, "lock", "one")
	if err != nil || !released {
		t.Fatalf("owner release failed: released=%v err=%v", released, err)
	}
	if released, _ := store.Release(ctx, "lock", "one"); released {
		t.Fatalf("expected released=false on absent key")
	}
}

func TestDynamoStoreDriver(t *testing.T) {
	if got := newTestDynamoStore(t).Driver(); got != DriverDynamo {
		t.Fatalf("unexpected driver %q", got)
	}
}
