package repository

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo understands the handful of expressions the repositories send.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "|" + key["SK"].(*types.AttributeValueMemberS).Value
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k := keyOf(in.Item)
	if aws.ToString(in.ConditionExpression) == "attribute_not_exists(PK)" {
		if _, exists := f.items[k]; exists {
			return nil, conditionFailed()
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k := keyOf(in.Key)
	if aws.ToString(in.ConditionExpression) == "otp = :otp" {
		item, exists := f.items[k]
		if !exists {
			return nil, conditionFailed()
		}
		stored, _ := item["otp"].(*types.AttributeValueMemberS)
		want := in.ExpressionAttributeValues[":otp"].(*types.AttributeValueMemberS)
		if stored == nil || stored.Value != want.Value {
			return nil, conditionFailed()
		}
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(in.UpdateExpression) != "ADD seq :one" {
		return nil, errors.New("fakeDynamo: unsupported update expression")
	}
	k := keyOf(in.Key)
	item, exists := f.items[k]
	if !exists {
		item = map[string]types.AttributeValue{"PK": in.Key["PK"], "SK": in.Key["SK"]}
	}
	var seq int64
	if n, ok := item["seq"].(*types.AttributeValueMemberN); ok {
		seq, _ = strconv.ParseInt(n.Value, 10, 64)
	}
	seq++
	item["seq"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)}
	f.items[k] = item
	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"seq": item["seq"]},
	}, nil
}

func TestDynamoUserRepository_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoUserRepository(newFakeDynamo(), "MobileAuthTable", testLogger())

	missing, err := repo.GetByMobileNumber(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, created, err := repo.GetOrCreate(ctx, "+919876543210")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), first.ID)

	again, created, err := repo.GetOrCreate(ctx, "+919876543210")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "+919876543210", again.MobileNumber)

	other, created, err := repo.GetOrCreate(ctx, "+14155550100")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(2), other.ID)
}

func TestDynamoUserRepository_LostRaceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	repo := NewDynamoUserRepository(client, "MobileAuthTable", testLogger())

	winner, _, err := repo.GetOrCreate(ctx, "+919876543210")
	require.NoError(t, err)

	// Simulate a writer that passed the initial read before the winner's put landed.
	loser := &racingDynamo{fakeDynamo: client, hideUsersOnce: true}
	user, created, err := NewDynamoUserRepository(loser, "MobileAuthTable", testLogger()).GetOrCreate(ctx, "+919876543210")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, user.ID)
}

type racingDynamo struct {
	*fakeDynamo
	hideUsersOnce bool
}

func (r *racingDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if r.hideUsersOnce {
		r.hideUsersOnce = false
		return &dynamodb.GetItemOutput{}, nil
	}
	return r.fakeDynamo.GetItem(ctx, in, opts...)
}

func TestDynamoUserRepository_Errors(t *testing.T) {
	client := newFakeDynamo()
	client.err = errors.New("connection refused")
	repo := NewDynamoUserRepository(client, "MobileAuthTable", testLogger())

	_, _, err := repo.GetOrCreate(context.Background(), "+919876543210")
	assert.Error(t, err)
}

func TestDynamoOTPRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	repo := NewDynamoOTPRepository(client, "MobileAuthTable", testLogger())

	none, err := repo.GetByUserID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, none)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, &models.OTP{
		UserID: 7, MobileNumber: "+919876543210", Code: "111111",
		ExpiresAt: now.Add(15 * time.Minute), CreatedAt: now,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.OTP{
		UserID: 7, MobileNumber: "+919876543210", Code: "222222",
		ExpiresAt: now.Add(30 * time.Minute), CreatedAt: now,
	}))

	stored, err := repo.GetByUserID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "222222", stored.Code)
	assert.True(t, stored.ExpiresAt.Equal(now.Add(30*time.Minute)))

	ttl := client.items["OTP#7|METADATA"]["TTL"].(*types.AttributeValueMemberN)
	assert.Equal(t, strconv.FormatInt(now.Add(30*time.Minute+ChallengeRetention).Unix(), 10), ttl.Value)

	deleted, err := repo.DeleteIfMatch(ctx, 7, "111111")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteIfMatch(ctx, 7, "222222")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteIfMatch(ctx, 7, "222222")
	require.NoError(t, err)
	assert.False(t, deleted)
}
