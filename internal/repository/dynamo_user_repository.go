package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	userCounterPK = "COUNTER#USER"
	userCounterSK = "METADATA"
)

// DynamoUserRepository keeps users as USER#<mobile> items. Numeric ids come from an atomic
// counter item.
type DynamoUserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoUserRepository {
	return &DynamoUserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *DynamoUserRepository) GetByMobileNumber(ctx context.Context, mobileNumber string) (*models.User, error) {
	user := &models.User{MobileNumber: mobileNumber}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(user.GetPK(), user.GetSK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil // User not found
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &dbUser, nil
}

func (r *DynamoUserRepository) GetOrCreate(ctx context.Context, mobileNumber string) (*models.User, bool, error) {
	user, err := r.GetByMobileNumber(ctx, mobileNumber)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, false, err
	}

	newUser := &models.User{
		ID:           id,
		MobileNumber: mobileNumber,
		CreatedAt:    time.Now().UTC(),
	}

	item, err := attributevalue.MarshalMap(newUser)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return nil, false, fmt.Errorf("failed to marshal user: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: newUser.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: newUser.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			// Lost the race; the reserved id is simply skipped.
			existing, err := r.GetByMobileNumber(ctx, mobileNumber)
			if err != nil {
				return nil, false, err
			}
			if existing == nil {
				return nil, false, fmt.Errorf("user %s missing after conditional put failed", mobileNumber)
			}
			return existing, false, nil
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	return newUser, true, nil
}

func (r *DynamoUserRepository) nextID(ctx context.Context) (int64, error) {
	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              itemKey(userCounterPK, userCounterSK),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to allocate user id in DynamoDB")
		return 0, fmt.Errorf("failed to allocate user id: %w", err)
	}

	seq, ok := result.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("failed to allocate user id: counter missing from response")
	}
	id, err := strconv.ParseInt(seq.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse user id: %w", err)
	}
	return id, nil
}
