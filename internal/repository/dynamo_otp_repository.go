package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoOTPRepository keeps one OTP#<userID> item per user. A plain PutItem replaces it.
type DynamoOTPRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoOTPRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoOTPRepository {
	return &DynamoOTPRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Upsert stores the challenge with a TTL attribute past its expiry so DynamoDB eventually
// removes abandoned challenges.
func (r *DynamoOTPRepository) Upsert(ctx context.Context, otp *models.OTP) error {
	item, err := attributevalue.MarshalMap(otp)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal OTP for DynamoDB")
		return fmt.Errorf("failed to marshal OTP: %w", err)
	}

	ttl := otp.ExpiresAt.Add(ChallengeRetention).Unix()
	item["PK"] = &types.AttributeValueMemberS{Value: otp.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: otp.GetSK()}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) GetByUserID(ctx context.Context, userID int64) (*models.OTP, error) {
	key := &models.OTP{UserID: userID}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(key.GetPK(), key.GetSK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var otp models.OTP
	if err := attributevalue.UnmarshalMap(result.Item, &otp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP: %w", err)
	}

	return &otp, nil
}

func (r *DynamoOTPRepository) DeleteIfMatch(ctx context.Context, userID int64, code string) (bool, error) {
	key := &models.OTP{UserID: userID}

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(key.GetPK(), key.GetSK()),
		ConditionExpression: aws.String("otp = :otp"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":otp": &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	return true, nil
}
