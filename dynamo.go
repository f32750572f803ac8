package apihub

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDBAPI is the part of *dynamodb.Client the helpers need.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// PutItemIfAbsent stores item unless an item with the same key already
// exists, in which case the RESOURCE_ALREADY_EXISTS response is thrown.
func PutItemIfAbsent(ctx context.Context, client DynamoDBAPI, table string, item any, keyAttributes ...string) error {
	if len(keyAttributes) == 0 {
		return NewIssue("PutItemIfAbsent needs at least one key attribute", nil)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for table %s: %w", table, err)
	}

	condition := expression.AttributeNotExists(expression.Name(keyAttributes[0]))
	for _, key := range keyAttributes[1:] {
		condition = condition.And(expression.AttributeNotExists(expression.Name(key)))
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition expression: %w", err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}, func(o *dynamodb.Options) {
		o.Logger = LogBufferFrom(ctx)
	})
	return ReclassifyConditionalFailure(err, CodeResourceAlreadyExists)
}

// UpdateItemOrRespond runs a conditional update. If the condition does not
// hold, onConflict is thrown as the response.
func UpdateItemOrRespond(ctx context.Context, client DynamoDBAPI, input *dynamodb.UpdateItemInput, onConflict Reply) (*dynamodb.UpdateItemOutput, error) {
	out, err := client.UpdateItem(ctx, input, func(o *dynamodb.Options) {
		o.Logger = LogBufferFrom(ctx)
	})
	if err != nil {
		return nil, ReclassifyConditionalFailure(err, onConflict)
	}
	return out, nil
}
