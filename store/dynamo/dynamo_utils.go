package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/letterbox/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if devMode {
		// Dummy credentials and a fixed region for dynamodb-local
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.New(dynamodb.Options{
			Credentials:      cfg.Credentials,
			Region:           cfg.Region,
			EndpointResolver: dynamodb.EndpointResolverFromURL(dynamodbEndpoint),
		}), nil
	}

	// Production: default config (task role and AWS endpoints)
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

// dynamoClient is the subset of *dynamodb.Client the store uses.
type dynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, err
	}

	return output.TableNames, nil
}

func itemKey(pk string, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// getItem retrieves an item of type T by PK and SK
func getItem[T any](dynamoStore *DynamoLetterStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// ensureItem inserts item unless an item with the same PK+SK exists, in
// which case the stored item is returned. The bool reports a fresh insert.
func ensureItem[T any](dynamoStore *DynamoLetterStore, ctx context.Context, item T) (T, bool, error) {
	var zero T

	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return zero, false, fmt.Errorf("marshal error: %w", err)
	}
	if _, ok := avMap["PK"]; !ok {
		return zero, false, errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		return zero, false, errors.New("struct missing SK field")
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(dynamoStore.tableName),
		Item:                                avMap,
		ConditionExpression:                 aws.String("attribute_not_exists(PK)"),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			if cce.Item == nil {
				return zero, false, errors.New("item supposedly exists but no old item was returned")
			}
			var existing T
			if err := attributevalue.UnmarshalMap(cce.Item, &existing); err != nil {
				return zero, false, fmt.Errorf("failed to unmarshal existing item: %w", err)
			}
			return existing, false, nil
		}
		return zero, false, fmt.Errorf("failed to put item: %w", err)
	}

	return item, true, nil
}

// putItemWithCondition writes item only if condition holds, returning
// store.ErrConditionFailed otherwise.
func putItemWithCondition[T any](
	dynamoStore *DynamoLetterStore,
	ctx context.Context,
	item T,
	condition string,
	exprAttrNames map[string]string,
	exprAttrValues map[string]types.AttributeValue,
) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Item:      avMap,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
		if len(exprAttrNames) > 0 {
			input.ExpressionAttributeNames = exprAttrNames
		}
		if len(exprAttrValues) > 0 {
			input.ExpressionAttributeValues = exprAttrValues
		}
	}

	_, err = dynamoStore.client.PutItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return store.ErrConditionFailed
		}
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// queryAllByPK returns all items of type T with the given PK, ordered by SK, with a limit.
func queryAllByPK[T any](dynamoStore *DynamoLetterStore, ctx context.Context, pk string, scanIndexForward bool, limit int32) ([]T, error) {
	var results []T

	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(scanIndexForward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	// dynamodb applies limit per page, so it is also enforced globally
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= int(limit) {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	if limit > 0 && len(results) > int(limit) {
		results = results[:limit]
	}

	return results, nil
}

// queryAllByGSI returns every item of type T in the GSI partition pkValue.
// A non-empty skCondition (using #sk and :sk) narrows the sort key range.
func queryAllByGSI[T any](
	dynamoStore *DynamoLetterStore,
	ctx context.Context,
	indexName string,
	pkField string,
	pkValue string,
	skField string,
	skCondition string,
	skValue types.AttributeValue,
	scanIndexForward bool,
) ([]T, error) {
	var results []T

	keyCond := "#pk = :pk"
	exprAttrNames := map[string]string{
		"#pk": pkField,
	}
	exprAttrValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pkValue},
	}
	if skCondition != "" {
		keyCond += " AND " + skCondition
		exprAttrNames["#sk"] = skField
		exprAttrValues[":sk"] = skValue
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(dynamoStore.tableName),
		IndexName:                 aws.String(indexName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
		ScanIndexForward:          aws.Bool(scanIndexForward),
	}

	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query GSI failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	return results, nil
}

// writeBatchRequests handles batch writes (Put or Delete) with retries
// Returns any unprocessed items as []T
func writeBatchRequests[T any](dynamoStore *DynamoLetterStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		unprocessed := resp.UnprocessedItems[dynamoStore.tableName]
		if len(unprocessed) == 0 {
			return nil, nil
		}

		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// helper to convert WriteRequests back to []T
func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		var item T
		if wr.PutRequest != nil {
			if err := attributevalue.UnmarshalMap(wr.PutRequest.Item, &item); err == nil {
				failed = append(failed, item)
			}
		} else if wr.DeleteRequest != nil {
			if err := attributevalue.UnmarshalMap(wr.DeleteRequest.Key, &item); err == nil {
				failed = append(failed, item)
			}
		}
	}
	return failed
}

// deleteItemWithCondition deletes an item by PK and SK, only if a specified field equals a given value.
// With an empty conditionField the delete is unconditional and missing items are not an error.
func deleteItemWithCondition(dynamoStore *DynamoLetterStore, ctx context.Context, pk string, sk string, conditionField string, expectedValue string) error {
	input := &dynamodb.DeleteItemInput{
		TableName:                           aws.String(dynamoStore.tableName),
		Key:                                 itemKey(pk, sk),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	if conditionField != "" {
		input.ConditionExpression = aws.String("#f = :val")
		input.ExpressionAttributeNames = map[string]string{"#f": conditionField}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberS{Value: expectedValue},
		}
	}

	_, err := dynamoStore.client.DeleteItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			// No old item means the condition failed because the item is gone
			if cce.Item == nil {
				return store.ErrItemNotFound
			}
			return store.ErrConditionFailed
		}
		return fmt.Errorf("delete failed: %w", err)
	}

	return nil
}

// updateItem updates an existing item in DynamoDB.
// Only fields listed in fieldsToUpdate are set; fields absent from the
// marshalled struct are removed. Returns store.ErrItemNotFound if the item
// does not exist.
func updateItem[T any](
	dynamoStore *DynamoLetterStore,
	ctx context.Context,
	item T,
	fieldsToUpdate []string,
) (T, error) {
	var zero T

	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return zero, fmt.Errorf("marshal error: %w", err)
	}

	pkAttr, ok := avMap["PK"]
	if !ok {
		return zero, errors.New("struct missing PK field")
	}
	skAttr, ok := avMap["SK"]
	if !ok {
		return zero, errors.New("struct missing SK field")
	}

	setExpr := ""
	removeExpr := ""
	exprAttrValues := make(map[string]types.AttributeValue)
	exprAttrNames := make(map[string]string)

	for _, field := range fieldsToUpdate {
		// Never update keys
		if field == "PK" || field == "SK" {
			continue
		}
		exprAttrNames["#"+field] = field

		val, ok := avMap[field]
		if !ok {
			// omitempty dropped it, so the stored value goes too
			if removeExpr != "" {
				removeExpr += ", "
			}
			removeExpr += "#" + field
			continue
		}

		if setExpr != "" {
			setExpr += ", "
		}
		setExpr += fmt.Sprintf("#%s = :%s", field, field)
		exprAttrValues[":"+field] = val
	}

	updateExpr := ""
	if setExpr != "" {
		updateExpr = "SET " + setExpr
	}
	if removeExpr != "" {
		updateExpr += " REMOVE " + removeExpr
	}
	if updateExpr == "" {
		return zero, errors.New("nothing to update")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(dynamoStore.tableName),
		Key:                      map[string]types.AttributeValue{"PK": pkAttr, "SK": skAttr},
		UpdateExpression:         aws.String(updateExpr),
		ExpressionAttributeNames: exprAttrNames,
		ConditionExpression:      aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		ReturnValues:             types.ReturnValueAllNew,
	}
	if len(exprAttrValues) > 0 {
		input.ExpressionAttributeValues = exprAttrValues
	}

	out, err := dynamoStore.client.UpdateItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return zero, store.ErrItemNotFound
		}
		return zero, fmt.Errorf("update failed: %w", err)
	}

	var updated T
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return zero, fmt.Errorf("failed to unmarshal updated item: %w", err)
	}

	return updated, nil
}

// updateWithExpression runs a raw update expression against an existing item.
// If the condition fails it returns store.ErrItemNotFound when the item is
// gone and store.ErrConditionFailed otherwise. The updated item is returned.
func updateWithExpression[T any](
	dynamoStore *DynamoLetterStore,
	ctx context.Context,
	pk string,
	sk string,
	updateExpr string,
	condition string,
	exprAttrNames map[string]string,
	exprAttrValues map[string]types.AttributeValue,
) (T, error) {
	var zero T

	cond := "attribute_exists(PK)"
	if condition != "" {
		cond += " AND (" + condition + ")"
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                           aws.String(dynamoStore.tableName),
		Key:                                 itemKey(pk, sk),
		UpdateExpression:                    aws.String(updateExpr),
		ConditionExpression:                 aws.String(cond),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if len(exprAttrNames) > 0 {
		input.ExpressionAttributeNames = exprAttrNames
	}
	if len(exprAttrValues) > 0 {
		input.ExpressionAttributeValues = exprAttrValues
	}

	out, err := dynamoStore.client.UpdateItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			if cce.Item == nil {
				return zero, store.ErrItemNotFound
			}
			return zero, store.ErrConditionFailed
		}
		return zero, fmt.Errorf("update failed: %w", err)
	}

	var updated T
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return zero, fmt.Errorf("failed to unmarshal updated item: %w", err)
	}

	return updated, nil
}

// transactWrite runs items as one transaction. When the transaction is
// cancelled, the returned slice holds one error per item: nil for items
// that were fine, store.ErrItemNotFound for a failed condition on a missing
// item and store.ErrConditionFailed for one on an existing item. Items must
// set ReturnValuesOnConditionCheckFailure for that distinction to hold.
func transactWrite(dynamoStore *DynamoLetterStore, ctx context.Context, items []types.TransactWriteItem) ([]error, error) {
	_, err := dynamoStore.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil, nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, fmt.Errorf("transaction failed: %w", err)
	}

	reasons := make([]error, len(items))
	conditional := false
	for i, reason := range tce.CancellationReasons {
		if i >= len(reasons) {
			break
		}
		switch aws.ToString(reason.Code) {
		case "", "None":
		case "ConditionalCheckFailed":
			conditional = true
			if reason.Item == nil {
				reasons[i] = store.ErrItemNotFound
			} else {
				reasons[i] = store.ErrConditionFailed
			}
		default:
			reasons[i] = fmt.Errorf("%s: %s", aws.ToString(reason.Code), aws.ToString(reason.Message))
		}
	}

	// Conflicts and throttling surface as the error itself
	if !conditional {
		return nil, fmt.Errorf("transaction cancelled: %w", err)
	}
	return reasons, nil
}

// decrementCounterItem is a transaction item that releases one unit of a
// counter on an existing item, never going below zero.
func decrementCounterItem(tableName string, pk string, sk string, counterField string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(tableName),
			Key:                 itemKey(pk, sk),
			UpdateExpression:    aws.String("SET #c = #c - :one"),
			ConditionExpression: aws.String("attribute_exists(PK) AND #c > :zero"),
			ExpressionAttributeNames: map[string]string{
				"#c": counterField,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":  numberValue(1),
				":zero": numberValue(0),
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}
}
