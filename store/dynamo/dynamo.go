package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
)

const (
	gsiRecipient = "GSI_Recipient"
	gsiSender    = "GSI_Sender"
	gsiStatus    = "GSI_Status"
)

type DynamoLetterStore struct {
	client    dynamoClient
	tableName string
}

func NewDynamoLetterStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoLetterStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoLetterStore{client: client, tableName: tableName}, nil
}

// Identities

func (dynamoStore *DynamoLetterStore) CreateIdentity(ctx context.Context, identity models.Identity, provider string, providerId string) (models.Identity, error) {
	// The login item is claimed first so a retry after a partial write picks
	// up the same identity id.
	login, _, err := ensureItem(dynamoStore, ctx, dynamoLogin{
		PK:         loginPrefix + provider + "#" + providerId,
		SK:         loginSK,
		IdentityId: identity.Id,
	})
	if err != nil {
		return models.Identity{}, err
	}
	identity.Id = login.IdentityId

	di, _, err := ensureItem(dynamoStore, ctx, identityToDynamo(identity, provider, providerId))
	if err != nil {
		return models.Identity{}, err
	}

	return identityFromDynamo(di), nil
}

func (dynamoStore *DynamoLetterStore) GetIdentity(ctx context.Context, id string) (models.Identity, error) {
	di, err := getItem[dynamoIdentity](dynamoStore, ctx, identityPrefix+id, profileSK, false)
	if err != nil {
		return models.Identity{}, err
	}
	return identityFromDynamo(di), nil
}

func (dynamoStore *DynamoLetterStore) UpdateIdentityProfile(ctx context.Context, id string, displayName string, displayEmoji string) error {
	_, err := updateItem(dynamoStore, ctx, dynamoIdentity{
		PK:           identityPrefix + id,
		SK:           profileSK,
		DisplayName:  displayName,
		DisplayEmoji: displayEmoji,
	}, []string{"DisplayName", "DisplayEmoji"})
	return err
}

func (dynamoStore *DynamoLetterStore) SetIdentityPublicKey(ctx context.Context, id string, publicKey []byte) error {
	_, err := updateItem(dynamoStore, ctx, dynamoIdentity{
		PK:        identityPrefix + id,
		SK:        profileSK,
		PublicKey: publicKey,
	}, []string{"PublicKey"})
	return err
}

func (dynamoStore *DynamoLetterStore) AddBlockedId(ctx context.Context, id string, blockedId string) error {
	_, err := updateWithExpression[dynamoIdentity](dynamoStore, ctx, identityPrefix+id, profileSK,
		"ADD BlockedIds :b", "", nil,
		map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberSS{Value: []string{blockedId}},
		})
	return err
}

func (dynamoStore *DynamoLetterStore) RemoveBlockedId(ctx context.Context, id string, blockedId string) error {
	_, err := updateWithExpression[dynamoIdentity](dynamoStore, ctx, identityPrefix+id, profileSK,
		"DELETE BlockedIds :b", "", nil,
		map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberSS{Value: []string{blockedId}},
		})
	return err
}

// UpdateLastActive only moves LastActiveAt forward.
func (dynamoStore *DynamoLetterStore) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := updateWithExpression[dynamoIdentity](dynamoStore, ctx, identityPrefix+id, profileSK,
		"SET LastActiveAt = :t",
		"attribute_not_exists(LastActiveAt) OR LastActiveAt < :t",
		nil,
		map[string]types.AttributeValue{
			":t": numberValue(at.Unix()),
		})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil
	}
	return err
}

func (dynamoStore *DynamoLetterStore) DeleteIdentity(ctx context.Context, id string) error {
	di, err := getItem[dynamoIdentity](dynamoStore, ctx, identityPrefix+id, profileSK, true)
	if err != nil {
		return err
	}

	if err := deleteItemWithCondition(dynamoStore, ctx, loginPrefix+di.Provider+"#"+di.ProviderId, loginSK, "IdentityId", id); err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return err
	}
	return deleteItemWithCondition(dynamoStore, ctx, identityPrefix+id, profileSK, "", "")
}

// Invites

func (dynamoStore *DynamoLetterStore) CreateInviteLink(ctx context.Context, link models.InviteLink) error {
	_, created, err := ensureItem(dynamoStore, ctx, inviteToDynamo(link))
	if err != nil {
		return err
	}
	if !created {
		return store.ErrItemExists
	}
	return nil
}

func (dynamoStore *DynamoLetterStore) GetInviteLink(ctx context.Context, id string) (models.InviteLink, error) {
	di, err := getItem[dynamoInvite](dynamoStore, ctx, invitePrefix+id, inviteSK, false)
	if err != nil {
		return models.InviteLink{}, err
	}
	return inviteFromDynamo(di), nil
}

// Pairing requests

func (dynamoStore *DynamoLetterStore) CreatePairingRequest(ctx context.Context, req models.PairingRequest) error {
	// A resolved request may be replaced, a pending one may not
	return putItemWithCondition(dynamoStore, ctx, requestToDynamo(req),
		"attribute_not_exists(PK) OR #s <> :pending",
		map[string]string{"#s": "Status"},
		map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(models.RequestPending)},
		})
}

func (dynamoStore *DynamoLetterStore) GetPairingRequest(ctx context.Context, toId string, fromId string) (models.PairingRequest, error) {
	pk, sk := requestKey(toId, fromId)
	dr, err := getItem[dynamoRequest](dynamoStore, ctx, pk, sk, true)
	if err != nil {
		return models.PairingRequest{}, err
	}
	return requestFromDynamo(dr), nil
}

func (dynamoStore *DynamoLetterStore) ListPairingRequests(ctx context.Context, toId string) ([]models.PairingRequest, error) {
	items, err := queryAllByPK[dynamoRequest](dynamoStore, ctx, requestPrefix+toId, true, 0)
	if err != nil {
		return nil, err
	}

	requests := make([]models.PairingRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, requestFromDynamo(item))
	}
	return requests, nil
}

func (dynamoStore *DynamoLetterStore) AcceptPairingRequest(ctx context.Context, req models.PairingRequest, edges [2]models.Pairing) error {
	pk, sk := requestKey(req.ToId, req.FromId)

	txItems := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:                aws.String(dynamoStore.tableName),
				Key:                      itemKey(pk, sk),
				UpdateExpression:         aws.String("SET #s = :accepted"),
				ConditionExpression:      aws.String("#s = :pending"),
				ExpressionAttributeNames: map[string]string{"#s": "Status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":accepted": &types.AttributeValueMemberS{Value: string(models.RequestAccepted)},
					":pending":  &types.AttributeValueMemberS{Value: string(models.RequestPending)},
				},
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		},
	}
	for _, edge := range edges {
		avMap, err := attributevalue.MarshalMap(pairingToDynamo(edge))
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		txItems = append(txItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                           aws.String(dynamoStore.tableName),
				Item:                                avMap,
				ConditionExpression:                 aws.String("attribute_not_exists(PK)"),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	reasons, err := transactWrite(dynamoStore, ctx, txItems)
	if err != nil {
		return err
	}
	if reasons == nil {
		return nil
	}
	if reasons[0] != nil {
		return reasons[0]
	}
	if reasons[1] != nil || reasons[2] != nil {
		return store.ErrItemExists
	}
	return store.ErrConditionFailed
}

func (dynamoStore *DynamoLetterStore) RejectPairingRequest(ctx context.Context, req models.PairingRequest) error {
	pk, sk := requestKey(req.ToId, req.FromId)
	_, err := updateWithExpression[dynamoRequest](dynamoStore, ctx, pk, sk,
		"SET #s = :rejected",
		"#s = :pending",
		map[string]string{"#s": "Status"},
		map[string]types.AttributeValue{
			":rejected": &types.AttributeValueMemberS{Value: string(models.RequestRejected)},
			":pending":  &types.AttributeValueMemberS{Value: string(models.RequestPending)},
		})
	return err
}

// Pairings

func (dynamoStore *DynamoLetterStore) GetPairing(ctx context.Context, viewerId string, peerId string) (models.Pairing, error) {
	pk, sk := pairingKey(viewerId, peerId)
	dp, err := getItem[dynamoPairing](dynamoStore, ctx, pk, sk, true)
	if err != nil {
		return models.Pairing{}, err
	}

	countPK, countSK := pendingKey(viewerId, peerId)
	pending, err := getItem[dynamoPending](dynamoStore, ctx, countPK, countSK, true)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return models.Pairing{}, err
	}
	return pairingFromDynamo(dp, pending.Count), nil
}

func (dynamoStore *DynamoLetterStore) ListPairings(ctx context.Context, viewerId string) ([]models.Pairing, error) {
	items, err := queryAllByPK[dynamoPairing](dynamoStore, ctx, pairingPrefix+viewerId, true, 0)
	if err != nil {
		return nil, err
	}
	counts, err := queryAllByPK[dynamoPending](dynamoStore, ctx, pendingPrefix+viewerId, true, 0)
	if err != nil {
		return nil, err
	}

	// Both share the PEER# sort key
	pendingBySK := make(map[string]int, len(counts))
	for _, c := range counts {
		pendingBySK[c.SK] = c.Count
	}

	pairings := make([]models.Pairing, 0, len(items))
	for _, item := range items {
		pairings = append(pairings, pairingFromDynamo(item, pendingBySK[item.SK]))
	}
	return pairings, nil
}

func (dynamoStore *DynamoLetterStore) DeletePairing(ctx context.Context, viewerId string, peerId string) error {
	forwardPK, forwardSK := pairingKey(viewerId, peerId)
	backPK, backSK := pairingKey(peerId, viewerId)

	// Deleting a missing key is a no-op in a batch, which is what makes this idempotent
	requests := []types.WriteRequest{
		{DeleteRequest: &types.DeleteRequest{Key: itemKey(forwardPK, forwardSK)}},
		{DeleteRequest: &types.DeleteRequest{Key: itemKey(backPK, backSK)}},
	}
	_, err := writeBatchRequests[dynamoPairing](dynamoStore, ctx, requests)
	return err
}

func (dynamoStore *DynamoLetterStore) UpdatePairingPeerKey(ctx context.Context, viewerId string, peerId string, publicKey []byte) error {
	pk, sk := pairingKey(viewerId, peerId)
	_, err := updateItem(dynamoStore, ctx, dynamoPairing{
		PK:            pk,
		SK:            sk,
		PeerPublicKey: publicKey,
	}, []string{"PeerPublicKey"})
	return err
}

// Letters

func (dynamoStore *DynamoLetterStore) CreateLetter(ctx context.Context, letter models.Letter, maxPending int) (models.Letter, error) {
	avMap, err := attributevalue.MarshalMap(letterToDynamo(letter))
	if err != nil {
		return models.Letter{}, fmt.Errorf("marshal error: %w", err)
	}

	edgePK, edgeSK := pairingKey(letter.SenderId, letter.RecipientId)
	countPK, countSK := pendingKey(letter.SenderId, letter.RecipientId)

	// The edge check, the slot and the letter are written together so
	// concurrent sends can never push the counter past maxPending.
	txItems := []types.TransactWriteItem{
		{
			ConditionCheck: &types.ConditionCheck{
				TableName:                           aws.String(dynamoStore.tableName),
				Key:                                 itemKey(edgePK, edgeSK),
				ConditionExpression:                 aws.String("attribute_exists(PK)"),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		},
		{
			Update: &types.Update{
				TableName:           aws.String(dynamoStore.tableName),
				Key:                 itemKey(countPK, countSK),
				UpdateExpression:    aws.String("SET #c = if_not_exists(#c, :zero) + :one"),
				ConditionExpression: aws.String("attribute_not_exists(#c) OR #c < :max"),
				ExpressionAttributeNames: map[string]string{
					"#c": "Count",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":zero": numberValue(0),
					":one":  numberValue(1),
					":max":  numberValue(int64(maxPending)),
				},
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		},
		{
			Put: &types.Put{
				TableName:                           aws.String(dynamoStore.tableName),
				Item:                                avMap,
				ConditionExpression:                 aws.String("attribute_not_exists(PK)"),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		},
	}

	reasons, err := transactWrite(dynamoStore, ctx, txItems)
	if err != nil {
		return models.Letter{}, err
	}
	if reasons == nil {
		return letter, nil
	}

	// A duplicate id wins over the slot check so resends stay idempotent
	if reasons[2] != nil {
		existing, err := dynamoStore.GetLetter(ctx, letter.Id)
		if err != nil {
			return models.Letter{}, err
		}
		return existing, store.ErrItemExists
	}
	if reasons[0] != nil {
		return models.Letter{}, store.ErrItemNotFound
	}
	return models.Letter{}, store.ErrConditionFailed
}

func (dynamoStore *DynamoLetterStore) GetLetter(ctx context.Context, id string) (models.Letter, error) {
	dl, err := getItem[dynamoLetter](dynamoStore, ctx, letterPrefix+id, letterSK, true)
	if err != nil {
		return models.Letter{}, err
	}
	return letterFromDynamo(dl), nil
}

func lettersFromDynamo(items []dynamoLetter) []models.Letter {
	letters := make([]models.Letter, 0, len(items))
	for _, item := range items {
		letters = append(letters, letterFromDynamo(item))
	}
	return letters
}

func (dynamoStore *DynamoLetterStore) ListLettersByRecipient(ctx context.Context, recipientId string) ([]models.Letter, error) {
	items, err := queryAllByGSI[dynamoLetter](dynamoStore, ctx, gsiRecipient, "RecipientId", recipientId, "", "", nil, false)
	if err != nil {
		return nil, err
	}
	return lettersFromDynamo(items), nil
}

func (dynamoStore *DynamoLetterStore) ListLettersBySender(ctx context.Context, senderId string) ([]models.Letter, error) {
	items, err := queryAllByGSI[dynamoLetter](dynamoStore, ctx, gsiSender, "SenderId", senderId, "", "", nil, false)
	if err != nil {
		return nil, err
	}
	return lettersFromDynamo(items), nil
}

func (dynamoStore *DynamoLetterStore) ListDueLetters(ctx context.Context, status models.LetterStatus, before time.Time) ([]models.Letter, error) {
	items, err := queryAllByGSI[dynamoLetter](dynamoStore, ctx, gsiStatus, "Status", string(status),
		"DeliverAt", "#sk <= :sk", numberValue(before.Unix()), true)
	if err != nil {
		return nil, err
	}
	return lettersFromDynamo(items), nil
}

func (dynamoStore *DynamoLetterStore) RescheduleLetter(ctx context.Context, id string, deliverAt time.Time) error {
	_, err := updateWithExpression[dynamoLetter](dynamoStore, ctx, letterPrefix+id, letterSK,
		"SET DeliverAt = :t",
		"#s = :pending",
		map[string]string{"#s": "Status"},
		map[string]types.AttributeValue{
			":t":       numberValue(deliverAt.Unix()),
			":pending": &types.AttributeValueMemberS{Value: string(models.LetterPending)},
		})
	return err
}

func (dynamoStore *DynamoLetterStore) MarkLetterDelivered(ctx context.Context, id string, at time.Time) (models.Letter, error) {
	dl, err := updateWithExpression[dynamoLetter](dynamoStore, ctx, letterPrefix+id, letterSK,
		"SET #s = :delivered, DeliveredAt = :t",
		"#s IN (:pending, :scheduled)",
		map[string]string{"#s": "Status"},
		map[string]types.AttributeValue{
			":delivered": &types.AttributeValueMemberS{Value: string(models.LetterDelivered)},
			":pending":   &types.AttributeValueMemberS{Value: string(models.LetterPending)},
			":scheduled": &types.AttributeValueMemberS{Value: string(models.LetterScheduled)},
			":t":         numberValue(at.Unix()),
		})
	if err != nil {
		return models.Letter{}, err
	}
	return letterFromDynamo(dl), nil
}

func (dynamoStore *DynamoLetterStore) MarkLetterOpened(ctx context.Context, letter models.Letter, at time.Time) (models.Letter, error) {
	countPK, countSK := pendingKey(letter.SenderId, letter.RecipientId)

	openUpdate := types.TransactWriteItem{
		Update: &types.Update{
			TableName:                aws.String(dynamoStore.tableName),
			Key:                      itemKey(letterPrefix+letter.Id, letterSK),
			UpdateExpression:         aws.String("SET #s = :opened, OpenedAt = :t REMOVE SealedContent, AttachmentRefs"),
			ConditionExpression:      aws.String("#s = :delivered"),
			ExpressionAttributeNames: map[string]string{"#s": "Status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":opened":    &types.AttributeValueMemberS{Value: string(models.LetterOpened)},
				":delivered": &types.AttributeValueMemberS{Value: string(models.LetterDelivered)},
				":t":         numberValue(at.Unix()),
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}

	if err := dynamoStore.writeReleasingSlot(ctx, openUpdate, countPK, countSK); err != nil {
		return models.Letter{}, err
	}

	letter.Status = models.LetterOpened
	letter.OpenedAt = time.Unix(at.Unix(), 0).UTC()
	letter.SealedContent = ""
	letter.AttachmentRefs = nil
	return letter, nil
}

func (dynamoStore *DynamoLetterStore) DeleteLetter(ctx context.Context, letter models.Letter) error {
	if !letter.Status.CountsTowardCap() {
		err := deleteItemWithCondition(dynamoStore, ctx, letterPrefix+letter.Id, letterSK, "Status", string(letter.Status))
		if errors.Is(err, store.ErrItemNotFound) {
			return nil
		}
		return err
	}

	countPK, countSK := pendingKey(letter.SenderId, letter.RecipientId)
	deleteItem := types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:                aws.String(dynamoStore.tableName),
			Key:                      itemKey(letterPrefix+letter.Id, letterSK),
			ConditionExpression:      aws.String("#s = :status"),
			ExpressionAttributeNames: map[string]string{"#s": "Status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(letter.Status)},
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}

	err := dynamoStore.writeReleasingSlot(ctx, deleteItem, countPK, countSK)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil
	}
	return err
}

// writeReleasingSlot applies letterItem and gives the sender's pending slot
// back in the same transaction. If the counter is missing or already zero
// the letter item is written on its own.
func (dynamoStore *DynamoLetterStore) writeReleasingSlot(ctx context.Context, letterItem types.TransactWriteItem, countPK string, countSK string) error {
	reasons, err := transactWrite(dynamoStore, ctx, []types.TransactWriteItem{
		letterItem,
		decrementCounterItem(dynamoStore.tableName, countPK, countSK, "Count"),
	})
	if err != nil {
		return err
	}
	if reasons == nil {
		return nil
	}
	if reasons[0] != nil {
		return reasons[0]
	}

	reasons, err = transactWrite(dynamoStore, ctx, []types.TransactWriteItem{letterItem})
	if err != nil {
		return err
	}
	if reasons != nil && reasons[0] != nil {
		return reasons[0]
	}
	return nil
}
