package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"creative-dispatch/internal/config"
	"creative-dispatch/internal/creative"
)

// Single-table key layout.
const (
	pkAdGroup     = "ADGROUP#"
	pkIntegration = "INTEGRATION#"
	skMeta        = "META"
	skAsset       = "ASSET#"

	// maxTransactItems is the DynamoDB TransactWriteItems limit per call.
	maxTransactItems = 100
)

// dynamoAPI is the subset of the DynamoDB client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps ad groups, assets and integrations in one table. Each
// asset item carries an integrationStatuses map attribute.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

// NewDynamoFromConfig builds the client from the shared AWS config chain.
func NewDynamoFromConfig(ctx context.Context, cfg config.Config) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoDB.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	return NewDynamoStore(client, cfg.DynamoDB.Table), nil
}

func (s *DynamoStore) Close() {}

type adGroupItem struct {
	Name      string `dynamodbav:"name"`
	BrandCode string `dynamodbav:"brandCode"`
}

type assetItem struct {
	SK                  string                    `dynamodbav:"SK"`
	Position            int                       `dynamodbav:"position"`
	Doc                 map[string]any            `dynamodbav:"doc"`
	IntegrationStatuses map[string]map[string]any `dynamodbav:"integrationStatuses"`
}

type integrationItem struct {
	Name      string `dynamodbav:"name"`
	BrandCode string `dynamodbav:"brandCode"`
	Enabled   bool   `dynamodbav:"enabled"`
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *DynamoStore) LoadAdGroup(ctx context.Context, adGroupID string) (creative.AdGroup, error) {
	pk := pkAdGroup + adGroupID
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ConsistentRead: aws.Bool(true),
	}

	g := creative.AdGroup{ID: adGroupID}
	found := false
	var items []assetItem
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return creative.AdGroup{}, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		for _, raw := range out.Items {
			sk, _ := raw["SK"].(*types.AttributeValueMemberS)
			switch {
			case sk == nil:
			case sk.Value == skMeta:
				var meta adGroupItem
				if err := attributevalue.UnmarshalMap(raw, &meta); err != nil {
					return creative.AdGroup{}, fmt.Errorf("unmarshal PK=%s SK=META: %w", pk, err)
				}
				g.Name, g.BrandCode = meta.Name, meta.BrandCode
				found = true
			case strings.HasPrefix(sk.Value, skAsset):
				var it assetItem
				if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
					return creative.AdGroup{}, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk.Value, err)
				}
				items = append(items, it)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	if !found {
		return creative.AdGroup{}, fmt.Errorf("%w: %s", ErrAdGroupNotFound, adGroupID)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	for _, it := range items {
		a := assetFromDocument(strings.TrimPrefix(it.SK, skAsset), it.Doc)
		a.IntegrationStatuses = make(map[string]creative.StatusEntry, len(it.IntegrationStatuses))
		for iid, doc := range it.IntegrationStatuses {
			e, err := creative.Entry(doc)
			if err != nil {
				return creative.AdGroup{}, fmt.Errorf("asset %s status %s: %w", a.ID, iid, err)
			}
			a.IntegrationStatuses[iid] = e
		}
		g.Assets = append(g.Assets, a)
	}
	return g, nil
}

func (s *DynamoStore) LoadIntegration(ctx context.Context, integrationID string) (creative.Integration, error) {
	pk := pkIntegration + integrationID
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            key(pk, skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return creative.Integration{}, fmt.Errorf("GetItem PK=%s: %w", pk, err)
	}
	if out.Item == nil {
		return creative.Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, integrationID)
	}
	var it integrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return creative.Integration{}, fmt.Errorf("unmarshal PK=%s: %w", pk, err)
	}
	return creative.Integration{ID: integrationID, Name: it.Name, BrandCode: it.BrandCode, Enabled: it.Enabled}, nil
}

// SetState writes the entry for every asset in one TransactWriteItems call.
// Groups over the transaction limit are rejected before anything is written.
func (s *DynamoStore) SetState(ctx context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) error {
	if len(assetIDs) == 0 {
		return nil
	}
	if len(assetIDs) > maxTransactItems {
		return fmt.Errorf("%w: %d assets, at most %d per transaction", ErrGroupTooLarge, len(assetIDs), maxTransactItems)
	}
	doc, err := plainDocument(fields.Document(state, integ, s.now()))
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}
	entry, err := attributevalue.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal status entry: %w", err)
	}

	pk := pkAdGroup + adGroupID
	items := make([]types.TransactWriteItem, 0, len(assetIDs))
	for _, id := range assetIDs {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           &s.tableName,
				Key:                 key(pk, skAsset+id),
				UpdateExpression:    aws.String("SET integrationStatuses.#iid = :entry"),
				ConditionExpression: aws.String("attribute_exists(PK)"),
				ExpressionAttributeNames: map[string]string{
					"#iid": integ.ID,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":entry": entry,
				},
			},
		})
	}
	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("TransactWriteItems PK=%s (%d assets): %w", pk, len(items), err)
	}
	return nil
}

// SaveIntegration writes an integration configuration item (full replacement).
func (s *DynamoStore) SaveIntegration(ctx context.Context, i creative.Integration) error {
	item, err := attributevalue.MarshalMap(integrationItem{Name: i.Name, BrandCode: i.BrandCode, Enabled: i.Enabled})
	if err != nil {
		return fmt.Errorf("marshal integration: %w", err)
	}
	for k, v := range key(pkIntegration+i.ID, skMeta) {
		item[k] = v
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("PutItem integration %s: %w", i.ID, err)
	}
	return nil
}

// SaveAdGroup writes the ad group and its assets. Assets are replaced whole,
// so this resets their integration statuses.
func (s *DynamoStore) SaveAdGroup(ctx context.Context, g creative.AdGroup) error {
	pk := pkAdGroup + g.ID
	meta, err := attributevalue.MarshalMap(adGroupItem{Name: g.Name, BrandCode: g.BrandCode})
	if err != nil {
		return fmt.Errorf("marshal ad group: %w", err)
	}
	for k, v := range key(pk, skMeta) {
		meta[k] = v
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.tableName, Item: meta}); err != nil {
		return fmt.Errorf("PutItem PK=%s SK=META: %w", pk, err)
	}
	for pos, a := range g.Assets {
		id := a.DocID()
		if id == "" {
			continue
		}
		doc, err := plainDocument(assetDocument(a))
		if err != nil {
			return fmt.Errorf("encode asset %s: %w", id, err)
		}
		item, err := attributevalue.MarshalMap(assetItem{
			SK:                  skAsset + id,
			Position:            pos,
			Doc:                 doc,
			IntegrationStatuses: map[string]map[string]any{},
		})
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", id, err)
		}
		item["PK"] = &types.AttributeValueMemberS{Value: pk}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
			return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skAsset+id, err)
		}
	}
	return nil
}
