// Package dynamodb provides DynamoDB-backed identity and association stores.
package dynamodb

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/database"
)

const (
	attrFaceID     = "face_id"
	attrContactKey = "contact_key"
	attrPhotos     = "photos"
)

// API is the subset of the DynamoDB client used by the stores.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// NewClient creates a DynamoDB client from the default AWS credential chain.
// A non-empty cfg.Endpoint points the client at a local DynamoDB.
func NewClient(ctx context.Context, cfg *config.DynamoDBConfig, region string) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// IdentityStore reads and writes the identity table (partition key face_id).
type IdentityStore struct {
	api   API
	table string
}

// NewIdentityStore creates a DynamoDB identity store.
func NewIdentityStore(api API, table string) *IdentityStore {
	return &IdentityStore{api: api, table: table}
}

// GetIdentity returns the identity for a face ID, or nil if none is recorded.
func (s *IdentityStore) GetIdentity(ctx context.Context, faceID string) (*database.IdentityRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrFaceID: &types.AttributeValueMemberS{Value: faceID},
		},
		ProjectionExpression: aws.String(attrContactKey),
	})
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	contact, ok := out.Item[attrContactKey].(*types.AttributeValueMemberS)
	if !ok || contact.Value == "" {
		return nil, nil
	}
	return &database.IdentityRecord{FaceID: faceID, ContactKey: contact.Value}, nil
}

// PutIdentity creates or replaces the identity for a face ID.
func (s *IdentityStore) PutIdentity(ctx context.Context, record database.IdentityRecord) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrFaceID:     &types.AttributeValueMemberS{Value: record.FaceID},
			attrContactKey: &types.AttributeValueMemberS{Value: record.ContactKey},
		},
	})
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// AssociationStore keeps one item per contact (partition key contact_key)
// holding the photo keys in the string set photos.
type AssociationStore struct {
	api   API
	table string
}

// NewAssociationStore creates a DynamoDB association store.
func NewAssociationStore(api API, table string) *AssociationStore {
	return &AssociationStore{api: api, table: table}
}

// AddPhoto adds photoKey to the contact's set with a single ADD update.
// The item is created on first use and re-adding a member is a no-op.
func (s *AssociationStore) AddPhoto(ctx context.Context, contactKey, photoKey string) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrContactKey: &types.AttributeValueMemberS{Value: contactKey},
		},
		UpdateExpression: aws.String("ADD #photos :p"),
		ExpressionAttributeNames: map[string]string{
			"#photos": attrPhotos,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberSS{Value: []string{photoKey}},
		},
	})
	if err != nil {
		return fmt.Errorf("add photo association: %w", err)
	}
	return nil
}

// GetPhotos returns the contact's photo keys, sorted.
func (s *AssociationStore) GetPhotos(ctx context.Context, contactKey string) ([]string, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrContactKey: &types.AttributeValueMemberS{Value: contactKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get photo associations: %w", err)
	}

	photos := []string{}
	if set, ok := out.Item[attrPhotos].(*types.AttributeValueMemberSS); ok {
		photos = append(photos, set.Value...)
	}
	slices.Sort(photos)
	return photos, nil
}

var (
	_ API                        = (*dynamodb.Client)(nil)
	_ database.IdentityWriter    = (*IdentityStore)(nil)
	_ database.AssociationWriter = (*AssociationStore)(nil)
)
