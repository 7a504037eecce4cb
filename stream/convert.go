package stream

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/store"
)

// ConvertStreamKey converts a DynamoDB stream key to a store.Item.
// Use this when you need to convert keys from stream records to store operations.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.Item {
	return ConvertImage(streamKey)
}

// ConvertImage converts a stream image to the item form used by the store.
// Attributes of unknown type are dropped.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) store.Item {
	result := make(store.Item, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, item := range list {
			if av := convertValue(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
