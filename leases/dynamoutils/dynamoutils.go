package dynamoutils

import (
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/vmware/go-kcl-leases/clientlibrary/common"
)

/**
 * Some static utility functions used by our LeaseSerializers.
 */

// CreateAttributeValueFromSS builds a string set. DynamoDB rejects empty sets, so an empty collection is an error.
func CreateAttributeValueFromSS(collectionValue []string) (*dynamodb.AttributeValue, error) {
	if len(collectionValue) == 0 {
		return nil, common.IllegalArgumentError.MakeErr().WithDetail("Collection attributeValues cannot be null or empty.")
	}

	attrib := &dynamodb.AttributeValue{}
	attrib.SetSS(aws.StringSlice(collectionValue))

	return attrib, nil
}

func CreateAttributeValueFromString(stringValue string) (*dynamodb.AttributeValue, error) {
	if len(stringValue) == 0 {
		return nil, common.IllegalArgumentError.MakeErr().WithDetail("String attributeValues cannot be null or empty.")
	}

	attrib := &dynamodb.AttributeValue{}
	attrib.SetS(stringValue)

	return attrib, nil
}

func CreateAttributeValueFromLong(longValue int64) *dynamodb.AttributeValue {
	attrib := &dynamodb.AttributeValue{}
	attrib.SetN(strconv.FormatInt(longValue, 10))

	return attrib
}

// SafeGetLong returns 0 for a missing or malformed number.
func SafeGetLong(dynamoRecord map[string]*dynamodb.AttributeValue, key string) int64 {
	av := dynamoRecord[key]

	if av == nil || av.N == nil {
		return 0
	}

	val, err := strconv.ParseInt(*av.N, 10, 64)
	if err != nil {
		return 0
	}

	return val
}

// SafeGetString returns "" for a missing string.
func SafeGetString(dynamoRecord map[string]*dynamodb.AttributeValue, key string) string {
	av := dynamoRecord[key]
	if av == nil {
		return ""
	}

	return aws.StringValue(av.S)
}

// HasAttribute reports whether key is present in the record.
func HasAttribute(dynamoRecord map[string]*dynamodb.AttributeValue, key string) bool {
	_, ok := dynamoRecord[key]
	return ok
}

// SafeGetSS returns the string set stored under key, sorted, never nil.
func SafeGetSS(dynamoRecord map[string]*dynamodb.AttributeValue, key string) []string {
	av := dynamoRecord[key]

	if av == nil {
		return []string{}
	}

	result := aws.StringValueSlice(av.SS)
	if result == nil {
		result = []string{}
	}
	sort.Strings(result)
	return result
}
