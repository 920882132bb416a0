package dynamoutils

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/go-kcl-leases/clientlibrary/common"
)

func TestCreateAttributeValues(t *testing.T) {
	_, err := CreateAttributeValueFromString("")
	assert.True(t, common.IsErrorCode(err, common.IllegalArgumentError))

	_, err = CreateAttributeValueFromSS(nil)
	assert.True(t, common.IsErrorCode(err, common.IllegalArgumentError))

	ss, err := CreateAttributeValueFromSS([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, aws.StringValueSlice(ss.SS))

	assert.Equal(t, "-3", aws.StringValue(CreateAttributeValueFromLong(-3).N))
}

func TestSafeGetters(t *testing.T) {
	record := map[string]*dynamodb.AttributeValue{
		"counter": {N: aws.String("12")},
		"bad":     {N: aws.String("twelve")},
		"owner":   {S: aws.String("worker-1")},
		"parents": {SS: aws.StringSlice([]string{"shardId-2", "shardId-1"})},
	}

	assert.Equal(t, int64(12), SafeGetLong(record, "counter"))
	assert.Equal(t, int64(0), SafeGetLong(record, "bad"))
	assert.Equal(t, int64(0), SafeGetLong(record, "missing"))

	assert.Equal(t, "worker-1", SafeGetString(record, "owner"))
	assert.Equal(t, "", SafeGetString(record, "missing"))
	assert.True(t, HasAttribute(record, "owner"))
	assert.False(t, HasAttribute(record, "missing"))

	assert.Equal(t, []string{"shardId-1", "shardId-2"}, SafeGetSS(record, "parents"))
	assert.NotNil(t, SafeGetSS(record, "missing"))
	assert.Empty(t, SafeGetSS(record, "missing"))
}
