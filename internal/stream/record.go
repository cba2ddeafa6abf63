package stream

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Change-record operation kinds as delivered by the stream.
const (
	eventInsert = "INSERT"
	eventModify = "MODIFY"
	eventRemove = "REMOVE"
)

// tableNameOf extracts the source table identity from a stream record's
// event source ARN ("arn:...:table/NAME/stream/TIMESTAMP").
func tableNameOf(r events.DynamoDBEventRecord) string {
	const marker = ":table/"
	i := strings.Index(r.EventSourceArn, marker)
	if i < 0 {
		return ""
	}
	rest := r.EventSourceArn[i+len(marker):]
	if j := strings.Index(rest, "/"); j >= 0 {
		return rest[:j]
	}
	return rest
}

// recordImage returns the record's new image, falling back to the old image
// for removals.
func recordImage(r events.DynamoDBEventRecord) map[string]events.DynamoDBAttributeValue {
	if len(r.Change.NewImage) > 0 {
		return r.Change.NewImage
	}
	return r.Change.OldImage
}

// entityTypeOf reads the entity-type discriminator from the record's image.
func entityTypeOf(r events.DynamoDBEventRecord) string {
	return imageString(recordImage(r), "entityType")
}

// imageString reads a string attribute from a stream image, returning ""
// when absent or non-string.
func imageString(image map[string]events.DynamoDBAttributeValue, name string) string {
	attr, ok := image[name]
	if !ok || attr.DataType() != events.DataTypeString {
		return ""
	}
	return attr.String()
}
