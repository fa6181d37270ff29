// Package event decodes photo upload notifications and decides which ones are eligible for processing.
package event

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// PhotoEvent identifies one uploaded object.
type PhotoEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String returns the event as bucket/key.
func (e PhotoEvent) String() string {
	return e.Bucket + "/" + e.Key
}

// notification is the S3 event notification document.
type notification struct {
	Records []record `json:"Records"`
}

type record struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// RejectedRecord is a notification record that could not be turned into an event.
type RejectedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Notification is a decoded event notification.
type Notification struct {
	Events   []PhotoEvent
	Rejected []RejectedRecord
}

// ParseNotification decodes an S3 event notification into photo events.
// Object keys arrive URL-encoded and are decoded. Records for anything other than
// object creation are dropped; records without an event name are kept.
// A malformed record is rejected on its own; only an undecodable document is an error.
func ParseNotification(data []byte) (*Notification, error) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	out := &Notification{Events: make([]PhotoEvent, 0, len(n.Records))}
	for i, r := range n.Records {
		if r.EventName != "" && !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}
		if r.S3.Bucket.Name == "" || r.S3.Object.Key == "" {
			out.Rejected = append(out.Rejected, RejectedRecord{Index: i, Reason: "missing bucket or key"})
			continue
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			out.Rejected = append(out.Rejected, RejectedRecord{
				Index:  i,
				Reason: fmt.Sprintf("decode key %q: %v", r.S3.Object.Key, err),
			})
			continue
		}
		out.Events = append(out.Events, PhotoEvent{Bucket: r.S3.Bucket.Name, Key: key})
	}
	return out, nil
}
