// Package objectstore writes summary objects to blob storage backends.
package objectstore

import "context"

// Object is one blob with its content type and custom metadata
type Object struct {
	Key         string
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// Store is a write-only blob store. Put overwrites any existing object.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Close() error
}
