package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Objects provides copy and delete operations on Cloud Storage objects.
type Objects struct {
	client *gcs.Client
}

// NewObjects constructs an Objects helper backed by the provided Cloud Storage client.
func NewObjects(client *gcs.Client) (*Objects, error) {
	if client == nil {
		return nil, errors.New("storage objects: client is required")
	}
	return &Objects{client: client}, nil
}

// WriteObject stores the payload at bucket/object, replacing any existing content.
func (o *Objects) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if o == nil || o.client == nil {
		return errors.New("storage objects: client is not initialised")
	}

	bucketName := strings.TrimSpace(bucket)
	objectName := strings.TrimSpace(object)
	if bucketName == "" || objectName == "" {
		return errors.New("storage objects: bucket and object must be provided")
	}

	writer := o.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		writer.ContentType = ct
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// CopyObject copies an object from the source bucket/path to the destination.
func (o *Objects) CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	if o == nil || o.client == nil {
		return errors.New("storage objects: client is not initialised")
	}

	srcBucket := strings.TrimSpace(sourceBucket)
	srcObject := strings.TrimSpace(sourceObject)
	dstBucket := strings.TrimSpace(destBucket)
	dstObject := strings.TrimSpace(destObject)

	if srcBucket == "" || srcObject == "" || dstBucket == "" || dstObject == "" {
		return errors.New("storage objects: source and destination must be provided")
	}
	if srcBucket == dstBucket && srcObject == dstObject {
		return nil
	}

	src := o.client.Bucket(srcBucket).Object(srcObject)
	dst := o.client.Bucket(dstBucket).Object(dstObject)
	_, err := dst.CopierFrom(src).Run(ctx)
	return err
}

// DeleteObject removes an object. Missing objects are treated as already deleted.
func (o *Objects) DeleteObject(ctx context.Context, bucket, object string) error {
	if o == nil || o.client == nil {
		return errors.New("storage objects: client is not initialised")
	}

	bucketName := strings.TrimSpace(bucket)
	objectName := strings.TrimSpace(object)
	if bucketName == "" || objectName == "" {
		return errors.New("storage objects: bucket and object must be provided")
	}

	err := o.client.Bucket(bucketName).Object(objectName).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
