package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// Resolve returns the versioned identity for a key via HeadObject.
//
// The ETag captured here rides along on every subsequent range fetch for
// the handle as an If-Match condition.
func (c *Client) Resolve(ctx context.Context, key object.Key) (id object.ID, err error) {
	start := time.Now()
	defer func() { c.observeResolve(start, err) }()

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(string(key))),
	})
	if err != nil {
		return object.ID{}, classify(err, key)
	}

	var size uint64
	if out.ContentLength != nil {
		size = uint64(*out.ContentLength)
	}
	var etag object.ETag
	if out.ETag != nil {
		etag = object.ETag(strings.Trim(*out.ETag, `"`))
	}

	return object.ID{Key: key, Size: size, ETag: etag}, nil
}

// FetchRange fetches [offset, offset+length) of the identified object,
// conditional on its version token.
//
// Retry Behavior:
// Transient failures (timeouts, throttling, 5xx) are retried with
// exponential backoff up to the configured attempt budget, then surfaced as
// KindUnavailable. NotFound, PermissionDenied, and ObjectChanged are
// terminal and returned immediately.
func (c *Client) FetchRange(ctx context.Context, id object.ID, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	start := time.Now()

	var data []byte
	var err error
	for attempt := uint(0); attempt < c.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			c.recordRetry()
			backoff := c.backoffFor(attempt - 1)
			logger.Debug("retrying range fetch",
				"key", id.Key,
				"offset", offset,
				"attempt", attempt,
				"max_attempts", c.retry.maxAttempts,
				"backoff", backoff)

			select {
			case <-ctx.Done():
				c.observeFetch(0, start, ctx.Err())
				return nil, classify(ctx.Err(), id.Key)
			case <-time.After(backoff):
			}
		}

		data, err = c.getRange(ctx, id, offset, length)
		if err == nil {
			c.observeFetch(int64(len(data)), start, nil)
			return data, nil
		}
		if !isTransient(err) {
			break
		}
	}

	c.observeFetch(0, start, err)
	return nil, classify(err, id.Key)
}

// getRange performs a single conditional ranged GetObject.
func (c *Client) getRange(ctx context.Context, id object.ID, offset, length uint64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:  aws.String(c.bucket),
		Key:     aws.String(c.objectKey(string(id.Key))),
		Range:   aws.String(rangeHeader),
		IfMatch: aws.String(string(id.ETag)),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	data := make([]byte, 0, length)
	buf := make([]byte, 64*1024)
	for {
		n, readErr := out.Body.Read(buf)
		data = append(data, buf[:n]...)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	if uint64(len(data)) != length {
		return nil, fmt.Errorf("short range response for %s: got %d bytes, want %d",
			id.Key, len(data), length)
	}

	return data, nil
}

// List returns entries under prefix using a delimited ListObjectsV2.
// Common prefixes come back as directory entries.
func (c *Client) List(ctx context.Context, prefix string, max int) ([]storeobject.Entry, error) {
	fullPrefix := c.keyPrefix + prefix

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(fullPrefix),
		Delimiter: aws.String("/"),
	}
	if max > 0 && max <= 1000 {
		input.MaxKeys = aws.Int32(int32(max))
	}

	var entries []storeobject.Entry
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, object.Key(prefix))
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			entries = append(entries, storeobject.Entry{
				Key:      object.Key(strings.TrimPrefix(*cp.Prefix, c.keyPrefix)),
				IsPrefix: true,
			})
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := strings.TrimPrefix(*obj.Key, c.keyPrefix)
			if key == prefix {
				// The prefix itself listed as a zero-byte marker object.
				continue
			}
			var size uint64
			if obj.Size != nil {
				size = uint64(*obj.Size)
			}
			entries = append(entries, storeobject.Entry{
				Key:  object.Key(key),
				Size: size,
			})
		}

		if max > 0 && len(entries) >= max {
			entries = entries[:max]
			break
		}
	}

	return entries, nil
}
