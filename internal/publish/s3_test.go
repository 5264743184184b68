package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 stores single-part uploads in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Publisher_PutAndGet(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	p := NewS3Publisher(client, "catalog", "aton/v2")

	data := []byte(`{"temple":2}`)
	if err := p.Put(ctx, "keywords.json", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stored, ok := client.objects["catalog/aton/v2/keywords.json"]
	if !ok {
		t.Fatalf("object not stored under prefixed key; have %v", client.objects)
	}
	if !bytes.Equal(stored, data) {
		t.Errorf("stored = %q, want %q", stored, data)
	}
	if ct := client.types["catalog/aton/v2/keywords.json"]; ct != "application/json" {
		t.Errorf("ContentType = %q, want application/json", ct)
	}

	var buf bytes.Buffer
	if err := p.Get(ctx, "keywords.json", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("Get() = %q, want %q", buf.Bytes(), data)
	}
}

func TestS3Publisher_NoPrefix(t *testing.T) {
	client := newFakeS3()
	p := NewS3Publisher(client, "catalog", "")

	if err := p.Put(context.Background(), "apps.json", strings.NewReader("[]"), 2); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := client.objects["catalog/apps.json"]; !ok {
		t.Errorf("object not stored at bucket root; have %v", client.objects)
	}
}

func TestS3Publisher_Errors(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	p := NewS3Publisher(client, "catalog", "")

	if err := p.Get(ctx, "missing.json", &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Get() error = %v, want not found", err)
	}
	if err := p.Put(ctx, "a.json", strings.NewReader("abc"), 5); err == nil {
		t.Error("Put() with wrong size expected error")
	}

	if err := p.ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
	client.headErr = errors.New("forbidden")
	if err := p.ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error when bucket is unreachable")
	}
}
