package s3loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/pool"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    []string
}

func (f *fakeStore) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(`"fake-etag"`),
	}, nil
}

func (f *fakeStore) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

func awaitTicket(t *testing.T, tk resourcepool.Ticket) (any, error) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("load never resolved")
	}
	return tk.Result()
}

func TestLoader_FetchObject(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"assets/model/cube": []byte("cube bytes"),
	}}
	l := NewWithClient(Config{Bucket: "game-assets", Prefix: "assets"}, store)

	asset, err := awaitTicket(t, l.Load(context.Background(), "model/cube"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	obj := asset.(*Object)
	if obj.Key != "model/cube" {
		t.Fatalf("key = %q", obj.Key)
	}
	if string(obj.Data) != "cube bytes" {
		t.Fatalf("data = %q", obj.Data)
	}
	if obj.ETag != `"fake-etag"` {
		t.Fatalf("etag = %q", obj.ETag)
	}
	if obj.Size() != len("cube bytes") {
		t.Fatalf("size = %d", obj.Size())
	}
	if got := store.requested(); len(got) != 1 || got[0] != "assets/model/cube" {
		t.Fatalf("requested object keys = %v", got)
	}
}

func TestLoader_NoPrefix(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"model/cube": []byte("x"),
	}}
	l := NewWithClient(Config{Bucket: "game-assets"}, store)

	if _, err := awaitTicket(t, l.Load(context.Background(), "model/cube")); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := store.requested(); got[0] != "model/cube" {
		t.Fatalf("requested object keys = %v", got)
	}
}

func TestLoader_MissingObject(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{}}
	l := NewWithClient(Config{Bucket: "game-assets"}, store)

	_, err := awaitTicket(t, l.Load(context.Background(), "model/missing"))
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !strings.Contains(err.Error(), "get object") {
		t.Fatalf("error = %v", err)
	}
	var nsk *types.NoSuchKey
	if !errors.As(err, &nsk) {
		t.Fatalf("error does not wrap NoSuchKey: %v", err)
	}
}

func TestLoader_PoolIntegration(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"tex/wood": []byte("wood texels"),
	}}
	l := NewWithClient(Config{Bucket: "game-assets"}, store)

	loc := pool.NewLocator(pool.Config{Loader: l})
	ref := pool.NewReference[*Object](loc, "tex/wood")
	if err := ref.RetainAndWait(context.Background()); err != nil {
		t.Fatalf("retain failed: %v", err)
	}
	defer ref.Release()

	obj, err := ref.Asset()
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if string(obj.Data) != "wood texels" {
		t.Fatalf("data = %q", obj.Data)
	}
}
