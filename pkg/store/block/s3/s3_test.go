package s3

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/store/block/storetest"
)

// fakeS3 implements the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	bucket string

	mu        sync.Mutex
	objects   map[string][]byte
	unhealthy bool
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodHead && key == "":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && key == "" && q.Get("list-type") == "2":
		f.list(w, q.Get("prefix"))

	case r.Method == http.MethodPost && q.Has("delete"):
		var req struct {
			Objects []struct {
				Key string `xml:"Key"`
			} `xml:"Object"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := xml.Unmarshal(body, &req); err != nil {
			writeS3Error(w, http.StatusBadRequest, "MalformedXML")
			return
		}
		for _, o := range req.Objects {
			delete(f.objects, o.Key)
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult></DeleteResult>`)

	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)

	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`,
		f.bucket, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, b.String())
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func newTestStore(t *testing.T, prefix string) (*Store, *fakeS3) {
	t.Helper()

	fake := newFakeS3("pages")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewFromConfig(t.Context(), Config{
		Bucket:          "pages",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		KeyPrefix:       prefix,
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}, func(o *s3.Options) {
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		o.RetryMaxAttempts = 1
	})
	require.NoError(t, err)
	return s, fake
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) block.Store {
		s, _ := newTestStore(t, "")
		return s
	})
}

func TestKeyPrefix(t *testing.T) {
	s, fake := newTestStore(t, "cluster-a/")
	ctx := t.Context()

	require.NoError(t, s.WriteBlock(ctx, block.PageKey("data", 3, 0), []byte("x")))

	fake.mu.Lock()
	_, ok := fake.objects["cluster-a/data/ino/3/0"]
	fake.mu.Unlock()
	assert.True(t, ok)

	keys, err := s.ListByPrefix(ctx, "data/")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/ino/3/0"}, keys)
}

func TestHealthCheckFailure(t *testing.T) {
	s, fake := newTestStore(t, "")

	fake.mu.Lock()
	fake.unhealthy = true
	fake.mu.Unlock()

	err := s.HealthCheck(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `bucket "pages"`)
}

func TestNewFromConfigRequiresBucket(t *testing.T) {
	_, err := NewFromConfig(t.Context(), Config{})
	assert.Error(t, err)
}
