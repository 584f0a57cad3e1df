package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

type mockAPI struct {
	getObject func(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

func (m *mockAPI) GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	return m.getObject(ctx, params, optFns...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rainVar(t *testing.T) domain.Variable {
	t.Helper()
	v, err := domain.LookupVariable("rain")
	require.NoError(t, err)
	return v
}

func TestSource_Fetch_Success(t *testing.T) {
	payload := []byte("grid bytes")
	var gotBucket, gotKey string
	mock := &mockAPI{
		getObject: func(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
			gotBucket = *params.Bucket
			gotKey = *params.Key
			return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(payload))}, nil
		},
	}

	src := New(mock, "imd-mirror", "archive/v1", testLogger())
	body, err := src.Fetch(context.Background(), rainVar(t), 2015)
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "imd-mirror", gotBucket)
	assert.Equal(t, "archive/v1/rain/2015.grd", gotKey)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestSource_Fetch_NoPrefix(t *testing.T) {
	var gotKey string
	mock := &mockAPI{
		getObject: func(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
			gotKey = *params.Key
			return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}

	src := New(mock, "imd-mirror", "", testLogger())
	body, err := src.Fetch(context.Background(), rainVar(t), 1999)
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "rain/1999.grd", gotKey)
}

func TestSource_Fetch_Error(t *testing.T) {
	mock := &mockAPI{
		getObject: func(context.Context, *awss3.GetObjectInput, ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
			return nil, errors.New("NoSuchKey")
		},
	}

	src := New(mock, "imd-mirror", "", testLogger())
	_, err := src.Fetch(context.Background(), rainVar(t), 2015)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://imd-mirror/rain/2015.grd")
	assert.Contains(t, err.Error(), "NoSuchKey")
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
