package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

func sampleAlert() types.Alert {
	return types.Alert{
		Level:       types.AlertLevelError,
		Environment: types.EnvProd,
		RunID:       "run-1",
		Message:     "run failed at deploy: quota exceeded",
		Timestamp:   time.Now().UTC(),
	}
}

func TestNewDispatcherUnknownType(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "pager"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown alert type")
}

func TestNewDispatcherValidatesSinkConfig(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook URL required")

	_, err = NewDispatcher([]types.AlertConfig{{Type: types.AlertFile}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path required")

	_, err = NewDispatcher([]types.AlertConfig{{Type: types.AlertSNS}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN required")
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, sampleAlert()))
	require.NoError(t, sink.Send(ctx, sampleAlert()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var count int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got fileAlertRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		assert.Equal(t, types.EnvProd, got.Alert.Environment)
		assert.False(t, got.EmittedAt.IsZero())
		count++
	}
	assert.Equal(t, 2, count)
	require.NoError(t, sink.Close())
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	var received types.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(context.Background(), sampleAlert()))
	assert.Equal(t, "run-1", received.RunID)
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWebhookBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.Error(t, sink.Send(ctx, sampleAlert()))
	}
	// After three consecutive failures the breaker opens and later sends
	// fail fast without touching the endpoint.
	assert.Equal(t, int32(3), hits.Load())
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, input)
	return &sns.PublishOutput{}, f.err
}

func TestSNSSinkPublishes(t *testing.T) {
	fake := &fakeSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789012:tfgate-alerts", WithSNSClient(fake))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), sampleAlert()))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:tfgate-alerts", *fake.inputs[0].TopicArn)
	assert.Contains(t, *fake.inputs[0].Subject, "prod")
	require.Contains(t, fake.inputs[0].MessageAttributes, "level")
	assert.Equal(t, "error", *fake.inputs[0].MessageAttributes["level"].StringValue)

	var got types.Alert
	require.NoError(t, json.Unmarshal([]byte(*fake.inputs[0].Message), &got))
	assert.Equal(t, types.AlertLevelError, got.Level)
}

func TestDispatchContinuesPastFailingSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	fileSink, err := NewFileSink(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := &Dispatcher{sinks: []Sink{NewWebhookSink(srv.URL), fileSink}, logger: slog.Default()}
	d.Dispatch(context.Background(), sampleAlert())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "file sink still received the alert")
}
