package polljson

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/storage"
)

// sinkRecorder captures forwarded ticks and can fail selected fields.
type sinkRecorder struct {
	mu       sync.Mutex
	ticks    []recordedTick
	failFor  map[string]bool
	unmapped map[string]bool
}

type recordedTick struct {
	field string
	buy   string
	sell  string
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{failFor: make(map[string]bool), unmapped: make(map[string]bool)}
}

func (s *sinkRecorder) ProcessTick(_, _, field, rawBuy, rawSell string, _ bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[field] {
		return false, fmt.Errorf("bad record %q", field)
	}
	if s.unmapped[field] {
		return false, nil
	}
	s.ticks = append(s.ticks, recordedTick{field, rawBuy, rawSell})
	return true, nil
}

func (s *sinkRecorder) all() []recordedTick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedTick(nil), s.ticks...)
}

// -----------------------------------------------------------------------------

func newJSONSource(sink *sinkRecorder) *PollJSONSource {
	cfg := models.MProviderConfig{Name: "backup-json", Kind: "poll-json", IntervalSeconds: 10}
	log := logger.NewLogger("error", "json-test")
	s := NewPollJSONSource(cfg, storage.NewMemoryDB(), nil, sink, nil, nil, 2, log)
	return s
}

func TestProcessBodyForwardsRecords(t *testing.T) {
	t.Parallel()
	sink := newSinkRecorder()
	s := newJSONSource(sink)

	body := []byte(`[
		{"code":"USDTRY","buy":"34.20","sell":"34.45"},
		{"code":"EURTRY","buy":36.10,"sell":36.40}
	]`)

	n, err := s.processBody(body)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ticks := sink.all()
	require.Len(t, ticks, 2)
	assert.Equal(t, recordedTick{"USDTRY", "34.20", "34.45"}, ticks[0])
	// json.Number keeps the literal digits of numeric values.
	assert.Equal(t, recordedTick{"EURTRY", "36.10", "36.40"}, ticks[1])
}

func TestProcessBodyBadRecordDoesNotAbortBatch(t *testing.T) {
	t.Parallel()
	sink := newSinkRecorder()
	sink.failFor["BROKEN"] = true
	s := newJSONSource(sink)

	body := []byte(`[
		{"code":"USDTRY","buy":"34.20","sell":"34.45"},
		{"code":"BROKEN","buy":"x","sell":"y"},
		{"code":"EURTRY","buy":"36.10","sell":"36.40"}
	]`)

	n, err := s.processBody(body)
	require.Error(t, err, "the last record error is reported")
	assert.Equal(t, 2, n, "both healthy records still processed")
	assert.Len(t, sink.all(), 2)
}

func TestProcessBodyUnmappedRecordsNotCounted(t *testing.T) {
	t.Parallel()
	sink := newSinkRecorder()
	sink.unmapped["MYSTERY"] = true
	s := newJSONSource(sink)

	body := []byte(`[{"code":"MYSTERY","buy":"1","sell":"2"}]`)
	n, err := s.processBody(body)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBodyMalformedPayload(t *testing.T) {
	t.Parallel()
	sink := newSinkRecorder()
	s := newJSONSource(sink)

	_, err := s.processBody([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.Empty(t, sink.all())
}

func TestAsString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "34.20", asString("34.20"))
	assert.Equal(t, "34.2", asString(34.2))
	assert.Equal(t, "", asString(nil))
}
