package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	in := &domain.JobCursor{
		CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC),
		JobID:     "2f0c9d3e-7a39-4c1e-9d0a-000000000001",
	}

	out, err := DecodeJobCursor(EncodeJobCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.JobID, out.JobID)
}

func TestDecodeJobCursor_Invalid(t *testing.T) {
	cursor, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	tests := map[string]string{
		"not base64":   "!!!",
		"missing id":   base64.StdEncoding.EncodeToString([]byte("123|")),
		"no separator": base64.StdEncoding.EncodeToString([]byte("123")),
		"bad time":     base64.StdEncoding.EncodeToString([]byte("abc|id")),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJobCursor(raw)
			assert.Error(t, err)
		})
	}
}

func TestClassify(t *testing.T) {
	status, code := classify(domain.ErrAlreadyCompleted)
	assert.Equal(t, 409, status)
	assert.Equal(t, "job_already_completed", code)

	status, code = classify(assert.AnError)
	assert.Equal(t, 500, status)
	assert.Equal(t, CodeInternal, code)
}
