package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		links   []string
		wantErr string
	}{
		{name: "empty", links: nil, wantErr: MsgNoLinks},
		{name: "one", links: []string{"https://example.com/v/1"}},
		{name: "ten", links: strings.Split(strings.Repeat("x,", 9)+"x", ",")},
		{name: "eleven", links: strings.Split(strings.Repeat("x,", 10)+"x", ","), wantErr: "Maximum 10 links allowed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := BatchRequest{Links: tt.links}
			err := req.Validate(DefaultMaxLinks)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Reason)
		})
	}
}

func TestBatchRequestValidateTrimsWithoutMutatingInput(t *testing.T) {
	in := []string{"  https://example.com/a ", "https://example.com/b"}
	req := BatchRequest{Links: in}

	require.NoError(t, req.Validate(DefaultMaxLinks))
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, req.Links)
	assert.Equal(t, "  https://example.com/a ", in[0])
}

func TestSummaryMessages(t *testing.T) {
	assert.Equal(t, "Successfully downloaded 3 videos.", MsgDownloaded(3))
	assert.Equal(t, "Maximum 4 links allowed.", MsgTooManyLinks(4))
}

func TestProgressPercentageAndClone(t *testing.T) {
	p := Progress{Current: 1, Total: 4, Items: []ItemProgress{{Link: "a", Status: ItemPending}}}
	assert.InDelta(t, 25.0, p.Percentage(), 0.001)
	assert.Zero(t, Progress{}.Percentage())

	c := p.Clone()
	c.Items[0].Status = ItemCompleted
	assert.Equal(t, ItemPending, p.Items[0].Status)
}

func TestErrCircuitUnwrap(t *testing.T) {
	err := ErrCircuit{Op: "rotate", Err: ErrTimeout}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "circuit rotate")
}
