package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDecodeArgs(t *testing.T) {
	editFields := []string{"documentId", "content", "baseVersion"}

	tests := []struct {
		name     string
		args     []any
		want     EditRequest
		wantKind ErrorKind
	}{
		{
			name: "object",
			args: []any{map[string]any{"documentId": "doc1", "content": "hi", "baseVersion": "v1"}},
			want: EditRequest{DocumentID: "doc1", Content: strPtr("hi"), BaseVersion: "v1"},
		},
		{
			name: "positional",
			args: []any{"doc1", "hi", "v1"},
			want: EditRequest{DocumentID: "doc1", Content: strPtr("hi"), BaseVersion: "v1"},
		},
		{
			name: "numeric version",
			args: []any{"doc1", "", float64(1700000000000)},
			want: EditRequest{DocumentID: "doc1", Content: strPtr(""), BaseVersion: "1700000000000"},
		},
		{
			name: "explicit empty content",
			args: []any{map[string]any{"documentId": "doc1", "content": "", "baseVersion": "v1"}},
			want: EditRequest{DocumentID: "doc1", Content: strPtr(""), BaseVersion: "v1"},
		},
		{
			name:     "missing content",
			args:     []any{map[string]any{"documentId": "doc1", "baseVersion": "v1"}},
			wantKind: KindProtocol,
		},
		{
			name:     "null content",
			args:     []any{map[string]any{"documentId": "doc1", "content": nil, "baseVersion": "v1"}},
			wantKind: KindProtocol,
		},
		{
			name:     "missing base version",
			args:     []any{map[string]any{"documentId": "doc1", "content": "hi"}},
			wantKind: KindProtocol,
		},
		{
			name:     "too many arguments",
			args:     []any{"doc1", "hi", "v1", "extra"},
			wantKind: KindProtocol,
		},
		{
			name:     "wrong shape",
			args:     []any{map[string]any{"documentId": []any{"a"}, "baseVersion": "v1"}},
			wantKind: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got EditRequest
			err := decodeArgs(tt.args, editFields, &got)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeArgs_DocumentShorthand(t *testing.T) {
	var byString, byObject DocumentRequest
	require.NoError(t, decodeArgs([]any{"doc1"}, []string{"documentId"}, &byString))
	require.NoError(t, decodeArgs([]any{map[string]any{"documentId": "doc1"}}, []string{"documentId"}, &byObject))
	assert.Equal(t, byString, byObject)

	var empty DocumentRequest
	assert.Equal(t, KindProtocol, KindOf(decodeArgs([]any{""}, []string{"documentId"}, &empty)))
}

func TestErrorKindOf(t *testing.T) {
	err := newError(KindAccessDenied, "access denied to document %s", "doc1")
	assert.Equal(t, "access_denied: access denied to document doc1", err.Error())
	assert.Equal(t, KindAccessDenied, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))
}
