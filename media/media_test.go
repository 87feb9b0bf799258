package media

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

type fakeFetcher struct {
	fail map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, mediaID string) (*Blob, error) {
	if f.fail[mediaID] {
		return nil, errors.New("graph api unavailable")
	}
	return &Blob{Data: []byte("bytes-of-" + mediaID), MimeType: "image/jpeg"}, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
}

func (u *fakeUploader) Upload(_ context.Context, objectPath, _ string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, objectPath)
	return "https://cdn.example.com/" + objectPath, nil
}

func TestTransferRunKeepsOrderAndSkipsFailures(t *testing.T) {
	up := &fakeUploader{}
	tr := NewTransfer(&fakeFetcher{fail: map[string]bool{"m2": true}}, up, 2, "leads", nil)

	refs := []session.MediaRef{
		{MediaID: "m1", MimeType: "image/jpeg"},
		{MediaID: "m2", MimeType: "image/png"},
		{MediaID: "m3", MimeType: "application/pdf"},
	}
	attachments, failures := tr.Run(context.Background(), "491700000000", refs)

	require.Len(t, attachments, 2)
	assert.Equal(t, "m1", attachments[0].MediaID)
	assert.Equal(t, "m3", attachments[1].MediaID)
	assert.True(t, strings.HasPrefix(attachments[0].URL, "https://cdn.example.com/leads/491700000000/"))

	require.Len(t, failures, 1)
	assert.Equal(t, "m2", failures[0].Ref.MediaID)
	assert.Len(t, up.paths, 2)
}

func TestTransferRunEmpty(t *testing.T) {
	tr := NewTransfer(&fakeFetcher{}, &fakeUploader{}, 0, "", nil)
	attachments, failures := tr.Run(context.Background(), "x", nil)
	assert.Nil(t, attachments)
	assert.Nil(t, failures)
}

func TestObjectPath(t *testing.T) {
	p := ObjectPath("leads", "4917", "application/pdf")
	assert.True(t, strings.HasPrefix(p, "leads/4917/"))
	assert.True(t, strings.HasSuffix(p, ".pdf"))

	p = ObjectPath("", "4917", "")
	assert.True(t, strings.HasPrefix(p, "4917/"))
	assert.NotContains(t, p, ".")
}
