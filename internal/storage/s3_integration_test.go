//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/cloo-solutions/obsidian/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_PutHeadDelete(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "obsidian-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx))

	key := "documents/doc-1/report.pdf"
	body := []byte("%PDF-1.7 test body")
	require.NoError(t, client.PutObject(ctx, key, body, "application/pdf"))

	meta, err := client.HeadObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), meta.ContentLength)
	assert.Equal(t, "application/pdf", meta.ContentType)

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.HeadObject(ctx, key)
	assert.Error(t, err)
}
