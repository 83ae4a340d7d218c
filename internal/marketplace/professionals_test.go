package marketplace_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/types"
)

type fakePhotos struct {
	keys        []string
	contentType string
	size        int
	err         error
}

func (p *fakePhotos) Upload(_ context.Context, key, contentType string, r io.Reader) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	p.keys = append(p.keys, key)
	p.contentType = contentType
	p.size = len(data)
	return "https://cdn.example.test/" + key, nil
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestRegisterProfessional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pro, err := f.svc.RegisterProfessional(ctx, "pro-a", &types.RegisterProfessionalRequest{Name: "  Thandi  ", Email: "t@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Thandi", pro.Name)
	assert.Equal(t, 5.0, pro.Rating)
	assert.False(t, pro.IsOnline)
	assert.True(t, pro.IsVerified)
	assert.NotNil(t, pro.Services)

	again, err := f.svc.RegisterProfessional(ctx, "pro-a", &types.RegisterProfessionalRequest{Name: "Someone else"})
	require.NoError(t, err)
	assert.Equal(t, "Thandi", again.Name)

	_, err = f.svc.RegisterProfessional(ctx, "pro-b", &types.RegisterProfessionalRequest{Name: "B", Email: "not-an-email"})
	assert.Equal(t, marketplace.CodeInvalidArgument, marketplace.CodeOf(err))

	_, err = f.svc.Professional(ctx, "pro-b")
	assert.Equal(t, marketplace.CodeNotFound, marketplace.CodeOf(err))
}

func TestSetPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")

	pro, err := f.svc.SetPresence(ctx, "pro-a", true)
	require.NoError(t, err)
	assert.True(t, pro.IsOnline)
	require.NotNil(t, pro.LastSeenAt)
	assert.Equal(t, f.clock.Now(), *pro.LastSeenAt)

	pro, err = f.svc.SetPresence(ctx, "pro-a", false)
	require.NoError(t, err)
	assert.False(t, pro.IsOnline)

	_, err = f.svc.SetPresence(ctx, "pro-ghost", true)
	assert.Equal(t, marketplace.CodeNotFound, marketplace.CodeOf(err))
}

func TestUploadProfilePhoto(t *testing.T) {
	photos := &fakePhotos{}
	f := newFixture(t, marketplace.WithPhotoStore(photos))
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")

	jobID := f.createJob(t, "cust-1", 1000)
	_, err := f.svc.SubmitBid(ctx, "pro-a", jobID, 800)
	require.NoError(t, err)

	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)
	url, err := f.svc.UploadProfilePhoto(ctx, "pro-a", "image/png", bytes.NewReader(data))
	require.NoError(t, err)

	require.Len(t, photos.keys, 1)
	assert.True(t, strings.HasPrefix(photos.keys[0], "professionals/pro-a/profile-"))
	assert.True(t, strings.HasSuffix(photos.keys[0], ".png"))
	assert.Equal(t, "image/png", photos.contentType)
	assert.Equal(t, len(data), photos.size)
	assert.Equal(t, "https://cdn.example.test/"+photos.keys[0], url)

	pro, err := f.svc.Professional(ctx, "pro-a")
	require.NoError(t, err)
	require.NotNil(t, pro.ProfileImage)
	assert.Equal(t, url, *pro.ProfileImage)

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Nil(t, job.Bids[0].ProfileImage, "earlier bids keep their snapshot")
}

func TestUploadProfilePhoto_Rejections(t *testing.T) {
	photos := &fakePhotos{}
	f := newFixture(t, marketplace.WithPhotoStore(photos))
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")

	png := append(append([]byte{}, pngHeader...), 0, 0, 0, 0)
	tests := []struct {
		name        string
		uid         string
		contentType string
		data        []byte
		want        marketplace.Code
	}{
		{"empty", "pro-a", "image/png", nil, marketplace.CodeInvalidArgument},
		{"too large", "pro-a", "image/png", append(append([]byte{}, pngHeader...), make([]byte, marketplace.MaxPhotoBytes)...), marketplace.CodeInvalidArgument},
		{"not an image", "pro-a", "", []byte("hello world, not a picture"), marketplace.CodeInvalidArgument},
		{"declared type mismatch", "pro-a", "image/jpeg", png, marketplace.CodeInvalidArgument},
		{"no profile", "pro-ghost", "image/png", png, marketplace.CodeNotFound},
		{"unauthenticated", "", "image/png", png, marketplace.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UploadProfilePhoto(ctx, tt.uid, tt.contentType, bytes.NewReader(tt.data))
			assert.Equal(t, tt.want, marketplace.CodeOf(err))
		})
	}
	assert.Empty(t, photos.keys, "rejected uploads never reach storage")

	photos.err = errors.New("bucket unavailable")
	_, err := f.svc.UploadProfilePhoto(ctx, "pro-a", "image/png", bytes.NewReader(png))
	assert.Equal(t, marketplace.CodeInternal, marketplace.CodeOf(err))

	pro, err := f.svc.Professional(ctx, "pro-a")
	require.NoError(t, err)
	assert.Nil(t, pro.ProfileImage)
}

func TestUploadProfilePhoto_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.register(t, "pro-a", "Thandi")
	_, err := f.svc.UploadProfilePhoto(context.Background(), "pro-a", "image/png", bytes.NewReader(pngHeader))
	assert.Error(t, err)
}
