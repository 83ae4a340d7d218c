package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

// MaxPhotoBytes bounds profile photo uploads.
const MaxPhotoBytes = 5 << 20

const objectKeyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var photoExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// RegisterProfessional creates the caller's professional profile. Registering twice
// returns the existing profile unchanged.
func (s *Service) RegisterProfessional(ctx context.Context, uid string, req *types.RegisterProfessionalRequest) (*types.Professional, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	if req == nil {
		return nil, &ErrInvalidArgument{Message: "request body is required"}
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	now := s.now().UTC()
	services := req.Services
	if services == nil {
		services = []string{}
	}
	pro, err := s.store.CreateProfessional(ctx, &types.Professional{
		UID:        uid,
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Rating:     types.DefaultProfessionalRating,
		Services:   services,
		IsOnline:   false,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		observability.LogError(s.logger, moduleName, "RegisterProfessional", "failed to create profile", uid, err)
		return nil, fmt.Errorf("failed to register professional: %w", err)
	}

	s.log().WithField("professionalId", uid).Info("professional registered")
	return pro, nil
}

// Professional returns the caller's profile.
func (s *Service) Professional(ctx context.Context, uid string) (*types.Professional, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	pro, err := s.store.GetProfessional(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to get professional: %w", err)
	}
	if pro == nil {
		return nil, &ErrProfessionalNotFound{UID: uid}
	}
	return pro, nil
}

// SetPresence is the only write path for a professional's online flag.
func (s *Service) SetPresence(ctx context.Context, uid string, online bool) (*types.Professional, error) {
	return s.updateProfessional(ctx, "SetPresence", uid, func(p *types.Professional) error {
		now := s.now().UTC()
		p.IsOnline = online
		p.LastSeenAt = &now
		p.UpdatedAt = now
		return nil
	})
}

// UploadProfilePhoto stores a JPEG or PNG photo and points the profile at it.
// Bids placed earlier keep the photo they were submitted with.
func (s *Service) UploadProfilePhoto(ctx context.Context, uid, contentType string, r io.Reader) (string, error) {
	if uid == "" {
		return "", &ErrUnauthenticated{}
	}
	if s.photos == nil {
		return "", fmt.Errorf("photo storage is not configured")
	}
	if _, err := s.Professional(ctx, uid); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoBytes+1))
	if err != nil {
		return "", &ErrInvalidArgument{Field: "photo", Message: "could not read upload"}
	}
	if len(data) == 0 {
		return "", &ErrInvalidArgument{Field: "photo", Message: "is empty"}
	}
	if len(data) > MaxPhotoBytes {
		return "", &ErrInvalidArgument{Field: "photo", Message: "must be at most 5 MiB"}
	}
	sniffed := http.DetectContentType(data)
	ext, ok := photoExtensions[sniffed]
	if !ok {
		return "", &ErrInvalidArgument{Field: "photo", Message: fmt.Sprintf("must be JPEG or PNG, got %s", sniffed)}
	}
	if declared := strings.TrimSpace(strings.Split(contentType, ";")[0]); declared != "" && declared != sniffed {
		return "", &ErrInvalidArgument{Field: "photo", Message: fmt.Sprintf("content type %s does not match data", declared)}
	}

	suffix, err := gonanoid.Generate(objectKeyAlphabet, 12)
	if err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}
	key := fmt.Sprintf("professionals/%s/profile-%s.%s", uid, suffix, ext)

	url, err := s.photos.Upload(ctx, key, sniffed, bytes.NewReader(data))
	if err != nil {
		observability.LogError(s.logger, moduleName, "UploadProfilePhoto", "upload failed", key, err)
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}

	if _, err := s.updateProfessional(ctx, "UploadProfilePhoto", uid, func(p *types.Professional) error {
		p.ProfileImage = &url
		p.UpdatedAt = s.now().UTC()
		return nil
	}); err != nil {
		return "", err
	}

	s.log().WithFields(logrus.Fields{"professionalId": uid, "object": key}).Info("profile photo updated")
	return url, nil
}

// Services returns the active service catalogue.
func (s *Service) Services(ctx context.Context) ([]types.ServiceOffering, error) {
	services, err := s.store.ListServices(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (s *Service) updateProfessional(ctx context.Context, funcName, uid string, fn func(*types.Professional) error) (*types.Professional, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	pro, err := s.store.UpdateProfessional(ctx, uid, fn)
	if err != nil {
		observability.LogError(s.logger, moduleName, funcName, "failed to update profile", uid, err)
		return nil, fmt.Errorf("failed to update professional: %w", err)
	}
	if pro == nil {
		return nil, &ErrProfessionalNotFound{UID: uid}
	}
	return pro, nil
}
