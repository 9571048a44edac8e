package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/media"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform"
	"go.uber.org/zap"
)

// MaxAvatarSize is the largest accepted profile picture.
const MaxAvatarSize = 2 * media.MB

// uploadTimeout bounds an avatar upload detached from the request.
const uploadTimeout = time.Minute

// UploadAvatar stores f as the viewer's profile picture and returns its URL.
func (s *Store) UploadAvatar(ctx context.Context, f model.FileInput) (string, error) {
	ident, ok := s.sess.Identity()
	if !ok {
		s.notify.Notify(notify.Error("Not Logged In", "Please log in to update your profile picture."))
		return "", errs.ErrInvalidToken
	}

	contentType, err := media.Check(f, media.ImageTypes, MaxAvatarSize)
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		s.notify.Notify(notify.Error("Invalid File Type", "Please select an image file (JPEG, PNG, GIF or WEBP)."))
		return "", err
	case errors.Is(err, media.ErrTooLarge):
		s.notify.Notify(notify.Error("File Too Large", "Profile pictures must be 2MB or smaller."))
		return "", err
	case err != nil:
		return "", err
	}

	name := fmt.Sprintf("profile-%s.%s", ident.ID, media.Extension(f.Name, contentType))

	upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
	defer cancel()
	_, err = s.storage.Upload(upCtx, platform.BucketProfiles, name, bytes.NewReader(f.Data), model.UploadOptions{
		ContentType:  contentType,
		CacheControl: "3600",
		Upsert:       true,
	})
	if err != nil {
		s.log.Error("avatar upload failed", zap.String("path", name), zap.Error(err))
		s.notify.Notify(notify.Error("Upload Failed", err.Error()))
		return "", err
	}

	url := s.storage.PublicURL(platform.BucketProfiles, name) + "?t=" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	if _, err := s.auth.UpdateUser(upCtx, map[string]any{model.MetaProfileImageURL: url}); err != nil {
		s.log.Warn("avatar metadata update failed", zap.Error(err))
	}
	s.SetAvatarURL(url)
	s.notify.Notify(notify.Info("Profile Picture Updated", "Your new profile picture has been saved."))
	return url, nil
}
