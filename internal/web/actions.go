package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/and161185/fashion-nexus/internal/convert"
	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/store/profile"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// actionTimeout bounds table mutations detached from the request.
const actionTimeout = 30 * time.Second

// back redirects to the form's "next" field when it names a local page, else to fallback.
func back(c *gin.Context, fallback string) {
	switch next := c.PostForm("next"); next {
	case "/", "/my-pics", "/account":
		fallback = next
	}
	c.Redirect(http.StatusSeeOther, fallback)
}

func (s *Server) stageImages(c *gin.Context) {
	v := viewerOf(c)
	form, err := c.MultipartForm()
	if err != nil {
		v.Toasts.Notify(notify.Error("Upload Error", "Could not read the selected files."))
		back(c, "/")
		return
	}
	files, err := convert.FromFileHeaders(form.File["files"], s.opts.MaxFileSize)
	if err != nil {
		s.log.Warn("read staged files", zap.Error(err))
		v.Toasts.Notify(notify.Error("Upload Error", "Could not read the selected files."))
		back(c, "/")
		return
	}
	rep := v.Images.Stage(files)
	s.log.Debug("staged images",
		zap.Int("added", len(rep.Added)),
		zap.Int("duplicates", len(rep.Duplicates)),
		zap.Int("rejected", len(rep.Rejected)),
	)
	back(c, "/")
}

func (s *Server) clearStaged(c *gin.Context) {
	viewerOf(c).Images.ClearStaged()
	back(c, "/")
}

func (s *Server) removeStaged(c *gin.Context) {
	viewerOf(c).Images.RemoveStaged(c.Param("id"))
	back(c, "/")
}

func (s *Server) saveImages(c *gin.Context) {
	rep, err := viewerOf(c).Images.Save(c.Request.Context())
	if err != nil {
		s.log.Info("save rejected", zap.Error(err))
	} else {
		s.log.Debug("save finished",
			zap.Int("succeeded", len(rep.Succeeded)),
			zap.Int("skipped", len(rep.Skipped)),
			zap.Int("failed", len(rep.Failed)),
		)
	}
	back(c, "/")
}

func (s *Server) removeSaved(c *gin.Context) {
	if err := viewerOf(c).Images.RemoveSaved(c.Request.Context(), c.Param("id")); err != nil {
		s.log.Info("remove saved image", zap.String("id", c.Param("id")), zap.Error(err))
	}
	back(c, "/my-pics")
}

func (s *Server) featureImage(c *gin.Context) {
	v := viewerOf(c)
	var img model.SavedImage
	found := false
	for _, saved := range v.Images.Snapshot().Saved {
		if saved.ID == c.Param("id") {
			img, found = saved, true
			break
		}
	}
	if !found {
		v.Toasts.Notify(notify.Error("Error", "Cannot identify image to feature."))
		back(c, "/my-pics")
		return
	}

	ctx, cancel := detached(c, actionTimeout)
	defer cancel()
	if err := v.Featured.Feature(ctx, img); err != nil {
		s.log.Info("feature image", zap.String("path", img.Path), zap.Error(err))
		back(c, "/my-pics")
		return
	}
	back(c, "/")
}

// toggleVote answers JSON to scripted clients and redirects browsers.
func (s *Server) toggleVote(c *gin.Context) {
	v := viewerOf(c)
	wantsJSON := c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON

	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		if wantsJSON {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown entry"})
			return
		}
		s.notFound(c)
		return
	}

	ctx, cancel := detached(c, actionTimeout)
	defer cancel()
	res, err := v.Featured.ToggleVote(ctx, id)
	if !wantsJSON {
		back(c, "/")
		return
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, errs.ErrVoteInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
	}
}

func (s *Server) uploadAvatar(c *gin.Context) {
	v := viewerOf(c)
	fh, err := c.FormFile("avatar")
	if err != nil {
		v.Toasts.Notify(notify.Error("Upload Failed", "Please choose an image to upload."))
		back(c, "/account")
		return
	}
	in, err := convert.FromFileHeader(fh, profile.MaxAvatarSize)
	if err != nil {
		s.log.Warn("read avatar", zap.Error(err))
		v.Toasts.Notify(notify.Error("Upload Failed", "Could not read the selected file."))
		back(c, "/account")
		return
	}
	if _, err := v.Profile.UploadAvatar(c.Request.Context(), in); err != nil {
		s.log.Info("avatar upload", zap.Error(err))
	}
	back(c, "/account")
}
