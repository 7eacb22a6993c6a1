package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/media"
	"github.com/skillsharp/lms/core/user"
)

const imageField = "image"

type uploadApi struct {
	svc       media.Service
	courseSvc course.Service
	usrSvc    user.Service
	logger    core.Logger
}

func registerUploadAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := uploadApi{svc: opts.MediaSvc, courseSvc: opts.CourseSvc, usrSvc: opts.UserSvc, logger: opts.Logger}

	ug := g.Group("/upload", auth.required)
	ug.POST("/course-thumbnail", api.uploadThumbnail, instructorMiddleware)
	ug.PUT("/course-thumbnail/:courseId", api.setThumbnail)
	ug.POST("/profile-picture", api.setAvatar)
	ug.DELETE("/image", api.destroy)
}

type DeleteImageRequest struct {
	Key string `json:"key" query:"key"`
}

// upload stores the multipart image under category for usr.
func (api *uploadApi) upload(ctx echo.Context, category string, usr user.User) (media.Object, error) {
	fh, err := ctx.FormFile(imageField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return media.Object{}, media.ErrNoFile
		}
		return media.Object{}, errors.Wrap(err, "reading form file")
	}
	f, err := fh.Open()
	if err != nil {
		return media.Object{}, errors.Wrap(err, "opening form file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	return api.svc.UploadImage(ctx.Request().Context(), category, usr.ID, media.File{
		Name: fh.Filename,
		Size: fh.Size,
		Body: f,
	})
}

func (api *uploadApi) uploadThumbnail(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	obj, err := api.upload(ctx, media.CategoryCourseThumbnail, usr)
	if err != nil {
		return errors.Wrap(err, "uploading thumbnail")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "url": obj.URL, "key": obj.Key})
}

func (api *uploadApi) setThumbnail(ctx echo.Context) error {
	c, err := managedCourse(ctx, api.courseSvc, "courseId")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	obj, err := api.upload(ctx, media.CategoryCourseThumbnail, usr)
	if err != nil {
		return errors.Wrap(err, "uploading thumbnail")
	}

	oldKey := c.ThumbnailKey
	c, err = api.courseSvc.SetThumbnail(ctx.Request().Context(), c, obj.URL, obj.Key)
	if err != nil {
		deleteObject(ctx, api.svc, api.logger, obj.Key)
		return errors.Wrap(err, "setting thumbnail")
	}
	deleteObject(ctx, api.svc, api.logger, oldKey)
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "url": obj.URL, "key": obj.Key, "course": c})
}

func (api *uploadApi) setAvatar(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	obj, err := api.upload(ctx, media.CategoryAvatar, usr)
	if err != nil {
		return errors.Wrap(err, "uploading avatar")
	}

	oldKey := usr.AvatarKey
	usr, err = api.usrSvc.SetAvatar(ctx.Request().Context(), usr.ID, obj.URL, obj.Key)
	if err != nil {
		deleteObject(ctx, api.svc, api.logger, obj.Key)
		return errors.Wrap(err, "setting avatar")
	}
	deleteObject(ctx, api.svc, api.logger, oldKey)
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "url": obj.URL, "key": obj.Key, "user": usr})
}

func (api *uploadApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data DeleteImageRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteImageRequest")
	}
	data.Key = core.CleanString(data.Key)
	if data.Key == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "key", Error: "this field is required"})
	}
	if !api.svc.CanDelete(usr, data.Key) {
		return media.ErrNotUploader
	}

	if err = api.svc.Delete(ctx.Request().Context(), data.Key); err != nil {
		return errors.Wrap(err, "deleting image")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Image deleted"})
}
