package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/koksal000/engel/internal/store"
)

// maxPhotoBytes bounds the uploaded photo size.
const maxPhotoBytes = 8 << 20

type applicationResponse struct {
	*store.Application
	PhotoURL string `json:"photoUrl,omitempty"`
}

func (s *Server) applicationResponse(app *store.Application) applicationResponse {
	resp := applicationResponse{Application: app}
	if app.PhotoKey != "" && s.opts.Photos != nil {
		resp.PhotoURL = s.opts.Photos.PhotoURL(app.PhotoKey)
	}
	return resp
}

// handleCreateApplication accepts the assessment form: name, surname and a
// photo. The photo is analyzed into an assessment and stored; analysis failure
// fails the submission, a storage failure does not.
func (s *Server) handleCreateApplication(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	surname := strings.TrimSpace(c.FormValue("surname"))
	if name == "" || surname == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and surname are required")
	}

	fh, err := c.FormFile("photo")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "photo is required")
	}
	if fh.Size > maxPhotoBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "photo exceeds 8MB")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	photo, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if len(photo) > maxPhotoBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "photo exceeds 8MB")
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(photo)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return echo.NewHTTPError(http.StatusBadRequest, "photo must be an image")
	}

	ctx := c.Request().Context()
	assessment, err := s.opts.Analyzer.Assess(ctx, photo, mimeType, name, surname)
	if err != nil {
		log.Printf("photo analysis failed: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "analiz şu anda yapılamıyor, lütfen tekrar deneyin")
	}

	app := &store.Application{
		Name:       name,
		Surname:    surname,
		Assessment: assessment,
	}
	if s.opts.Photos != nil {
		key := uuid.NewString() + photoExtension(mimeType, fh.Filename)
		if err := s.opts.Photos.UploadPhoto(ctx, key, mimeType, photo); err != nil {
			log.Printf("photo upload failed, keeping application without photo: %v", err)
		} else {
			app.PhotoKey = key
		}
	}
	if err := s.opts.Applications.CreateApplication(ctx, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return c.JSON(http.StatusCreated, s.applicationResponse(app))
}

func photoExtension(mimeType, filename string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if ext := path.Ext(filename); ext != "" {
		return ext
	}
	return ".bin"
}

func (s *Server) handleListApplications(c echo.Context) error {
	apps, err := s.opts.Applications.ListApplications(c.Request().Context())
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}
	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, s.applicationResponse(app))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleListCalls(c echo.Context) error {
	calls, err := s.opts.Calls.ListCalls(c.Request().Context())
	if err != nil {
		return fmt.Errorf("list calls: %w", err)
	}
	return c.JSON(http.StatusOK, calls)
}

type referralRequest struct {
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

func (s *Server) handleAttachReferral(c echo.Context) error {
	var req referralRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid referral payload")
	}
	if req.Doctor == "" || req.Date == "" || req.Time == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor, date and time are required")
	}
	app, err := s.opts.Referrals.Attach(c.Request().Context(), c.Param("id"), req.Doctor, req.Date, req.Time)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "application not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, s.applicationResponse(app))
}
