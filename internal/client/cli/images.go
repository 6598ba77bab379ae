package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/dmitrijs2005/imgkeeper/internal/client/api"
	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
	"github.com/dmitrijs2005/imgkeeper/internal/netx"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrNoImages      = errors.New("there are no images to choose from")
)

// pickImage and writeClipboard are test seams.
var (
	pickImage      = fuzzyPick
	writeClipboard = clipboard.WriteAll
)

func fuzzyPick(list []models.Image) (models.Image, error) {
	idx, err := fuzzyfinder.Find(
		list,
		func(i int) string {
			return ui.ImageLabel(list[i])
		},
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return ui.ImagePreview(list[i])
		}),
	)
	if err != nil {
		return models.Image{}, err
	}
	return list[idx], nil
}

// selectImage finds id in the active list, or in the trash when trash is
// set. The list is loaded first if it is empty or does not contain id.
// With no id the user picks one; ok is false if they cancel.
func (a *App) selectImage(ctx context.Context, id string, trash bool) (img models.Image, ok bool, err error) {
	list := a.collection(trash)

	if id != "" {
		if img, found := findImage(list, id); found {
			return img, true, nil
		}
		if err := a.load(ctx, trash); err != nil {
			return models.Image{}, false, err
		}
		if img, found := findImage(a.collection(trash), id); found {
			return img, true, nil
		}
		return models.Image{}, false, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	if len(list) == 0 {
		if err := a.load(ctx, trash); err != nil {
			return models.Image{}, false, err
		}
		list = a.collection(trash)
	}
	if len(list) == 0 {
		return models.Image{}, false, ErrNoImages
	}

	img, err = pickImage(list)
	if err != nil {
		a.println(ui.FormatInfo("Operation cancelled."))
		return models.Image{}, false, nil
	}
	return img, true, nil
}

func (a *App) collection(trash bool) []models.Image {
	if trash {
		return a.cache.Trash()
	}
	return a.cache.Active()
}

func (a *App) load(ctx context.Context, trash bool) error {
	if trash {
		return a.cache.RefreshTrash(ctx)
	}
	return a.cache.Refresh(ctx)
}

func findImage(list []models.Image, id string) (models.Image, bool) {
	for _, img := range list {
		if img.ID == id {
			return img, true
		}
	}
	return models.Image{}, false
}

// List loads and prints the active images, newest first.
func (a *App) List(ctx context.Context) error {
	return a.fail(a.protect(routeImages, func() error {
		a.setView(viewImages)
		if err := a.cache.Refresh(ctx); err != nil {
			return err
		}
		a.print(ui.ImageTable(a.cache.Active()))
		return nil
	}))
}

// Trash loads and prints the deleted images.
func (a *App) Trash(ctx context.Context) error {
	return a.fail(a.protect(routeTrash, func() error {
		a.setView(viewTrash)
		if err := a.cache.RefreshTrash(ctx); err != nil {
			return err
		}
		a.print(ui.ImageTable(a.cache.Trash()))
		return nil
	}))
}

// Upload sends each file in turn. A failed file does not stop the rest;
// the failures are returned together.
func (a *App) Upload(ctx context.Context, paths []string) error {
	return a.fail(a.protect(routeImages, func() error {
		var errs []error
		for _, p := range paths {
			if err := a.uploadFile(ctx, p); err != nil {
				if ctx.Err() != nil || errors.Is(err, api.ErrUnauthorized) {
					return err
				}
				a.println(ui.FormatError(fmt.Sprintf("%s: %s", p, errMessage(err))))
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
			}
		}
		if len(errs) > 0 {
			return reportedError{errors.Join(errs...)}
		}
		return nil
	}))
}

func (a *App) uploadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := a.cache.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	a.println(ui.FormatSuccess(fmt.Sprintf("Uploaded %s as %s.", ui.ImageLabel(img), img.ID)))
	return nil
}

// Delete moves an image to the trash.
func (a *App) Delete(ctx context.Context, id string) error {
	return a.fail(a.protect(routeImages, func() error {
		img, ok, err := a.selectImage(ctx, id, false)
		if err != nil || !ok {
			return err
		}
		if err := a.cache.MoveToTrash(ctx, img.ID); err != nil {
			return err
		}
		a.println(ui.FormatSuccess(fmt.Sprintf("Moved %s to the trash.", ui.ImageLabel(img))))
		return nil
	}))
}

// Restore brings an image back from the trash.
func (a *App) Restore(ctx context.Context, id string) error {
	return a.fail(a.protect(routeTrash, func() error {
		img, ok, err := a.selectImage(ctx, id, true)
		if err != nil || !ok {
			return err
		}
		if err := a.cache.RestoreFromTrash(ctx, img.ID); err != nil {
			return err
		}
		a.println(ui.FormatSuccess(fmt.Sprintf("Restored %s.", ui.ImageLabel(img))))
		return nil
	}))
}

// URL prints a fresh signed URL for an image and optionally copies it.
func (a *App) URL(ctx context.Context, id string, copyToClipboard bool) error {
	return a.fail(a.protect(routeImages, func() error {
		img, ok, err := a.selectImage(ctx, id, false)
		if err != nil || !ok {
			return err
		}
		url, err := a.cache.SignedURL(ctx, img.ID)
		if err != nil {
			return err
		}
		a.println(url)

		if copyToClipboard {
			if err := writeClipboard(url); err != nil {
				a.println(ui.FormatWarning("Could not copy to clipboard: " + err.Error()))
				return nil
			}
			a.println(ui.FormatSuccess("Copied to clipboard."))
		}
		return nil
	}))
}

// Download saves an image to dest, or to its file name in the working
// directory when dest is empty.
func (a *App) Download(ctx context.Context, id, dest string) error {
	return a.fail(a.protect(routeImages, func() error {
		img, ok, err := a.selectImage(ctx, id, false)
		if err != nil || !ok {
			return err
		}
		url, err := a.cache.SignedURL(ctx, img.ID)
		if err != nil {
			return err
		}

		if dest == "" {
			dest = filepath.Base(img.FileName)
			if img.FileName == "" {
				dest = img.ID
			}
		}

		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		n, err := netx.Download(ctx, a.http, url, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
			return err
		}

		a.println(ui.FormatSuccess(fmt.Sprintf("Saved %d bytes to %s.", n, dest)))
		return nil
	}))
}

// Admin opens the administrator-only view.
func (a *App) Admin(ctx context.Context) error {
	return a.fail(a.protect(routeAdmin, func() error {
		a.setView(viewAdmin)
		a.println(ui.FormatTitle("Administration"))
		a.println(ui.FormatMuted(fmt.Sprintf("Signed in as %s.", a.userLabelOr("administrator"))))
		return nil
	}))
}

func (a *App) userLabelOr(fallback string) string {
	if u := a.userLabel(); u != "" {
		return u
	}
	return fallback
}
