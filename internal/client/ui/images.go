package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
)

const timeLayout = "2006-01-02 15:04"

// FormatTime renders an upload time in local time, or "-" when unknown.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// ImageTable renders images in the order given. An empty list renders as a
// single muted line.
func ImageTable(list []models.Image) string {
	if len(list) == 0 {
		return FormatMuted("No images.") + "\n"
	}

	t := NewTable(
		TableColumn{Header: "#", Align: AlignRight},
		TableColumn{Header: "ID", Width: 8},
		TableColumn{Header: "FILE", Width: 12},
		TableColumn{Header: "UPLOADED", Width: len(timeLayout)},
		TableColumn{Header: "URL"},
	)
	for i, img := range list {
		url := "unavailable"
		if img.HasSignedURL() {
			url = "ready"
		}
		t.AddRow(strconv.Itoa(i+1), img.ID, img.FileName, FormatTime(img.CreatedAt.Time), url)
	}
	return t.Render()
}

// ImageLabel is the one-line description used by pickers and messages.
func ImageLabel(img models.Image) string {
	name := img.FileName
	if name == "" {
		name = img.ID
	}
	return fmt.Sprintf("%s (%s)", name, FormatTime(img.CreatedAt.Time))
}

// ImagePreview is the detail text shown next to a picker entry.
func ImagePreview(img models.Image) string {
	url := img.SignedURL
	if url == "" {
		url = "unavailable"
	}
	return fmt.Sprintf("ID: %s\nFile: %s\nUploaded: %s\nURL: %s",
		img.ID, img.FileName, FormatTime(img.CreatedAt.Time), url)
}
