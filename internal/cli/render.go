package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/atinyakov/PhotoKeeper/internal/client/gallery"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

const cardWidth = 34

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorOK      = lipgloss.Color("#10B981")
	colorDanger  = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1).
			Width(cardWidth)
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func renderCard(img gallery.Image) string {
	lines := []string{
		titleStyle.Render(shortID(img.Photo.ID)),
		fmt.Sprintf("%s %s", humanSize(img.Photo.Size), img.Photo.Format),
	}
	if len(img.Photo.Tags) > 0 {
		lines = append(lines, "tags: "+strings.Join(img.Photo.Tags, ", "))
	}
	if img.Placeholder() {
		lines = append(lines, errStyle.Render("[image unavailable]"))
	} else {
		lines = append(lines, mutedStyle.Render(img.Handle))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

// renderGallery lays images out in gallery.DefaultColumns columns.
func renderGallery(title string, images []gallery.Image) string {
	if len(images) == 0 {
		return titleStyle.Render(title) + "\n" + mutedStyle.Render("No photos yet.")
	}
	cols := gallery.Columns(images, gallery.DefaultColumns)
	rendered := make([]string, 0, len(cols))
	for _, col := range cols {
		cards := make([]string, len(col))
		for i, img := range col {
			cards[i] = renderCard(img)
		}
		rendered = append(rendered, lipgloss.JoinVertical(lipgloss.Left, cards...))
	}
	return titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(images))) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderResult(res models.UploadResult) string {
	if res.Status == models.StatusSuccess {
		line := okStyle.Render("✓") + " " + res.Name
		if res.ServerData != nil {
			line += mutedStyle.Render(" (" + shortID(res.ServerData.ID) + ")")
		}
		return line
	}
	line := errStyle.Render("✗") + " " + res.Name
	if res.Err != "" {
		line += ": " + res.Err
	}
	return line
}

// renderResults renders the upload log, oldest first.
func renderResults(results []models.UploadResult) string {
	lines := make([]string, len(results))
	for i, res := range results {
		lines[i] = renderResult(res)
	}
	return strings.Join(lines, "\n")
}

func renderPhotos(photos []models.Photo) string {
	if len(photos) == 0 {
		return mutedStyle.Render("No photos yet.")
	}
	var b strings.Builder
	for _, p := range photos {
		fmt.Fprintf(&b, "%s  %-9s %-5s %s  %s\n",
			p.ID, humanSize(p.Size), p.Format,
			p.UploadedOn.Format("2006-01-02 15:04"), strings.Join(p.Tags, ","))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStaged(staged []models.PendingUpload) string {
	if len(staged) == 0 {
		return mutedStyle.Render("No files selected.")
	}
	lines := make([]string, len(staged))
	for i, p := range staged {
		lines[i] = fmt.Sprintf("- %s (%s)", p.DisplayName, humanSize(p.SizeBytes))
	}
	return strings.Join(lines, "\n")
}
