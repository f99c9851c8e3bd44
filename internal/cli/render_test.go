package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atinyakov/PhotoKeeper/internal/client/gallery"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

func TestRenderGallery(t *testing.T) {
	var images []gallery.Image
	for i := range 7 {
		images = append(images, gallery.Image{
			Photo:  models.Photo{ID: fmt.Sprintf("photo-%d-abcdef", i), Size: 2048, Format: "jpeg"},
			Handle: fmt.Sprintf("/b/%d.blob", i),
		})
	}
	images[4].Handle = ""

	out := renderGallery("Your photos", images)
	assert.Contains(t, out, "Your photos (7)")
	for i := range 7 {
		assert.Contains(t, out, fmt.Sprintf("photo-%d-", i))
	}
	assert.Contains(t, out, "2.0 KB jpeg")
	assert.Equal(t, 1, strings.Count(out, "[image unavailable]"))

	// photo 3 shares the first column with photo 0, below it
	assert.Less(t, strings.Index(out, "photo-0-"), strings.Index(out, "photo-3-"))
}

func TestRenderGallery_Empty(t *testing.T) {
	assert.Contains(t, renderGallery("Your photos", nil), "No photos yet.")
}

func TestRenderResults(t *testing.T) {
	out := renderResults([]models.UploadResult{
		{Name: "a.jpg", Status: models.StatusSuccess, ServerData: &models.Photo{ID: "1234567890"}},
		{Name: "b.jpg", Status: models.StatusError, Err: "storage unavailable"},
	})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "a.jpg")
	assert.Contains(t, lines[0], "12345678")
	assert.Contains(t, lines[1], "b.jpg: storage unavailable")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2<<20))
}
