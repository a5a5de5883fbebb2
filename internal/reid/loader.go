package reid

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/deface/internal/detect"
)

// profileMinPersonScore is the person-detector confidence floor during
// profile extraction. Deliberately lenient: reference images are curated.
const profileMinPersonScore = 0.15

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// ListReferenceImages returns the usable image files in a target person
// directory, in lexical order.
func ListReferenceImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading target person directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// ExtractFromImage detects persons in a reference image and extracts one
// embedding per person crop. Images without detectable persons yield no
// embeddings, not an error.
func ExtractFromImage(ctx context.Context, img *image.RGBA, persons detect.PersonDetector, extractor detect.EmbeddingExtractor) ([]detect.Embedding, error) {
	dets, err := persons.DetectPersons(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting persons: %w", err)
	}

	var embeddings []detect.Embedding
	for _, p := range detect.Persons(dets, profileMinPersonScore) {
		crop := detect.Crop(img, p.Box)
		if crop == nil {
			continue
		}
		emb, err := extractor.ExtractEmbedding(ctx, detect.ResizeForReID(crop))
		if err != nil {
			return nil, fmt.Errorf("extracting embedding: %w", err)
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

// LoadImage decodes a reference image file into RGBA.
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Copy(rgba, img.Bounds().Min, img, img.Bounds(), draw.Src, nil)
	return rgba, nil
}
