package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/reid"
)

// loadProfile builds the target profile from the reference image directory.
// With a cache configured, embeddings are keyed by the image file's SHA-256
// so repeat runs over the same references skip the extractor entirely.
func (p *Processor) loadProfile(ctx context.Context, targetDir string) (*reid.Profile, error) {
	paths, err := reid.ListReferenceImages(targetDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUsableImages, targetDir)
	}

	var all []detect.Embedding
	for _, path := range paths {
		embs, err := p.referenceEmbeddings(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("reference image %s: %w", path, err)
		}
		all = append(all, embs...)
	}

	profile, err := reid.NewProfile(all)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoUsableImages, targetDir)
	}
	p.logf("target profile ready, %d embedding(s) from %d image(s)", profile.Size(), len(paths))
	return profile, nil
}

func (p *Processor) referenceEmbeddings(ctx context.Context, path string) ([]detect.Embedding, error) {
	var hash string
	if p.cache != nil {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(raw)
		hash = hex.EncodeToString(sum[:])

		cached, err := p.cache.Embeddings(ctx, hash)
		if err != nil {
			p.logf("warning: profile cache lookup failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	img, err := reid.LoadImage(path)
	if err != nil {
		return nil, err
	}
	embs, err := reid.ExtractFromImage(ctx, img, p.persons, p.embeddings)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && len(embs) > 0 {
		if err := p.cache.Store(ctx, hash, embs); err != nil {
			p.logf("warning: profile cache store failed: %v", err)
		}
	}
	return embs, nil
}
