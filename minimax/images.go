package minimax

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"mime"
	"os"
	"path/filepath"
	"sync"
)

// ReferenceImages is the fixed set of first-frame images a submission picks from.
// Dimensions are checked when assets are added, not here.
type ReferenceImages struct {
	Dir   string
	Names []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewReferenceImages builds a picker; the same seed yields the same sequence of picks.
func NewReferenceImages(dir string, names []string, seed int64) *ReferenceImages {
	return &ReferenceImages{
		Dir:   dir,
		Names: names,
		//nolint:gosec // G404: image choice is presentation only
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// Pick returns one name uniformly at random.
func (ri *ReferenceImages) Pick() (string, error) {
	if len(ri.Names) == 0 {
		return "", errors.New("no reference images configured")
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.Names[ri.rnd.Intn(len(ri.Names))], nil
}

// DataURI picks an image and encodes it as a data: URI for first_frame_image.
func (ri *ReferenceImages) DataURI() (string, error) {
	name, err := ri.Pick()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(ri.Dir, name))
	if err != nil {
		return "", fmt.Errorf("read reference image: %w", err)
	}
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		mt = "image/png"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
