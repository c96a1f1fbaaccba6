package source

import (
	"bytes"
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// Source provides a capture session: its manifest and the frame images
type Source interface {
	List(ctx context.Context) (*Manifest, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Sink stores produced files
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// LoadImage fetches and decodes a frame image as BGR
func LoadImage(ctx context.Context, src Source, key string) (gocv.Mat, error) {
	data, err := src.Fetch(ctx, key)
	if err != nil {
		return gocv.NewMat(), err
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("failed to decode %s: empty image", key)
	}
	return img, nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	return Decode(bytes.NewReader(data))
}
