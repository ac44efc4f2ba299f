package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// テスト用のダミー画像（10x10の赤い正方形）を作成するヘルパー
func createDummyImageData(t *testing.T, format string) []byte {
	t.Helper()
	return createSizedImageData(t, format, 10, 10)
}

// 任意サイズの単色画像を作成するヘルパー
func createSizedImageData(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}

	if err != nil {
		t.Fatalf("failed to encode dummy image: %v", err)
	}
	return buf.Bytes()
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("正常なPNG画像をJPEGに圧縮できること", func(t *testing.T) {
		pngData := createDummyImageData(t, "png")

		got, err := CompressToJPEG(pngData, 75)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(got) == 0 {
			t.Error("expected output data, but got empty")
		}

		// 出力がJPEGとしてデコード可能か確認
		_, format, err := image.Decode(bytes.NewReader(got))
		if err != nil {
			t.Errorf("failed to decode output image: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("expected format jpeg, got %s", format)
		}
	})

	t.Run("不正なデータを与えた場合にエラーを返すこと", func(t *testing.T) {
		invalidData := []byte("this is not an image")
		_, err := CompressToJPEG(invalidData, 75)
		if err == nil {
			t.Error("expected error for invalid data, but got nil")
		}
	})

	t.Run("Quality設定によってサイズが変化すること", func(t *testing.T) {
		input := createDummyImageData(t, "png")

		highQuality, _ := CompressToJPEG(input, 100)
		lowQuality, _ := CompressToJPEG(input, 10)

		if len(lowQuality) >= len(highQuality) {
			t.Errorf("low quality size (%d) should be smaller than high quality size (%d)", len(lowQuality), len(highQuality))
		}
	})
}

func TestThumbnail(t *testing.T) {
	t.Run("横長の画像でも128x128のJPEGになること", func(t *testing.T) {
		input := createSizedImageData(t, "png", 400, 100)

		got, err := Thumbnail(input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg, format, err := image.DecodeConfig(bytes.NewReader(got))
		if err != nil {
			t.Fatalf("failed to decode thumbnail: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("expected format jpeg, got %s", format)
		}
		if cfg.Width != ThumbnailWidth || cfg.Height != ThumbnailHeight {
			t.Errorf("unexpected size: %dx%d", cfg.Width, cfg.Height)
		}
	})

	t.Run("不正なデータはエラーになること", func(t *testing.T) {
		if _, err := Thumbnail([]byte("not an image")); err == nil {
			t.Error("expected error for invalid data")
		}
	})
}

func TestDetectImageMIME(t *testing.T) {
	t.Run("PNGを判定できること", func(t *testing.T) {
		got, err := DetectImageMIME(createDummyImageData(t, "png"))
		if err != nil || got != "image/png" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("画像以外はエラーになること", func(t *testing.T) {
		if _, err := DetectImageMIME([]byte("plain text")); err == nil {
			t.Error("expected error for non-image data")
		}
	})
}
