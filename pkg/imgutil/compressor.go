package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

const (
	ThumbnailWidth   = 128
	ThumbnailHeight  = 128
	ThumbnailQuality = 80
)

// CompressToJPEG は画像データ（PNG, GIF, JPEG等）をJPEG形式に圧縮します。
// image.Decodeがサポートするフォーマットに対応しています。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img, quality)
}

// Thumbnail は履歴表示用の固定サイズ (128x128) サムネイルを JPEG で生成します。
// アスペクト比が異なる場合は中央を基準に切り抜きます。
func Thumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("サムネイル用の画像デコードに失敗しました: %w", err)
	}
	return encodeJPEG(coverResize(src, ThumbnailWidth, ThumbnailHeight), ThumbnailQuality)
}

// DetectImageMIME はバイト列から画像の MIME タイプを判定します。
func DetectImageMIME(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("画像ではないデータです (detected: %s)", mimeType)
	}
	return mimeType, nil
}

// coverResize は最近傍補間で dst 全体を覆うように拡縮し、はみ出した部分を中央で切り落とします。
func coverResize(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if sw == 0 || sh == 0 {
		return dst
	}

	scale := max(float64(width)/float64(sw), float64(height)/float64(sh))
	offsetX := (float64(sw)*scale - float64(width)) / 2
	offsetY := (float64(sh)*scale - float64(height)) / 2

	for y := 0; y < height; y++ {
		sy := b.Min.Y + min(int((float64(y)+offsetY)/scale), sh-1)
		for x := 0; x < width; x++ {
			sx := b.Min.X + min(int((float64(x)+offsetX)/scale), sw-1)
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
