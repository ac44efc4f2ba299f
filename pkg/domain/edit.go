package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EditRequest は1枚の画像に対する編集要求です。
// 生成後は変更しない前提のため、フィールドは非公開にしています。
type EditRequest struct {
	data        []byte
	mimeType    string
	instruction string
}

// NewEditRequest は画像バイト列・MIMEタイプ・指示文から EditRequest を生成します。
// 呼び出し元のスライスを後から書き換えられても影響しないようにコピーを保持します。
func NewEditRequest(data []byte, mimeType, instruction string) (EditRequest, error) {
	if len(data) == 0 {
		return EditRequest{}, fmt.Errorf("image data is required")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return EditRequest{}, fmt.Errorf("画像のMIMEタイプではありません: %q", mimeType)
	}
	if strings.TrimSpace(instruction) == "" {
		return EditRequest{}, fmt.Errorf("instruction is required")
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	return EditRequest{
		data:        copied,
		mimeType:    mimeType,
		instruction: instruction,
	}, nil
}

// NewEditRequestFromBase64 は base64 文字列、または data URL から EditRequest を生成します。
// data URL の場合は埋め込まれた MIME タイプが mimeType より優先されます。
func NewEditRequestFromBase64(encoded, mimeType, instruction string) (EditRequest, error) {
	if strings.HasPrefix(encoded, "data:") {
		parsedMime, payload, err := splitDataURL(encoded)
		if err != nil {
			return EditRequest{}, err
		}
		mimeType, encoded = parsedMime, payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return EditRequest{}, fmt.Errorf("base64のデコードに失敗しました: %w", err)
	}
	return NewEditRequest(data, mimeType, instruction)
}

// Data は画像バイト列のコピーを返します。
func (r EditRequest) Data() []byte {
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

func (r EditRequest) MimeType() string    { return r.mimeType }
func (r EditRequest) Instruction() string { return r.instruction }

// EditResult は編集に成功した画像です。
type EditResult struct {
	Data     []byte
	MimeType string
}

// Base64 は画像データを base64 文字列で返します。
func (r *EditResult) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

// DataURL はブラウザにそのまま渡せる data URL を返します。
func (r *EditResult) DataURL() string {
	return "data:" + r.MimeType + ";base64," + r.Base64()
}

func splitDataURL(dataURL string) (mimeType, payload string, err error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok {
		return "", "", fmt.Errorf("不正な data URL です")
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", "", fmt.Errorf("base64 形式以外の data URL には対応していません")
	}
	return mimeType, payload, nil
}
